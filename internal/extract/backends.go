package extract

import (
	"fmt"
	"log/slog"
)

// Backends is an ordered, name-addressable set of extraction backends.
type Backends struct {
	ordered []Backend
	byName  map[string]Backend
}

func NewBackends(list ...Backend) *Backends {
	bs := &Backends{byName: make(map[string]Backend, len(list))}
	for _, b := range list {
		if _, dup := bs.byName[b.Name()]; dup {
			continue
		}
		bs.ordered = append(bs.ordered, b)
		bs.byName[b.Name()] = b
	}
	return bs
}

// BackendConfig names the backends to build, in preference order.
type BackendConfig struct {
	Names     []string
	Pdftotext string
	Runner    Runner
}

// BuildBackends constructs the named backends. Unknown names are an error.
func BuildBackends(cfg BackendConfig, logger *slog.Logger) (*Backends, error) {
	if logger == nil {
		logger = slog.Default()
	}
	list := make([]Backend, 0, len(cfg.Names))
	for _, name := range cfg.Names {
		switch name {
		case NameLedongthuc:
			list = append(list, NewLedongthucBackend(logger))
		case NamePDFCPU:
			list = append(list, NewPDFCPUBackend(logger))
		case NamePdftotext:
			list = append(list, NewPdftotextBackend(cfg.Pdftotext, cfg.Runner, logger))
		default:
			return nil, fmt.Errorf("unknown extraction backend %q", name)
		}
	}
	return NewBackends(list...), nil
}

// Ordered returns the backends in preference order.
func (b *Backends) Ordered() []Backend {
	out := make([]Backend, len(b.ordered))
	copy(out, b.ordered)
	return out
}

func (b *Backends) Lookup(name string) (Backend, bool) {
	be, ok := b.byName[name]
	return be, ok
}
