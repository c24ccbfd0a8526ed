package pipeline

import (
	"context"
	"strings"
	"testing"

	"github.com/joseph-ayodele/invoice-pipeline/constants"
	"github.com/joseph-ayodele/invoice-pipeline/internal/extract"
	"github.com/joseph-ayodele/invoice-pipeline/internal/llm"
	"github.com/joseph-ayodele/invoice-pipeline/internal/testutil"
)

// Two real pages through the real inspector and backends, in both preference orders.
func TestProcessTwoPagePDF(t *testing.T) {
	path := testutil.WritePDF(t, "factura.pdf",
		"FACTURA ELECTRONICA F001-000123\nRUC 20123456789\nCLIENTE COMERCIAL ANDINA SAC",
		"SERVICIO DE CONSULTORIA 1500.00\nTOTAL A PAGAR S/. 1,770.00",
	)

	for _, order := range [][]string{
		{extract.NamePDFCPU, extract.NameLedongthuc},
		{extract.NameLedongthuc, extract.NamePDFCPU},
	} {
		t.Run(order[0], func(t *testing.T) {
			backends, err := extract.BuildBackends(extract.BackendConfig{Names: order}, quietLogger())
			if err != nil {
				t.Fatalf("BuildBackends: %v", err)
			}
			var raw string
			completer := &fakeCompleter{out: llm.Completion{Content: invoiceJSON, TokensUsed: 10}}
			e := NewEngine(Config{}, extract.NewPDFCPUInspector(quietLogger()), backends, completer, quietLogger(),
				WithStage(constants.StageCleaning, stageFunc(func(ctx context.Context, st *State) {
					raw = st.RawText
					NewCleaningStage(quietLogger()).Run(ctx, st)
				})),
			)

			res := e.Process(context.Background(), path, "")
			if res.Status != constants.PipelineCompleted {
				t.Fatalf("status = %s, errors = %q", res.Status, res.Errors)
			}
			if res.Debug["page_count"] != 2 || res.Debug["pages_with_text"] != 2 {
				t.Errorf("debug = %v", res.Debug)
			}
			first, second := strings.Index(raw, PageMarker(1)), strings.Index(raw, PageMarker(2))
			if first < 0 || second < 0 || second < first {
				t.Fatalf("markers missing or out of order in %q", raw)
			}
			// glyph spacing differs between backends
			if !strings.Contains(strings.ReplaceAll(raw[second:], " ", ""), "TOTALAPAGAR") {
				t.Errorf("second page text not after its marker: %q", raw)
			}
		})
	}
}

func TestNewEngineWithoutBackends(t *testing.T) {
	doc := &fakeDoc{pages: []string{invoicePage}}
	e := NewEngine(Config{}, fakeInspector{doc: doc}, nil, nil, quietLogger())

	res := e.Process(context.Background(), writeFile(t, "f.pdf", 2048), "f.pdf")
	if res.Status != constants.PipelineFailed || res.Stage != constants.StageIngestion {
		t.Fatalf("status = %s stage = %s", res.Status, res.Stage)
	}
	if res.Debug["extraction_method"] != extract.MethodNone {
		t.Errorf("extraction_method = %v", res.Debug["extraction_method"])
	}
}
