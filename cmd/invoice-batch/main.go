package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/joseph-ayodele/invoice-pipeline/internal/app"
	"github.com/joseph-ayodele/invoice-pipeline/internal/common"
	"github.com/joseph-ayodele/invoice-pipeline/internal/entity"
	"github.com/joseph-ayodele/invoice-pipeline/internal/export"
	"github.com/joseph-ayodele/invoice-pipeline/internal/ingest"
	"github.com/joseph-ayodele/invoice-pipeline/internal/llm"
	"github.com/joseph-ayodele/invoice-pipeline/internal/pipeline"
	repo "github.com/joseph-ayodele/invoice-pipeline/internal/repository"
)

// printError prints an error message to stderr, falling back to stdout if stderr fails
func printError(format string, args ...any) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

type globals struct {
	cfgFile string
	cfg     *common.Config
	logger  *slog.Logger
}

func main() {
	g := &globals{}
	root := &cobra.Command{
		Use:           "invoice-batch",
		Short:         "Run the invoice pipeline over local PDF files",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			cfg, err := common.LoadConfig(g.cfgFile)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			g.cfg = cfg
			// JSON on stderr keeps stdout for command output.
			g.logger = app.NewLogger(common.LogConfig{Level: cfg.Log.Level, Format: "json"}, os.Stderr)
			slog.SetDefault(g.logger)
			return nil
		},
	}
	root.PersistentFlags().StringVar(&g.cfgFile, "config", "", "config file (default ./invoices.yaml)")
	root.AddCommand(processCmd(g), probeCmd(g), structureCmd(g))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := root.ExecuteContext(ctx); err != nil {
		printError("Error: %v\n", err)
		os.Exit(1)
	}
}

type processOpts struct {
	dir         string
	out         string
	jsonOut     string
	save        bool
	concurrency int
}

func processCmd(g *globals) *cobra.Command {
	o := &processOpts{}
	cmd := &cobra.Command{
		Use:   "process",
		Short: "Process every PDF under a directory and write a workbook",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runProcess(cmd.Context(), g, o)
		},
	}
	cmd.Flags().StringVar(&o.dir, "dir", "", "directory to process invoices from (required)")
	cmd.Flags().StringVar(&o.out, "out", "", "output XLSX path (defaults to <dir>/../facturas.xlsx)")
	cmd.Flags().StringVar(&o.jsonOut, "json", "", "also write every pipeline result to this JSON file")
	cmd.Flags().BoolVar(&o.save, "save", false, "store successful invoices in the configured database")
	cmd.Flags().IntVar(&o.concurrency, "concurrency", 4, "documents processed in parallel")
	_ = cmd.MarkFlagRequired("dir")
	return cmd
}

func runProcess(ctx context.Context, g *globals, o *processOpts) error {
	logger := g.logger
	if o.out == "" {
		o.out = filepath.Join(filepath.Dir(filepath.Clean(o.dir)), "facturas.xlsx")
	}
	if o.concurrency <= 0 {
		o.concurrency = 1
	}

	comps, err := app.BuildEngine(g.cfg, logger)
	if err != nil {
		return err
	}

	var invoices repo.InvoiceRepository
	if o.save {
		db, err := repo.Open(ctx, repo.ConfigFrom(g.cfg.Database), logger)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer db.Close()
		if err := db.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		invoices = repo.NewInvoiceRepository(db, logger)
	}

	paths, stats, err := ingest.ScanDirectory(o.dir, true)
	if err != nil {
		return err
	}
	logger.Info("batch.scan.done", "dir", o.dir, "scanned", stats.Scanned, "matched", stats.Matched, "failed", stats.Failed)

	start := time.Now()
	results := make([]pipeline.Result, len(paths))
	grp, gctx := errgroup.WithContext(ctx)
	grp.SetLimit(o.concurrency)
	for i, p := range paths {
		grp.Go(func() error {
			// Process never fails; only cancellation stops the batch.
			results[i] = comps.Engine.Process(gctx, p, filepath.Base(p))
			return gctx.Err()
		})
	}
	if err := grp.Wait(); err != nil {
		return err
	}

	var (
		rows     []*entity.StoredInvoice
		failures int
	)
	for i, res := range results {
		if !res.Succeeded() || res.Invoice == nil {
			failures++
			msg := ""
			if res.Failure != nil {
				msg = res.Failure.Message
			}
			logger.Warn("batch.file.failed", "file", res.Filename, "stage", res.Stage, "error", msg)
			continue
		}
		row := &entity.StoredInvoice{SourceFile: paths[i], Invoice: *res.Invoice}
		if invoices != nil {
			saved, err := invoices.Save(ctx, repo.SaveInvoiceRequest{Invoice: res.Invoice, SourceFile: res.Filename})
			if err != nil {
				logger.Warn("batch.save.failed", "file", res.Filename, "error", err)
			} else {
				row = saved
			}
		}
		rows = append(rows, row)
	}

	data, err := export.NewService(invoices, logger).InvoicesXLSX(rows)
	if err != nil {
		return err
	}
	if err := os.WriteFile(o.out, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", o.out, err)
	}
	if o.jsonOut != "" {
		buf, err := json.MarshalIndent(results, "", "  ")
		if err != nil {
			return err
		}
		if err := os.WriteFile(o.jsonOut, buf, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", o.jsonOut, err)
		}
	}

	logger.Info("batch.done",
		"files", len(paths),
		"succeeded", len(rows),
		"failed", failures,
		"output", o.out,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	fmt.Printf("Batch processing complete!\n")
	fmt.Printf("- Files found: %d\n", len(paths))
	fmt.Printf("- Invoices extracted: %d\n", len(rows))
	fmt.Printf("- Failures: %d\n", failures)
	fmt.Printf("- Output: %s\n", o.out)
	return nil
}

func probeCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "probe FILE",
		Short: "Report page count, metadata and the extraction method chosen for a PDF",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			comps, err := app.BuildEngine(g.cfg, g.logger)
			if err != nil {
				return err
			}
			doc, err := comps.Inspector.Open(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer doc.Close()
			ok, method := comps.Selector.Select(cmd.Context(), args[0])

			out := map[string]any{
				"file":                 args[0],
				"page_count":           doc.PageCount(),
				"password_protected":   doc.IsEncrypted(),
				"metadata":             doc.Metadata(),
				"has_extractable_text": ok,
				"extraction_method":    method,
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
}

// structureCmd sends a text file straight to the text-understanding service,
// which is handy when tuning prompts against text already extracted.
func structureCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "structure TEXTFILE",
		Short: "Clean a text file and extract invoice fields from it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := g.cfg.RequireLLM(); err != nil {
				return err
			}
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			sys, user, err := llm.BuildPrompts(pipeline.CleanText(string(raw)))
			if err != nil {
				return err
			}
			completer := app.NewCompleter(g.cfg.LLM, g.logger)
			comp, err := completer.Complete(cmd.Context(), sys, user)
			if err != nil {
				return err
			}
			fields, err := llm.ParseObject(comp.Content)
			if err != nil {
				return err
			}
			if err := llm.ValidateInvoiceFields(fields); err != nil {
				g.logger.Warn("batch.structure.schema", "error", err)
			}
			inv, warnings := entity.InvoiceFromFields(fields)
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]any{
				"invoice":     inv,
				"warnings":    warnings,
				"tokens_used": comp.TokensUsed,
				"model":       comp.Model,
			})
		},
	}
}
