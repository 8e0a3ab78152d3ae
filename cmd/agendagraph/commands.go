package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/brunobiangulo/agendagraph"
	"github.com/brunobiangulo/agendagraph/linker"
	"github.com/brunobiangulo/agendagraph/normalize"
	"github.com/brunobiangulo/agendagraph/parser"
	"github.com/brunobiangulo/agendagraph/router"
	"github.com/brunobiangulo/agendagraph/watch"
)

// app carries the flags shared by every subcommand.
type app struct {
	configPath string
	logLevel   string
	jsonOut    bool

	out io.Writer
	cfg agendagraph.Config
}

func rootCmd() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Municipal meeting records graph",
		Long: `agendagraph links a meeting's agenda to the ordinances, resolutions and
transcripts filed for it, resolves the people named across them, and
answers questions over the resulting graph.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			a.out = cmd.OutOrStdout()
			return a.setup()
		},
	}

	cmd.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "Config file path (YAML, TOML or JSON)")
	cmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().BoolVar(&a.jsonOut, "json", false, "Print results as JSON")

	cmd.AddCommand(
		a.processCmd(),
		a.linkCmd(),
		a.routeCmd(),
		a.queryCmd(),
		a.resolveCmd(),
		a.watchCmd(),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s version %s (build: %s)\n", appName, Version, BuildTime)
			},
		},
	)
	return cmd
}

func (a *app) setup() error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(a.logLevel)); err != nil {
		return fmt.Errorf("invalid log level %q", a.logLevel)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if a.configPath == "" {
		a.cfg = agendagraph.DefaultConfig()
		a.cfg.ApplyEnv()
		return nil
	}
	cfg, err := agendagraph.LoadConfig(a.configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg
	return nil
}

func (a *app) engine() (agendagraph.Engine, error) {
	return agendagraph.New(a.cfg)
}

func (a *app) print(v any, text func(io.Writer)) error {
	if a.jsonOut {
		enc := json.NewEncoder(a.out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(a.out)
	return nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// ---------------------------------------------------------------------------
// process
// ---------------------------------------------------------------------------

func (a *app) processCmd() *cobra.Command {
	var xlsxPath string
	cmd := &cobra.Command{
		Use:   "process <agenda>...",
		Short: "Parse agendas, link their documents and write the graph",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			e, err := a.engine()
			if err != nil {
				return err
			}
			defer e.Close()

			var all []*linker.MeetingLinks
			var results []*agendagraph.MeetingResult
			for _, path := range args {
				res, err := e.ProcessMeeting(ctx, path)
				if err != nil {
					return err
				}
				results = append(results, res)
				all = append(all, res.Links)
			}

			if xlsxPath != "" {
				if err := writeReport(xlsxPath, all); err != nil {
					return err
				}
			}
			return a.print(results, func(w io.Writer) {
				for _, r := range results {
					printMeeting(w, r)
				}
			})
		},
	}
	cmd.Flags().StringVar(&xlsxPath, "xlsx", "", "Also write a linking report workbook to this path")
	return cmd
}

func printMeeting(w io.Writer, r *agendagraph.MeetingResult) {
	rep := r.Links.Report()
	fmt.Fprintf(w, "Meeting %s: %d items, %d linked, %d unlinked, %d failed\n",
		r.Date.ISO(), len(r.Agenda.Items()), rep.Linked, rep.Unlinked, rep.Failed)
	for _, code := range r.Links.Codes() {
		var numbers []string
		for _, d := range r.Links.Items[code] {
			numbers = append(numbers, d.DocumentNumber)
		}
		fmt.Fprintf(w, "  %-6s %s\n", code, strings.Join(numbers, ", "))
	}
	if r.Transcripts != nil {
		fmt.Fprintf(w, "  transcripts: %d\n", len(r.Transcripts.Transcripts))
	}
	fmt.Fprintf(w, "  people: %d, vertices: +%d, edges: +%d (%s)\n",
		len(r.People), r.Graph.Vertices, r.Graph.Edges, r.Elapsed.Round(time.Millisecond))
}

func writeReport(path string, links []*linker.MeetingLinks) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := linker.WriteReportXLSX(f, links...); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ---------------------------------------------------------------------------
// link
// ---------------------------------------------------------------------------

func (a *app) linkCmd() *cobra.Command {
	var xlsxPath string
	cmd := &cobra.Command{
		Use:   "link <date>...",
		Short: "Link documents to agenda items for meeting dates without writing the graph",
		Long: `link runs only the pattern rules over the documents filed for each
meeting date. Dates may be written 01.09.2024, 01_09_2024 or 2024-01-09.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			l := linker.New(parser.NewRegistry(),
				linker.WithConcurrency(a.cfg.Concurrency),
				linker.WithDocumentTimeout(time.Duration(a.cfg.DocumentTimeout)))

			var all []*linker.MeetingLinks
			for _, raw := range args {
				date, err := normalize.MeetingDate(raw)
				if err != nil {
					return err
				}
				links, err := l.LinkMeeting(ctx, date, a.cfg.DocumentDirs...)
				if err != nil {
					return err
				}
				all = append(all, links)
			}

			if xlsxPath != "" {
				if err := writeReport(xlsxPath, all); err != nil {
					return err
				}
			}
			reports := make([]linker.Report, 0, len(all))
			for _, ml := range all {
				reports = append(reports, ml.Report())
			}
			return a.print(reports, func(w io.Writer) {
				for i, ml := range all {
					r := reports[i]
					fmt.Fprintf(w, "%s: %d linked, %d unlinked, %d failed, items %s\n",
						ml.Date.ISO(), r.Linked, r.Unlinked, r.Failed, strings.Join(ml.Codes(), " "))
				}
			})
		},
	}
	cmd.Flags().StringVar(&xlsxPath, "xlsx", "", "Write a linking report workbook to this path")
	return cmd
}

// ---------------------------------------------------------------------------
// route, query, resolve
// ---------------------------------------------------------------------------

func (a *app) routeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "route <question>",
		Short: "Show which retrieval method a question would use",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r := router.Classify(strings.Join(args, " "))
			return a.print(r, func(w io.Writer) {
				fmt.Fprintf(w, "method: %s\nintent: %s\nreason: %s\n", r.Method, r.Intent, r.Reason)
				for _, e := range r.Entities {
					fmt.Fprintf(w, "entity: %s %s\n", e.Type, e.Value)
				}
			})
		},
	}
}

func (a *app) queryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "query <question>",
		Short: "Answer a question over the processed meetings",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			e, err := a.engine()
			if err != nil {
				return err
			}
			defer e.Close()

			ans, err := e.Query(ctx, strings.Join(args, " "))
			if err != nil {
				return err
			}
			return a.print(ans, func(w io.Writer) {
				fmt.Fprintln(w, ans.Text)
				if len(ans.Sources) > 0 {
					fmt.Fprintf(w, "\nSources: %s\n", strings.Join(ans.Sources, ", "))
				}
				fmt.Fprintf(w, "\n[%s, %s]\n", ans.Route.Method, ans.Elapsed.Round(time.Millisecond))
			})
		},
	}
}

func (a *app) resolveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <name>...",
		Short: "Resolve raw person names against the configured aliases",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := a.engine()
			if err != nil {
				return err
			}
			defer e.Close()

			out := make(map[string]string, len(args))
			for _, raw := range args {
				out[raw] = e.Resolve(raw)
			}
			return a.print(out, func(w io.Writer) {
				for _, raw := range args {
					fmt.Fprintf(w, "%s => %s\n", raw, out[raw])
				}
			})
		},
	}
}

// ---------------------------------------------------------------------------
// watch
// ---------------------------------------------------------------------------

func (a *app) watchCmd() *cobra.Command {
	var debounce time.Duration
	cmd := &cobra.Command{
		Use:   "watch <dir>",
		Short: "Process agendas as they are added under a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			e, err := a.engine()
			if err != nil {
				return err
			}
			defer e.Close()

			w, err := watch.New(args[0], func(ctx context.Context, path string) error {
				res, err := e.ProcessMeeting(ctx, path)
				if err != nil {
					return err
				}
				printMeeting(a.out, res)
				return nil
			}, watch.WithDebounce(debounce))
			if err != nil {
				return err
			}
			return w.Run(ctx)
		},
	}
	cmd.Flags().DurationVar(&debounce, "debounce", 2*time.Second, "Quiet period before a new agenda is processed")
	return cmd
}
