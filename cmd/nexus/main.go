package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zen-systems/nexus/pkg/adapter"
	"github.com/zen-systems/nexus/pkg/config"
	"github.com/zen-systems/nexus/pkg/events"
	"github.com/zen-systems/nexus/pkg/evidence"
	"github.com/zen-systems/nexus/pkg/httpapi"
	"github.com/zen-systems/nexus/pkg/research"
	"github.com/zen-systems/nexus/pkg/search"
)

var (
	configFile  string
	adapterFlag string
	verboseFlag bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "nexus",
		Short: "Confidence-gated research agent",
		Long: `Nexus answers research questions by planning subtasks, searching the
	web iteratively, scoring the gathered evidence, and synthesizing a cited
	answer once confidence clears the acceptance bar.`,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "path to config file")
	rootCmd.PersistentFlags().StringVar(&adapterFlag, "adapter", "", "override all roles to this adapter")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "verbose logging")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(researchCmd())
	rootCmd.AddCommand(modelsCmd())
	rootCmd.AddCommand(runsCmd())
	rootCmd.AddCommand(validateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	if configFile != "" {
		return config.LoadFile(configFile)
	}
	return config.Load()
}

func buildLogger() (*zap.Logger, error) {
	if verboseFlag {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// buildRegistry registers every adapter with a configured key plus the
// mock adapter, then binds roles from config. The --adapter flag rebinds
// everything to one adapter.
func buildRegistry(cfg *config.Config) (*adapter.Registry, error) {
	registry := adapter.NewRegistry(nil)
	registry.Register(adapter.NewMockAdapter())

	if cfg.AnthropicAPIKey != "" {
		a, err := adapter.NewAnthropicAdapter(cfg.AnthropicAPIKey)
		if err != nil {
			return nil, err
		}
		registry.Register(a)
	}
	if cfg.OpenAIAPIKey != "" {
		a, err := adapter.NewOpenAIAdapter(cfg.OpenAIAPIKey)
		if err != nil {
			return nil, err
		}
		registry.Register(a)
	}
	if cfg.GoogleAPIKey != "" {
		a, err := adapter.NewGoogleAdapter(cfg.GoogleAPIKey)
		if err != nil {
			return nil, err
		}
		registry.Register(a)
	}

	if adapterFlag != "" {
		if err := registry.Switch(adapterFlag, "", ""); err != nil {
			return nil, err
		}
		return registry, nil
	}

	for name, target := range cfg.Roles.Targets() {
		if err := registry.Bind(adapter.Role(name), target.Adapter, target.Model); err != nil {
			return nil, fmt.Errorf("binding role %s: %w", name, err)
		}
	}
	return registry, nil
}

func buildProvider(cfg *config.Config) search.Provider {
	return search.NewTavilyProvider(search.WithTavilyAPIKey(cfg.TavilyAPIKey))
}

func serveCmd() *cobra.Command {
	var listenAddr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger, err := buildLogger()
			if err != nil {
				return err
			}
			defer logger.Sync()

			registry, err := buildRegistry(cfg)
			if err != nil {
				return err
			}
			provider := buildProvider(cfg)
			archive, err := evidence.NewArchive(cfg.EvidenceDir)
			if err != nil {
				return err
			}
			bus := events.NewBus(cfg.Agent.EventBuffer)
			api := httpapi.NewServer(registry, provider, bus, cfg, archive, logger)

			if listenAddr == "" {
				listenAddr = cfg.ListenAddr
			}
			srv := &http.Server{
				Addr:              listenAddr,
				Handler:           api.Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				logger.Info("listening", zap.String("addr", listenAddr))
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}
			logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().StringVar(&listenAddr, "listen", "", "listen address (default from config)")
	return cmd
}

func researchCmd() *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "research [question]",
		Short: "Answer a question from the command line",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			question := strings.TrimSpace(strings.Join(args, " "))
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if len(question) > cfg.Agent.MaxQuestionLen {
				return fmt.Errorf("question exceeds %d characters", cfg.Agent.MaxQuestionLen)
			}
			logger, err := buildLogger()
			if err != nil {
				return err
			}
			defer logger.Sync()

			registry, err := buildRegistry(cfg)
			if err != nil {
				return err
			}
			roles, err := registry.Snapshot()
			if err != nil {
				return err
			}
			archive, err := evidence.NewArchive(cfg.EvidenceDir)
			if err != nil {
				return err
			}

			bus := events.NewBus(cfg.Agent.EventBuffer)
			runID := uuid.NewString()
			if verboseFlag {
				go printProgress(bus.Subscribe(runID, cfg.Agent.EventBuffer))
			}

			runner := research.NewRunner(roles, buildProvider(cfg), bus, research.Options{
				MaxIterations:       cfg.Agent.MaxIterations,
				ConfidenceThreshold: cfg.Agent.ConfidenceThreshold,
				SynthesisWindow:     cfg.Agent.SynthesisWindow,
				MinSources:          cfg.Agent.MinSourcesRequired,
				SearchTimeout:       cfg.Agent.SearchTimeout(),
				GenerateTimeout:     cfg.Agent.GenerateTimeout(),
			}, logger, research.WithArchiver(archive))

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			res, err := runner.Run(ctx, runID, question)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return fmt.Errorf("run cancelled")
				}
				return err
			}

			if jsonOut {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]any{
					"run_id":             runID,
					"answer":             res.Answer,
					"iterations":         res.State.Iteration,
					"confidence_history": res.State.ConfidenceHistory,
					"queries_used":       res.State.QueriesUsed,
					"duration_ms":        res.DurationMS,
				})
			}

			printAnswer(res)
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "print the full result as JSON")
	return cmd
}

func printProgress(ch chan events.Event) {
	for evt := range ch {
		fmt.Fprintf(os.Stderr, "[%s] %s\n", evt.Type, evt.Marshal())
		if evt.Type.Terminal() {
			return
		}
	}
}

func printAnswer(res *research.Result) {
	fmt.Println(res.Answer.Text)
	fmt.Println()
	if len(res.Answer.Citations) > 0 {
		fmt.Println("Sources:")
		for _, c := range res.Answer.Citations {
			fmt.Printf("  [%d] %s (%s, %s)\n", c.ID, c.Title, c.URL, c.Tier)
		}
	}
	for _, con := range res.Answer.Contradictions {
		fmt.Printf("Contradiction: %s vs %s (%s)\n", con.ClaimA, con.ClaimB, con.Resolution)
	}
	for _, cv := range res.Answer.Caveats {
		fmt.Printf("Caveat: %s\n", cv)
	}
	fmt.Printf("\nConfidence: %d/100", res.Answer.Confidence)
	if res.Answer.Forced {
		fmt.Print(" (budget exhausted)")
	}
	fmt.Printf(" after %d iterations in %.1fs\n",
		res.State.Iteration, float64(res.DurationMS)/1000)
}

func modelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List adapters, models, and role bindings",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			registry, err := buildRegistry(cfg)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ADAPTER\tMODELS")
			for _, info := range registry.Adapters() {
				models := make([]string, 0, len(info.Models))
				for _, m := range info.Models {
					models = append(models, m.ID)
				}
				fmt.Fprintf(w, "%s\t%s\n", info.Name, strings.Join(models, ", "))
			}
			fmt.Fprintln(w, "\nROLE\tADAPTER\tMODEL")
			for _, role := range adapter.Roles() {
				if b, ok := registry.Active()[role]; ok {
					fmt.Fprintf(w, "%s\t%s\t%s\n", role, b.Adapter, b.Model)
				}
			}
			return w.Flush()
		},
	}
}

func runsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "runs",
		Short: "List archived research runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			archive, err := evidence.NewArchive(cfg.EvidenceDir)
			if err != nil {
				return err
			}
			records, err := archive.ListRuns()
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "RUN\tARCHIVED\tITER\tCONF\tQUESTION")
			for _, r := range records {
				q := r.Question
				if len(q) > 60 {
					q = q[:57] + "..."
				}
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\n",
					r.ID, r.ArchivedAt.Format(time.RFC3339), r.Iterations, r.Confidence, q)
			}
			return w.Flush()
		},
	}
}

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			fmt.Printf("configuration valid\n")
			fmt.Printf("  max_iterations:       %d\n", cfg.Agent.MaxIterations)
			fmt.Printf("  confidence_threshold: %d\n", cfg.Agent.ConfidenceThreshold)
			fmt.Printf("  synthesis_window:     %d\n", cfg.Agent.SynthesisWindow)
			fmt.Printf("  evidence_dir:         %s\n", cfg.EvidenceDir)
			for name, target := range cfg.Roles.Targets() {
				fmt.Printf("  role %-12s %s/%s\n", name+":", target.Adapter, target.Model)
			}
			adapters := []string{"mock"}
			for _, name := range []string{"anthropic", "openai", "google"} {
				if cfg.HasAdapter(name) {
					adapters = append(adapters, name)
				}
			}
			fmt.Printf("  adapters with keys:   %s\n", strings.Join(adapters, ", "))
			return nil
		},
	}
}
