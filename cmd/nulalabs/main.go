// Command nulalabs runs the data-analysis chat backend.
package main

import (
	stdctx "context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kristerus/nulalabs/internal/config"
	convctx "github.com/kristerus/nulalabs/internal/context"
	"github.com/kristerus/nulalabs/internal/conversation"
	"github.com/kristerus/nulalabs/internal/llm"
	"github.com/kristerus/nulalabs/internal/logging"
	"github.com/kristerus/nulalabs/internal/mcp"
	"github.com/kristerus/nulalabs/internal/plan"
	"github.com/kristerus/nulalabs/internal/server"
	"github.com/kristerus/nulalabs/internal/toolcache"
	"github.com/kristerus/nulalabs/internal/workflow"
)

const systemPrompt = `You are a data-analysis assistant for mass-spectrometry experiments.
Think step by step, call tools to load and analyze data, and present findings clearly.
Annotate multi-step work with [WORKFLOW: type="..." phase="..." insight="..."] tags.
Separate internal reasoning from your final answer with ---ANSWER---.
Suggest one follow-up question after ---FOLLOWUP--- when natural.`

func main() {
	var configPath string

	root := &cobra.Command{
		Use:   "nulalabs",
		Short: "Data-analysis chat backend",
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath)
		},
	}
	root.AddCommand(serve)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runServe(configPath string) error {
	logger := logging.NewComponentLogger("main")

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	client := llm.NewAnthropicClient(llm.AnthropicConfig{
		APIKey:  cfg.Model.APIKey,
		BaseURL: cfg.Model.BaseURL,
		Model:   cfg.Model.Name,
	}, logging.NewComponentLogger("llm"))

	ctx, cancel := stdctx.WithCancel(stdctx.Background())
	defer cancel()

	pool := mcp.NewPool(logging.NewComponentLogger("mcp"))
	if cfg.MCP.ConfigFile != "" {
		data, err := os.ReadFile(cfg.MCP.ConfigFile)
		if err != nil {
			return fmt.Errorf("read mcp config: %w", err)
		}
		mcpCfg, err := mcp.ParseConfig(data)
		if err != nil {
			return err
		}
		if err := pool.Connect(ctx, mcpCfg); err != nil {
			return err
		}
	}
	defer pool.CloseAll()

	templates := convctx.DefaultTemplates()
	if cfg.Context.TemplatesFile != "" {
		data, err := os.ReadFile(cfg.Context.TemplatesFile)
		if err != nil {
			return fmt.Errorf("read templates: %w", err)
		}
		if templates, err = convctx.LoadTemplates(data); err != nil {
			return err
		}
	}

	summarizer := convctx.NewSummarizerWithTemplates(client, templates, logging.NewComponentLogger("context"))
	enricher := workflow.NewEnricher(client, logging.NewComponentLogger("workflow"))
	cache := toolcache.New(cfg.Cache.MaxEntries, cfg.Cache.TTL, logging.NewComponentLogger("toolcache"))

	var plans *plan.Store
	if cfg.Plans.Enabled {
		if plans, err = plan.NewStore(cfg.Plans.Dir, logging.NewComponentLogger("plan")); err != nil {
			return err
		}
	}

	engine := conversation.NewEngine(client, pool, cache, summarizer, enricher, conversation.Config{
		SystemPrompt:         systemPrompt,
		MaxTokens:            cfg.Model.MaxTokens,
		SummarizationTrigger: cfg.Context.SummarizationTrigger,
		KeepRecent:           cfg.Context.KeepRecent,
	}, logging.NewComponentLogger("conversation"))

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      server.New(engine, enricher, plans, logging.NewComponentLogger("server")).Router(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // streaming responses
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case <-quit:
	}

	logger.Info("shutting down")
	shutdownCtx, shutdownCancel := stdctx.WithTimeout(stdctx.Background(), 10*time.Second)
	defer shutdownCancel()
	return srv.Shutdown(shutdownCtx)
}
