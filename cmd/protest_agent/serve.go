package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonathan/erc-protest-agent/internal/server"
	"github.com/jonathan/erc-protest-agent/internal/server/ratelimit"
)

var (
	servePort int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long:  `Start an HTTP server that builds protest packages and research prompts on request.`,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (default from config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	p, err := a.pipeline(pipelineOverrides{})
	if err != nil {
		return err
	}

	port := cfg.Server.Port
	if cmd.Flags().Changed("port") {
		port = servePort
	}

	var rl *ratelimit.Config
	if cfg.Server.RateLimit.Enabled {
		rl = ratelimit.DefaultConfig(cfg.Server.RateLimit.PackagesPerHour, cfg.Server.RateLimit.Whitelist)
	}

	searcher, err := newSearcher(ctx, cfg.Research, logger)
	if err != nil {
		return err
	}
	var sources server.SourceFinder
	if searcher != nil {
		sources = searcher
	}

	srv, err := server.New(server.Config{
		Port:            port,
		MaxConcurrent:   cfg.Server.MaxConcurrent,
		CORSOrigins:     cfg.Server.CORSOrigins,
		RateLimit:       rl,
		ResultsPerQuery: cfg.Research.ResultsPerQuery,
	}, p, a.llm, sources, logger)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	return srv.Start(ctx)
}
