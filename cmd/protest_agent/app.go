package main

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/jonathan/erc-protest-agent/internal/config"
	"github.com/jonathan/erc-protest-agent/internal/fetch"
	"github.com/jonathan/erc-protest-agent/internal/letter"
	"github.com/jonathan/erc-protest-agent/internal/llm"
	"github.com/jonathan/erc-protest-agent/internal/pipeline"
	"github.com/jonathan/erc-protest-agent/internal/research"
	"github.com/jonathan/erc-protest-agent/internal/storage"
	"github.com/jonathan/erc-protest-agent/internal/tracking"
)

// app holds the collaborators built from configuration.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	llm      llm.Client
	browser  *fetch.Browser
	reporter tracking.Reporter
	sink     storage.Sink
}

// pipelineOverrides are per-command changes to the configured pipeline.
type pipelineOverrides struct {
	PreferGenerative *bool
	Mode             string
	ExamplePath      string
	OutputDir        string
}

func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	a := &app{
		cfg:     cfg,
		logger:  logger,
		browser: fetch.NewBrowser(browserOptions(cfg.Browser), logger),
	}

	client, err := newLLMClient(ctx, cfg.LLM, logger)
	if err != nil {
		return nil, err
	}
	a.llm = client

	reporter, err := newReporter(ctx, cfg.Tracking, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.reporter = reporter

	sink, err := newSink(ctx, cfg.Storage, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.sink = sink

	return a, nil
}

// Close releases the model client and tracking store.
func (a *app) Close() {
	var errs []error
	if a.llm != nil {
		errs = append(errs, a.llm.Close())
	}
	if a.reporter != nil {
		errs = append(errs, a.reporter.Close())
	}
	if err := errors.Join(errs...); err != nil {
		a.logger.Warn("failed to release resources", zap.Error(err))
	}
}

func (a *app) pipeline(o pipelineOverrides) (*pipeline.Pipeline, error) {
	mode := a.cfg.Letter.Mode
	if o.Mode != "" {
		mode = o.Mode
	}
	parsedMode, err := letter.ParseMode(mode)
	if err != nil {
		return nil, err
	}

	examplePath := a.cfg.Letter.ExamplePath
	if o.ExamplePath != "" {
		examplePath = o.ExamplePath
	}
	example, err := letter.LoadExample(examplePath)
	if err != nil {
		return nil, err
	}

	preferGenerative := a.cfg.LLM.PreferGenerativeExtraction
	if o.PreferGenerative != nil {
		preferGenerative = *o.PreferGenerative
	}

	outputDir := a.cfg.Output.Dir
	if o.OutputDir != "" {
		outputDir = o.OutputDir
	}

	return pipeline.New(pipeline.Deps{
		Launch:   pipeline.BrowserLauncher(a.browser),
		LLM:      a.llm,
		Reporter: a.reporter,
		Sink:     a.sink,
		Logger:   a.logger,
	}, pipeline.Options{
		OutputDir:        outputDir,
		RequestTimeout:   a.cfg.Server.RequestTimeout,
		RequireKnownHost: a.cfg.Server.RequireKnownHost,
		PreferGenerative: preferGenerative,
		SanitizeMaxBytes: a.cfg.LLM.SanitizeMaxBytes,
		Example:          example,
		Letter: letter.Options{
			Mode:           parsedMode,
			Timeout:        a.cfg.LLM.GenerationTimeout,
			Signatory:      a.cfg.Letter.Signatory,
			SignatoryTitle: a.cfg.Letter.SignatoryTitle,
		},
	})
}

func browserOptions(c config.BrowserConfig) fetch.BrowserOptions {
	opts := fetch.DefaultBrowserOptions()
	opts.ExecPath = c.ExecPath
	opts.Headless = c.Headless
	opts.SettleDelay = c.SettleDelay
	opts.Navigation = fetch.NewNavPolicy(c.NetworkIdleTimeout, c.DOMContentTimeout, c.CommitTimeout)
	return opts
}

// newLLMClient returns nil without an API key; letters then use the
// fallback template and only the markup strategies extract transcripts.
func newLLMClient(ctx context.Context, c config.LLMConfig, logger *zap.Logger) (llm.Client, error) {
	apiKey := c.ActiveAPIKey()
	if apiKey == "" {
		logger.Warn("no model API key configured, letters will use the fallback template",
			zap.String("provider", c.Provider))
		return nil, nil
	}
	client, err := llm.NewClient(ctx, llm.ConfigFor(llm.Provider(c.Provider), c.Models, c.GenerationTimeout), apiKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s client: %w", c.Provider, err)
	}
	return client, nil
}

func googleOptions(credentialsFile string) []option.ClientOption {
	if credentialsFile == "" {
		return nil
	}
	return []option.ClientOption{option.WithCredentialsFile(credentialsFile)}
}

func newReporter(ctx context.Context, c config.TrackingConfig, logger *zap.Logger) (tracking.Reporter, error) {
	switch c.Backend {
	case config.BackendPostgres:
		r, err := tracking.ConnectPostgres(ctx, c.DatabaseURL)
		if err != nil {
			return nil, err
		}
		logger.Info("tracking runs in postgres")
		return r, nil
	case config.BackendSheets:
		r, err := tracking.NewSheetsReporter(ctx, c.SpreadsheetID, c.SheetName, logger, googleOptions(c.CredentialsFile)...)
		if err != nil {
			return nil, err
		}
		logger.Info("tracking runs in google sheets", zap.String("sheet", c.SheetName))
		return r, nil
	default:
		return tracking.NopReporter{}, nil
	}
}

func newSink(ctx context.Context, c config.StorageConfig, logger *zap.Logger) (storage.Sink, error) {
	switch c.Backend {
	case config.BackendDrive:
		return storage.NewDriveSink(ctx, storage.DriveOptions{
			RootFolderID:   c.DriveRootFolderID,
			ShareWithEmail: c.ShareWithEmail,
		}, logger, googleOptions(c.CredentialsFile)...)
	case config.BackendS3:
		return storage.NewS3Sink(ctx, storage.S3Options{
			Bucket:     c.S3Bucket,
			Prefix:     c.S3Prefix,
			Region:     c.S3Region,
			PresignTTL: c.PresignTTL,
		}, logger)
	default:
		return storage.NopSink{}, nil
	}
}

// newSearcher returns nil when order-source search is not configured.
func newSearcher(ctx context.Context, c config.ResearchConfig, logger *zap.Logger) (*research.Searcher, error) {
	if !c.SearchEnabled() {
		return nil, nil
	}
	return research.NewSearcher(ctx, c.SearchAPIKey, c.SearchEngineID, logger)
}
