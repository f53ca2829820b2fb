package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jonathan/erc-protest-agent/internal/facts"
	"github.com/jonathan/erc-protest-agent/internal/fetch"
	"github.com/jonathan/erc-protest-agent/internal/observability"
	"github.com/jonathan/erc-protest-agent/internal/transcript"
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Fetch a shared conversation and print its transcript",
	RunE:  runExtract,
}

var (
	extractURL              string
	extractPreferGenerative bool
	extractJSON             bool
	extractPeriod           string
)

func init() {
	extractCmd.Flags().StringVarP(&extractURL, "url", "u", "", "Shared conversation URL (required)")
	extractCmd.Flags().BoolVar(&extractPreferGenerative, "prefer-generative", false, "Try model-based extraction first")
	extractCmd.Flags().BoolVar(&extractJSON, "json", false, "Print the transcript as JSON")
	extractCmd.Flags().StringVar(&extractPeriod, "period", "", "Claim quarter; also lists the order statements found for it")
	_ = extractCmd.MarkFlagRequired("url")
	rootCmd.AddCommand(extractCmd)
}

func runExtract(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	client, err := newLLMClient(ctx, cfg.LLM, logger)
	if err != nil {
		return err
	}
	if client != nil {
		defer client.Close()
	}

	session, err := fetch.NewBrowser(browserOptions(cfg.Browser), logger).Launch(ctx)
	if err != nil {
		return err
	}
	defer session.Close()

	snap, err := session.Snapshot(ctx, extractURL)
	if err != nil {
		return err
	}

	tr := transcript.New(transcript.Options{
		LLM:              client,
		PreferGenerative: extractPreferGenerative || cfg.LLM.PreferGenerativeExtraction,
		SanitizeMaxBytes: cfg.LLM.SanitizeMaxBytes,
	}, logger).Extract(ctx, snap)

	logger.Info("transcript extracted",
		zap.String("strategy", tr.Strategy),
		zap.Int("turns", len(tr.Turns)),
		zap.Int("chars", len(tr.Text)))

	if extractJSON {
		return printJSON(cmd.OutOrStdout(), tr)
	}
	if tr.IsEmpty() {
		return fmt.Errorf("no conversation text found at %s", extractURL)
	}

	printer := observability.NewPrinter(cmd.ErrOrStderr())
	printer.PrintTranscript(tr)
	if extractPeriod != "" {
		printer.PrintFacts(facts.Extract(tr.Text, extractPeriod, facts.DefaultOptions()))
	}
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), tr.String())
	return nil
}
