package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jonathan/erc-protest-agent/internal/observability"
	"github.com/jonathan/erc-protest-agent/internal/pipeline"
	"github.com/jonathan/erc-protest-agent/internal/types"
)

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Build one protest package from a shared conversation",
	Long: `Fetches the shared conversation, extracts the transcript and order facts,
composes the protest letter, renders every cited source and writes the package
archive. With a tracking ID the package is uploaded and the run recorded in the
configured tracking store.`,
	RunE: runProcess,
}

var (
	procURL              string
	procBusinessName     string
	procEIN              string
	procLocation         string
	procPeriod           string
	procBusinessType     string
	procNAICS            string
	procTrackingID       string
	procNewTrackingID    bool
	procPreferGenerative bool
	procMode             string
	procExample          string
	procOutputDir        string
	procJSON             bool
)

func init() {
	processCmd.Flags().StringVarP(&procURL, "url", "u", "", "Shared conversation URL (required)")
	processCmd.Flags().StringVar(&procBusinessName, "business-name", "", "Business name (required)")
	processCmd.Flags().StringVar(&procEIN, "ein", "", "Employer identification number (required)")
	processCmd.Flags().StringVar(&procLocation, "location", "", "City, State")
	processCmd.Flags().StringVar(&procPeriod, "period", "", "Claim quarter, e.g. \"Q2 2020\" (required)")
	processCmd.Flags().StringVar(&procBusinessType, "business-type", "", "Business category (derived from --naics when empty)")
	processCmd.Flags().StringVar(&procNAICS, "naics", "", "NAICS code")
	processCmd.Flags().StringVar(&procTrackingID, "tracking-id", "", "Tracking ID for upload and status reporting")
	processCmd.Flags().BoolVar(&procNewTrackingID, "new-tracking-id", false, "Generate a tracking ID when --tracking-id is empty")
	processCmd.Flags().BoolVar(&procPreferGenerative, "prefer-generative", false, "Try model-based transcript extraction first")
	processCmd.Flags().StringVar(&procMode, "mode", "", "Letter mode: facts or transcript (default from config)")
	processCmd.Flags().StringVar(&procExample, "example", "", "Path to an example letter (default: embedded example)")
	processCmd.Flags().StringVarP(&procOutputDir, "out", "o", "", "Output directory (default from config)")
	processCmd.Flags().BoolVar(&procJSON, "json", false, "Print the result as JSON")

	_ = processCmd.MarkFlagRequired("url")
	_ = processCmd.MarkFlagRequired("business-name")
	_ = processCmd.MarkFlagRequired("ein")
	_ = processCmd.MarkFlagRequired("period")

	rootCmd.AddCommand(processCmd)
}

func processRequest() types.ExtractionRequest {
	trackingID := procTrackingID
	if trackingID == "" && procNewTrackingID {
		trackingID = types.NewTrackingID()
	}
	return types.ExtractionRequest{
		ConversationURL: procURL,
		Profile: types.BusinessProfile{
			Name:             procBusinessName,
			TaxID:            procEIN,
			Location:         procLocation,
			Period:           procPeriod,
			BusinessCategory: procBusinessType,
			NAICSCode:        procNAICS,
		},
		TrackingID: trackingID,
	}
}

func runProcess(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	overrides := pipelineOverrides{
		Mode:        procMode,
		ExamplePath: procExample,
		OutputDir:   procOutputDir,
	}
	if cmd.Flags().Changed("prefer-generative") {
		overrides.PreferGenerative = &procPreferGenerative
	}
	p, err := a.pipeline(overrides)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	result, err := p.RunWithProgress(ctx, processRequest(), func(event pipeline.ProgressEvent) {
		logger.Info(event.Message, zap.String("stage", string(event.Stage)))
	})
	if err != nil {
		failure := pipeline.AsFailure(err)
		if procJSON {
			_ = printJSON(out, failure)
		} else {
			observability.NewPrinter(out).PrintFailure(string(failure.Stage), string(failure.State), failure.Message)
		}
		return fmt.Errorf("%s: %s", failure.Stage, failure.Message)
	}

	if procJSON {
		return printJSON(out, result)
	}
	observability.NewPrinter(out).PrintPackageResult(result)
	return nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
