package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jonathan/erc-protest-agent/internal/pipeline"
	"github.com/jonathan/erc-protest-agent/internal/types"
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Build packages for every request in a JSON file",
	Long: `Reads a JSON array of requests, each shaped like the POST /packages body, and
builds them with bounded parallelism. One line of JSON is printed per request.
A failed request does not stop the others.`,
	RunE: runBatch,
}

var (
	batchFile          string
	batchParallel      int
	batchNewTrackingID bool
)

func init() {
	batchCmd.Flags().StringVarP(&batchFile, "file", "f", "", "Path to a JSON array of requests (required)")
	batchCmd.Flags().IntVarP(&batchParallel, "parallel", "p", 0, "Requests built at once (default: server.max_concurrent)")
	batchCmd.Flags().BoolVar(&batchNewTrackingID, "new-tracking-id", false, "Generate tracking IDs for requests without one")
	_ = batchCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(batchCmd)
}

// batchOutcome is one output line.
type batchOutcome struct {
	Index      int                     `json:"index"`
	TrackingID string                  `json:"tracking_id,omitempty"`
	Result     *types.PackageResult    `json:"result,omitempty"`
	Failure    *pipeline.FailureResult `json:"failure,omitempty"`
}

func readBatch(r io.Reader, newIDs bool) ([]types.ExtractionRequest, error) {
	var reqs []types.ExtractionRequest
	if err := json.NewDecoder(r).Decode(&reqs); err != nil {
		return nil, fmt.Errorf("failed to parse batch file: %w", err)
	}
	if len(reqs) == 0 {
		return nil, fmt.Errorf("batch file contains no requests")
	}
	if newIDs {
		for i := range reqs {
			if reqs[i].TrackingID == "" {
				reqs[i].TrackingID = types.NewTrackingID()
			}
		}
	}
	return reqs, nil
}

func runBatch(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	f, err := os.Open(batchFile)
	if err != nil {
		return fmt.Errorf("failed to open batch file: %w", err)
	}
	reqs, err := readBatch(f, batchNewTrackingID)
	_ = f.Close()
	if err != nil {
		return err
	}

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	p, err := a.pipeline(pipelineOverrides{})
	if err != nil {
		return err
	}

	parallel := batchParallel
	if parallel < 1 {
		parallel = cfg.Server.MaxConcurrent
	}

	outcomes := make([]batchOutcome, len(reqs))
	g := new(errgroup.Group)
	g.SetLimit(parallel)
	for i, req := range reqs {
		g.Go(func() error {
			outcome := batchOutcome{Index: i, TrackingID: req.TrackingID}
			result, err := p.Run(ctx, req)
			if err != nil {
				failure := pipeline.AsFailure(err)
				outcome.Failure = &failure
			} else {
				outcome.Result = result
			}
			outcomes[i] = outcome
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	enc := json.NewEncoder(cmd.OutOrStdout())
	for _, o := range outcomes {
		if o.Failure != nil {
			failed++
		}
		if err := enc.Encode(o); err != nil {
			return err
		}
	}

	logger.Info("batch complete",
		zap.Int("requests", len(reqs)),
		zap.Int("failed", failed),
		zap.Int("parallel", parallel))
	if failed > 0 {
		return fmt.Errorf("%d of %d requests failed", failed, len(reqs))
	}
	return nil
}
