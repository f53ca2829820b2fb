// Package tracking reports the terminal status of protest runs to an external
// tracking store. The pipeline only writes to the store; it never reads from it.
package tracking

import (
	"context"
	"fmt"
	"time"

	"github.com/jonathan/erc-protest-agent/internal/types"
)

// Status values written to the store.
const (
	StatusPDFDone = "PDF done"
	StatusFailed  = "Failed"
)

// Report is the terminal record of one run.
type Report struct {
	RequestID   string
	TrackingID  string
	Profile     types.BusinessProfile
	Status      string
	Timestamp   time.Time
	LetterPath  string
	ArchivePath string
	Links       *types.ShareLinks
	// Error is the failure message when Status is StatusFailed.
	Error string
}

// Reporter writes run reports to a tracking store.
type Reporter interface {
	Report(ctx context.Context, r Report) error
	Close() error
}

// Error represents a failed write to the tracking store.
type Error struct {
	Backend    string
	TrackingID string
	Message    string
	Cause      error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("tracking error (%s, %s): %s: %v", e.Backend, e.TrackingID, e.Message, e.Cause)
	}
	return fmt.Sprintf("tracking error (%s, %s): %s", e.Backend, e.TrackingID, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// NopReporter discards every report.
type NopReporter struct{}

// Report does nothing.
func (NopReporter) Report(context.Context, Report) error { return nil }

// Close does nothing.
func (NopReporter) Close() error { return nil }

// timestamp formats report times the same way for every backend.
func timestamp(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(time.RFC3339)
}
