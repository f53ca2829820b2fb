package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/jonathan/erc-protest-agent/internal/pipeline"
	"github.com/jonathan/erc-protest-agent/internal/types"
)

// Event names on the package stream.
const (
	eventProgress = "progress"
	eventResult   = "result"
	eventError    = "error"
)

var errStreamingUnsupported = errors.New("response writer cannot stream")

// progressStream writes one package run as server-sent events. The pipeline
// may report progress from its own goroutine, so writes are serialized.
type progressStream struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
	seq     int
}

// openProgressStream commits the event-stream headers and flushes them so
// clients see the connection before the first stage finishes.
func openProgressStream(w http.ResponseWriter) (*progressStream, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, errStreamingUnsupported
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	return &progressStream{w: w, flusher: flusher}, nil
}

func (s *progressStream) progress(ev pipeline.ProgressEvent) error {
	return s.send(eventProgress, ev)
}

func (s *progressStream) result(res *types.PackageResult) error {
	return s.send(eventResult, res)
}

func (s *progressStream) failure(err error) error {
	return s.send(eventError, pipeline.AsFailure(err))
}

// send frames payload as JSON under a monotonically increasing id.
func (s *progressStream) send(name string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	if _, err := fmt.Fprintf(s.w, "id: %d\nevent: %s\ndata: %s\n\n", s.seq, name, data); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}
