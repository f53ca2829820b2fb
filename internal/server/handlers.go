package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/jonathan/erc-protest-agent/internal/pipeline"
	"github.com/jonathan/erc-protest-agent/internal/research"
	"github.com/jonathan/erc-protest-agent/internal/types"
)

// PromptRequest is the body of POST /prompts.
type PromptRequest struct {
	research.Request
	Customize bool `json:"customize,omitempty"`
	Sources   bool `json:"sources,omitempty"`
}

// PromptResponse is the response of POST /prompts.
type PromptResponse struct {
	Prompt     string            `json:"prompt"`
	BasePrompt string            `json:"base_prompt"`
	Customized bool              `json:"customized"`
	Sources    []research.Source `json:"sources,omitempty"`
	Warnings   []string          `json:"warnings,omitempty"`
}

// FailureResponse is returned when a package build fails.
type FailureResponse struct {
	Error pipeline.FailureResult `json:"error"`
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return &ErrValidation{Message: "request body is empty"}
		}
		return &ErrValidation{Message: "invalid request body: " + err.Error()}
	}
	return nil
}

// acquire waits for a build slot. It reports false when the client went
// away first.
func (s *Server) acquire(r *http.Request) bool {
	if err := s.slots.Acquire(r.Context(), 1); err != nil {
		s.logger.Info("client left while waiting for a build slot", zap.Error(err))
		return false
	}
	return true
}

// handleCreatePackage builds a package and returns the result when done.
func (s *Server) handleCreatePackage(w http.ResponseWriter, r *http.Request) {
	var req types.ExtractionRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.errorResponse(w, HTTPStatus(err), err.Error())
		return
	}

	if !s.acquire(r) {
		s.errorResponse(w, http.StatusServiceUnavailable, "request cancelled while queued")
		return
	}
	defer s.slots.Release(1)

	result, err := s.runner.RunWithProgress(r.Context(), req, nil)
	if err != nil {
		s.jsonResponse(w, HTTPStatus(err), FailureResponse{Error: pipeline.AsFailure(err)})
		return
	}
	s.archives.put(result.RequestID, result.ArchivePath)
	s.jsonResponse(w, http.StatusOK, result)
}

// handleCreatePackageStream builds a package and streams progress via SSE.
// The stream ends with one result or error event.
func (s *Server) handleCreatePackageStream(w http.ResponseWriter, r *http.Request) {
	var req types.ExtractionRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.errorResponse(w, HTTPStatus(err), err.Error())
		return
	}

	stream, err := openProgressStream(w)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	if !s.acquire(r) {
		return
	}
	defer s.slots.Release(1)

	result, err := s.runner.RunWithProgress(r.Context(), req, func(event pipeline.ProgressEvent) {
		if event.Stage == pipeline.StateFailed {
			// the error event below carries the failure
			return
		}
		if werr := stream.progress(event); werr != nil {
			s.logger.Debug("failed to write SSE event", zap.Error(werr))
		}
	})
	if err != nil {
		if werr := stream.failure(err); werr != nil {
			s.logger.Debug("failed to write SSE error", zap.Error(werr))
		}
		return
	}

	s.archives.put(result.RequestID, result.ArchivePath)
	if werr := stream.result(result); werr != nil {
		s.logger.Debug("failed to write SSE result", zap.Error(werr))
	}
}

// handleArchive serves a package archive built by this process.
func (s *Server) handleArchive(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	path, ok := s.archives.get(id)
	if !ok {
		err := &ErrPackageNotFound{RequestID: id}
		s.errorResponse(w, HTTPStatus(err), err.Error())
		return
	}

	f, err := os.Open(path)
	if err != nil {
		s.logger.Warn("archive no longer available", zap.String("request_id", id), zap.Error(err))
		s.errorResponse(w, http.StatusGone, "archive no longer available")
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "failed to read archive")
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(path)))
	http.ServeContent(w, r, filepath.Base(path), info.ModTime(), f)
}

// handlePrompt returns the research prompt for a business, optionally
// customized by the model and with candidate order sources.
func (s *Server) handlePrompt(w http.ResponseWriter, r *http.Request) {
	var req PromptRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.errorResponse(w, HTTPStatus(err), err.Error())
		return
	}

	base, err := research.BuildPrompt(req.Request)
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	resp := PromptResponse{Prompt: base, BasePrompt: base}
	if req.Customize {
		if s.llm == nil {
			resp.Warnings = append(resp.Warnings, "customization unavailable: no model configured")
		} else {
			resp.Prompt = research.Customize(r.Context(), s.llm, base, req.Request, s.logger)
			resp.Customized = resp.Prompt != base
		}
	}

	if req.Sources {
		if s.sources == nil {
			resp.Warnings = append(resp.Warnings, "source search unavailable: no search engine configured")
		} else {
			sources, err := s.sources.FindOrderSources(r.Context(), req.Request, s.cfg.ResultsPerQuery)
			if err != nil {
				s.logger.Warn("order source search failed", zap.Error(err))
				resp.Warnings = append(resp.Warnings, "source search failed")
			}
			resp.Sources = sources
		}
	}

	s.jsonResponse(w, http.StatusOK, resp)
}
