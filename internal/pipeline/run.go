// Package pipeline sequences the protest stages for one request: capture the
// shared conversation, extract its transcript and facts, compose the letter,
// attach the cited sources and assemble the package.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jonathan/erc-protest-agent/internal/attachments"
	"github.com/jonathan/erc-protest-agent/internal/facts"
	"github.com/jonathan/erc-protest-agent/internal/fetch"
	"github.com/jonathan/erc-protest-agent/internal/letter"
	"github.com/jonathan/erc-protest-agent/internal/llm"
	"github.com/jonathan/erc-protest-agent/internal/logging"
	"github.com/jonathan/erc-protest-agent/internal/metrics"
	"github.com/jonathan/erc-protest-agent/internal/packaging"
	"github.com/jonathan/erc-protest-agent/internal/storage"
	"github.com/jonathan/erc-protest-agent/internal/tracking"
	"github.com/jonathan/erc-protest-agent/internal/transcript"
	"github.com/jonathan/erc-protest-agent/internal/types"
)

// DefaultRequestTimeout bounds a whole run.
const DefaultRequestTimeout = 15 * time.Minute

// reportTimeout bounds the tracking and upload calls made after a run.
const reportTimeout = 60 * time.Second

// Session is one browser process. fetch.Session implements it.
type Session interface {
	Snapshot(ctx context.Context, url string) (*types.PageSnapshot, error)
	RenderURL(ctx context.Context, url string) ([]byte, error)
	RenderHTML(ctx context.Context, html string) ([]byte, error)
	Close() error
}

// Launcher starts a browser session for one run.
type Launcher func(ctx context.Context) (Session, error)

// BrowserLauncher adapts a fetch.Browser to a Launcher.
func BrowserLauncher(b *fetch.Browser) Launcher {
	return func(ctx context.Context) (Session, error) {
		s, err := b.Launch(ctx)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

// Deps are the collaborators a Pipeline is built from. Launch is required;
// the rest may be nil.
type Deps struct {
	Launch   Launcher
	LLM      llm.Client
	Reporter tracking.Reporter
	Sink     storage.Sink
	Logger   *zap.Logger
}

// Options configures a Pipeline.
type Options struct {
	OutputDir        string
	RequestTimeout   time.Duration
	RequireKnownHost bool
	PreferGenerative bool
	SanitizeMaxBytes int
	Letter           letter.Options
	// Example is the worked example letter; empty uses the embedded one.
	Example string
	Facts   facts.Options
}

// Pipeline runs requests. It keeps no state between runs and is safe for
// concurrent use.
type Pipeline struct {
	deps      Deps
	opts      Options
	extractor *transcript.Extractor
	composer  *letter.Composer
	logger    *zap.Logger
}

// New creates a Pipeline.
func New(deps Deps, opts Options) (*Pipeline, error) {
	if deps.Launch == nil {
		return nil, fmt.Errorf("pipeline requires a browser launcher")
	}
	if opts.OutputDir == "" {
		return nil, fmt.Errorf("pipeline requires an output directory")
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}
	if opts.Facts.MaxFacts <= 0 {
		opts.Facts = facts.DefaultOptions()
	}
	if deps.Reporter == nil {
		deps.Reporter = tracking.NopReporter{}
	}
	if deps.Sink == nil {
		deps.Sink = storage.NopSink{}
	}
	logger := logging.OrNop(deps.Logger)

	return &Pipeline{
		deps: deps,
		opts: opts,
		extractor: transcript.New(transcript.Options{
			LLM:              deps.LLM,
			PreferGenerative: opts.PreferGenerative,
			SanitizeMaxBytes: opts.SanitizeMaxBytes,
		}, logger),
		composer: letter.New(deps.LLM, opts.Example, opts.Letter, logger),
		logger:   logger,
	}, nil
}

// Run processes one request. It returns either a complete package result or
// a *Error; a failed run leaves no output directory behind.
func (p *Pipeline) Run(ctx context.Context, req types.ExtractionRequest) (*types.PackageResult, error) {
	return p.RunWithProgress(ctx, req, nil)
}

// RunWithProgress is Run with a callback for every state transition.
func (p *Pipeline) RunWithProgress(ctx context.Context, req types.ExtractionRequest, onProgress ProgressCallback) (*types.PackageResult, error) {
	requestID := uuid.NewString()
	r := &run{
		p:          p,
		req:        req,
		requestID:  requestID,
		dir:        filepath.Join(p.opts.OutputDir, requestID[:8]),
		state:      StateIdle,
		onProgress: onProgress,
		logger: p.logger.With(
			zap.String("request_id", requestID),
			zap.String("tracking_id", req.TrackingID)),
	}

	metrics.ActiveRuns.Inc()
	defer metrics.ActiveRuns.Dec()

	ctx, cancel := context.WithTimeout(ctx, p.opts.RequestTimeout)
	defer cancel()

	result, err := r.execute(ctx)
	if err != nil {
		r.failed(ctx, err)
		return nil, err
	}
	r.succeeded(ctx, result)
	return result, nil
}

// run holds the state of one request.
type run struct {
	p          *Pipeline
	req        types.ExtractionRequest
	requestID  string
	dir        string
	state      State
	stageStart time.Time
	warnings   []string
	onProgress ProgressCallback
	logger     *zap.Logger
}

func (r *run) emit(message string, content any) {
	if r.onProgress != nil {
		r.onProgress(ProgressEvent{
			Stage:     r.state,
			Message:   message,
			RequestID: r.requestID,
			Content:   content,
		})
	}
}

// enter closes the current stage and moves to the next one.
func (r *run) enter(state State, message string) {
	r.leave()
	r.state = state
	r.stageStart = time.Now()
	r.logger.Info(message, zap.String("stage", string(state)))
	r.emit(message, nil)
}

func (r *run) leave() {
	if r.stageStart.IsZero() {
		return
	}
	metrics.StageDuration.WithLabelValues(string(r.state)).Observe(time.Since(r.stageStart).Seconds())
	r.stageStart = time.Time{}
}

func (r *run) warn(code Code, format string, args ...any) {
	w := warning(code, format, args...)
	r.warnings = append(r.warnings, w)
	r.logger.Warn("stage degraded", zap.String("stage", string(r.state)), zap.String("warning", w))
}

// fail builds the run's error. A context that has ended takes precedence over
// the stage's own code.
func (r *run) fail(ctx context.Context, code Code, message string, cause error) *Error {
	if c, ok := contextCode(ctx); ok {
		code = c
		message = fmt.Sprintf("request ended while %s", r.state)
	}
	return &Error{State: r.state, Code: code, Message: message, Cause: cause}
}

// checkpoint stops the run between stages once the context has ended.
func (r *run) checkpoint(ctx context.Context) error {
	if ctx.Err() == nil {
		return nil
	}
	return r.fail(ctx, CodeTimeout, "request deadline exceeded", ctx.Err())
}

func (r *run) execute(ctx context.Context) (*types.PackageResult, error) {
	if err := r.validate(); err != nil {
		return nil, err
	}

	r.enter(StateFetching, "capturing conversation")
	session, err := r.p.deps.Launch(ctx)
	if err != nil {
		return nil, r.fail(ctx, CodeNavigationFailed, "failed to start browser", err)
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			r.logger.Warn("failed to close browser", zap.Error(cerr))
		}
	}()

	snap, err := session.Snapshot(ctx, r.req.ConversationURL)
	if err != nil {
		return nil, r.fail(ctx, CodeNavigationFailed, "conversation page could not be loaded", err)
	}
	if err := r.checkpoint(ctx); err != nil {
		return nil, err
	}

	r.enter(StateExtracting, "extracting transcript")
	tr := r.p.extractor.Extract(ctx, snap)
	if tr.IsEmpty() {
		r.warn(CodeExtractionEmpty, "no transcript text could be extracted from the conversation")
	}
	r.emit("transcript extracted", map[string]any{"strategy": tr.Strategy, "chars": len(tr.Text)})
	if err := r.checkpoint(ctx); err != nil {
		return nil, err
	}

	r.enter(StateFactMatching, "matching government order facts")
	found := facts.Extract(tr.Text, r.req.Profile.Period, r.p.opts.Facts)
	r.emit("facts matched", map[string]any{"count": len(found)})

	r.enter(StateComposing, "composing protest letter")
	composed := r.p.composer.Compose(ctx, letter.Input{
		Profile:    r.req.Profile,
		Facts:      found,
		Transcript: tr,
		Links:      attachments.FindURLs(tr.Text),
	})
	if composed.Fallback {
		r.warn(CodeGenerationFailed, "template letter used: %v", composed.GenerationErr)
	}
	if err := r.checkpoint(ctx); err != nil {
		return nil, err
	}

	r.enter(StateResolvingAttachments, "attaching cited sources")
	doc := attachments.NewResolver(session, r.dir, r.logger).Resolve(ctx, composed.Text)
	var failedURLs []string
	for _, a := range doc.Attachments {
		if a.Status == types.AttachmentFailed {
			failedURLs = append(failedURLs, a.OriginalURL)
			r.warn(CodeAttachmentFailed, "%s: %s", a.OriginalURL, a.Error)
		}
	}
	if err := r.checkpoint(ctx); err != nil {
		return nil, err
	}

	r.enter(StatePackaging, "assembling package")
	assembler := packaging.NewAssembler(session, r.dir, r.logger)
	if _, err := assembler.WriteText(packaging.ConversationName, tr.Text); err != nil {
		return nil, r.fail(ctx, CodePackagingFailed, "failed to save conversation", err)
	}
	if _, err := assembler.WriteText(packaging.LetterTextName, composed.Text); err != nil {
		return nil, r.fail(ctx, CodePackagingFailed, "failed to save letter text", err)
	}
	pkg, err := assembler.Assemble(ctx, doc, doc.Body)
	if err != nil {
		return nil, r.fail(ctx, CodePackagingFailed, "failed to assemble package", err)
	}

	refs := make([]types.AttachmentRef, 0, len(pkg.ManifestEntries))
	for _, e := range pkg.ManifestEntries {
		refs = append(refs, types.AttachmentRef{Filename: e.Filename, OriginalURL: e.OriginalURL})
	}

	return &types.PackageResult{
		RequestID:          r.requestID,
		TrackingID:         r.req.TrackingID,
		LetterText:         doc.Body,
		Attachments:        refs,
		FailedURLs:         failedURLs,
		PrimaryPDFPath:     pkg.PrimaryPDFPath,
		ArchivePath:        pkg.ArchivePath,
		TranscriptStrategy: tr.Strategy,
		FactCount:          len(found),
		UsedFallbackLetter: composed.Fallback,
	}, nil
}

func (r *run) validate() error {
	if err := r.req.Validate(); err != nil {
		return &Error{State: StateIdle, Code: CodeInvalidRequest, Message: describeValidation(err), Cause: err}
	}
	if r.p.opts.RequireKnownHost {
		if err := fetch.ValidConversationURL(r.req.ConversationURL); err != nil {
			return &Error{State: StateIdle, Code: CodeInvalidRequest, Message: err.Error(), Cause: err}
		}
	}
	return nil
}

// failed finalizes a failed run: the output directory is removed and the
// failure is reported when the request carries a tracking ID.
func (r *run) failed(ctx context.Context, err error) {
	r.leave()
	failure := AsFailure(err)
	r.state = StateFailed

	if rmErr := os.RemoveAll(r.dir); rmErr != nil {
		r.logger.Warn("failed to remove output directory", zap.String("dir", r.dir), zap.Error(rmErr))
	}

	metrics.RunsTotal.WithLabelValues(metrics.ResultFailure).Inc()
	metrics.FailuresTotal.WithLabelValues(string(failure.Stage)).Inc()
	r.logger.Error("run failed",
		zap.String("stage", string(failure.State)),
		zap.String("code", string(failure.Stage)),
		zap.Error(err))
	r.emit(failure.Message, failure)

	if r.req.TrackingID == "" {
		return
	}
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), reportTimeout)
	defer cancel()
	if rerr := r.p.deps.Reporter.Report(rctx, tracking.Report{
		RequestID:  r.requestID,
		TrackingID: r.req.TrackingID,
		Profile:    r.req.Profile,
		Status:     tracking.StatusFailed,
		Timestamp:  time.Now(),
		Error:      fmt.Sprintf("%s: %s", failure.Stage, failure.Message),
	}); rerr != nil {
		r.logger.Warn("failed to report failure", zap.Error(rerr))
	}
}

// succeeded uploads and reports a finished package. Neither step can fail the
// run; problems become warnings.
func (r *run) succeeded(ctx context.Context, result *types.PackageResult) {
	r.leave()
	r.state = StateDone

	if r.req.TrackingID != "" {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), reportTimeout)
		defer cancel()

		links, err := r.p.deps.Sink.Upload(rctx, storage.Upload{
			TrackingID:   r.req.TrackingID,
			BusinessName: r.req.Profile.Name,
			LetterPath:   result.PrimaryPDFPath,
			ArchivePath:  result.ArchivePath,
		})
		if err != nil {
			r.warn(CodeUploadFailed, "%v", err)
		}
		result.Links = links

		if err := r.p.deps.Reporter.Report(rctx, tracking.Report{
			RequestID:   r.requestID,
			TrackingID:  r.req.TrackingID,
			Profile:     r.req.Profile,
			Status:      tracking.StatusPDFDone,
			Timestamp:   time.Now(),
			LetterPath:  result.PrimaryPDFPath,
			ArchivePath: result.ArchivePath,
			Links:       links,
		}); err != nil {
			r.warn(CodeTrackingFailed, "%v", err)
		}
	}

	result.Warnings = r.warnings
	metrics.RunsTotal.WithLabelValues(metrics.ResultSuccess).Inc()
	r.logger.Info("run complete",
		zap.String("archive", result.ArchivePath),
		zap.Int("attachments", len(result.Attachments)),
		zap.Int("failed_urls", len(result.FailedURLs)),
		zap.Int("warnings", len(result.Warnings)))
	r.emit("package ready", result)
}

// describeValidation turns validator output into one readable line.
func describeValidation(err error) string {
	msg := err.Error()
	msg = strings.ReplaceAll(msg, "\n", "; ")
	return "invalid request: " + msg
}
