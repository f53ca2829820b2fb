// Package attachments renders every URL cited in a letter to its own PDF and
// rewrites the letter to point at the attachments.
package attachments

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/jonathan/erc-protest-agent/internal/logging"
	"github.com/jonathan/erc-protest-agent/internal/metrics"
	"github.com/jonathan/erc-protest-agent/internal/types"
)

// PageRenderer renders a URL to PDF bytes in an isolated page.
type PageRenderer interface {
	RenderURL(ctx context.Context, url string) ([]byte, error)
}

// Resolver resolves the URLs of one document.
type Resolver struct {
	renderer PageRenderer
	dir      string
	logger   *zap.Logger
}

// NewResolver creates a Resolver that writes PDFs into dir.
func NewResolver(renderer PageRenderer, dir string, logger *zap.Logger) *Resolver {
	return &Resolver{renderer: renderer, dir: dir, logger: logging.OrNop(logger)}
}

// Resolve renders each unique URL in text, one at a time. A URL that cannot
// be rendered is marked failed and stays in the body as written. Numbering
// counts resolved attachments only.
func (r *Resolver) Resolve(ctx context.Context, text string) types.Document {
	urls := FindURLs(text)
	doc := types.Document{Body: text, Attachments: make([]types.Attachment, 0, len(urls))}
	if len(urls) == 0 {
		return doc
	}

	refs := make(map[string]string)
	n := 0
	for i, u := range urls {
		att := types.Attachment{OriginalURL: u}
		filename := Filename(n+1, u)

		start := time.Now()
		path, err := r.renderOne(ctx, u, filename)
		if err != nil {
			att.Status = types.AttachmentFailed
			att.Error = err.Error()
			metrics.AttachmentsTotal.WithLabelValues(string(types.AttachmentFailed)).Inc()
			r.logger.Warn("attachment failed",
				zap.String("url", u),
				zap.Int("index", i+1),
				zap.Duration("duration", time.Since(start)),
				zap.Error(err))
		} else {
			n++
			att.Status = types.AttachmentResolved
			att.GeneratedFilename = filename
			att.LocalPath = path
			refs[u] = Reference(n, filename)
			metrics.AttachmentsTotal.WithLabelValues(string(types.AttachmentResolved)).Inc()
			r.logger.Info("attachment resolved",
				zap.String("url", u),
				zap.String("filename", filename),
				zap.Duration("duration", time.Since(start)))
		}
		doc.Attachments = append(doc.Attachments, att)
	}

	doc.Body = Rewrite(text, refs)
	return doc
}

func (r *Resolver) renderOne(ctx context.Context, u, filename string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	pdf, err := r.renderer.RenderURL(ctx, u)
	if err != nil {
		return "", err
	}
	if len(pdf) == 0 {
		return "", fmt.Errorf("renderer returned an empty document")
	}
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create attachment directory: %w", err)
	}
	path := filepath.Join(r.dir, filename)
	if err := os.WriteFile(path, pdf, 0o644); err != nil {
		return "", fmt.Errorf("failed to write attachment: %w", err)
	}
	return path, nil
}
