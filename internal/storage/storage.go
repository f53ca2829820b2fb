// Package storage uploads finished protest packages to a blob store and returns
// shareable links. The pipeline treats the sink as fire-and-report: it never
// retries an upload itself.
package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/jonathan/erc-protest-agent/internal/types"
)

// Upload names the local files of one package.
type Upload struct {
	TrackingID   string
	BusinessName string
	LetterPath   string
	ArchivePath  string
}

// Sink stores a package and returns links to it.
type Sink interface {
	Upload(ctx context.Context, u Upload) (*types.ShareLinks, error)
}

// Error represents a failed upload.
type Error struct {
	Backend string
	Path    string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	prefix := fmt.Sprintf("storage error (%s)", e.Backend)
	if e.Path != "" {
		prefix += " for " + e.Path
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// NopSink uploads nothing and returns no links.
type NopSink struct{}

// Upload returns nil links.
func (NopSink) Upload(context.Context, Upload) (*types.ShareLinks, error) { return nil, nil }

// FolderName is the per-package folder, "<trackingId> - <businessName>".
func FolderName(u Upload) string {
	name := strings.TrimSpace(u.BusinessName)
	if name == "" {
		return u.TrackingID
	}
	return fmt.Sprintf("%s - %s", u.TrackingID, name)
}

// files lists the package files to upload, skipping empty paths.
func (u Upload) files() []string {
	var out []string
	for _, p := range []string{u.LetterPath, u.ArchivePath} {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func contentType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return "application/pdf"
	case ".zip":
		return "application/zip"
	case ".txt":
		return "text/plain; charset=utf-8"
	}
	return "application/octet-stream"
}
