// Package packaging turns a resolved letter into the deliverable package:
// the letter PDF, the attachment PDFs and a manifest, zipped together.
package packaging

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/zip"
	"go.uber.org/zap"

	"github.com/jonathan/erc-protest-agent/internal/logging"
	"github.com/jonathan/erc-protest-agent/internal/types"
)

// File names inside the output directory and the archive.
const (
	LetterPDFName             = "protest_letter.pdf"
	ArchiveName               = "complete_protest_package.zip"
	ManifestName              = "README.txt"
	LetterTextName            = "protest_letter.txt"
	LetterWithAttachmentsName = "protest_letter_with_attachments.txt"
	ConversationName          = "conversation.txt"
)

//go:embed templates/letter.html.tmpl
var templateFS embed.FS

var letterTemplate = template.Must(template.ParseFS(templateFS, "templates/letter.html.tmpl"))

// HTMLRenderer prints an HTML document to PDF bytes.
type HTMLRenderer interface {
	RenderHTML(ctx context.Context, html string) ([]byte, error)
}

// Error represents a packaging failure.
type Error struct {
	Path    string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("packaging error for %s: %s: %v", e.Path, e.Message, e.Cause)
	}
	return fmt.Sprintf("packaging error for %s: %s", e.Path, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Assembler writes packages into one output directory.
type Assembler struct {
	renderer HTMLRenderer
	dir      string
	logger   *zap.Logger
	// Now is replaceable for tests.
	Now func() time.Time
}

// NewAssembler creates an Assembler writing into dir.
func NewAssembler(renderer HTMLRenderer, dir string, logger *zap.Logger) *Assembler {
	return &Assembler{renderer: renderer, dir: dir, logger: logging.OrNop(logger), Now: time.Now}
}

// Assemble renders primaryText to the letter PDF and zips it with every
// resolved attachment and a manifest. The archive is written under a
// temporary name and renamed, so it exists only when complete.
func (a *Assembler) Assemble(ctx context.Context, doc types.Document, primaryText string) (*types.Package, error) {
	if err := os.MkdirAll(a.dir, 0o755); err != nil {
		return nil, &Error{Path: a.dir, Message: "failed to create output directory", Cause: err}
	}

	if _, err := a.WriteText(LetterWithAttachmentsName, primaryText); err != nil {
		return nil, err
	}

	html, err := RenderLetterHTML("ERC Protest Letter", primaryText)
	if err != nil {
		return nil, &Error{Path: LetterPDFName, Message: "failed to build letter page", Cause: err}
	}
	pdf, err := a.renderer.RenderHTML(ctx, html)
	if err != nil {
		return nil, &Error{Path: LetterPDFName, Message: "failed to render letter", Cause: err}
	}
	if len(pdf) == 0 {
		return nil, &Error{Path: LetterPDFName, Message: "renderer returned an empty document"}
	}
	pdfPath := filepath.Join(a.dir, LetterPDFName)
	if err := os.WriteFile(pdfPath, pdf, 0o644); err != nil {
		return nil, &Error{Path: pdfPath, Message: "failed to write letter", Cause: err}
	}

	generated := a.Now().UTC()
	entries := manifestEntries(doc)
	manifest := Manifest(entries, generated)

	archivePath := filepath.Join(a.dir, ArchiveName)
	files := []archiveFile{{name: LetterPDFName, path: pdfPath}}
	for _, att := range doc.Resolved() {
		files = append(files, archiveFile{name: att.GeneratedFilename, path: att.LocalPath})
	}
	files = append(files, archiveFile{name: ManifestName, data: []byte(manifest)})

	if err := writeArchive(archivePath, files, generated); err != nil {
		return nil, err
	}

	a.logger.Info("package assembled",
		zap.String("archive", archivePath),
		zap.Int("attachments", len(entries)))

	return &types.Package{
		PrimaryPDFPath:  pdfPath,
		ArchivePath:     archivePath,
		ManifestEntries: entries,
		GeneratedAt:     generated,
	}, nil
}

// WriteText writes a plain-text artifact next to the package.
func (a *Assembler) WriteText(name, content string) (string, error) {
	if err := os.MkdirAll(a.dir, 0o755); err != nil {
		return "", &Error{Path: a.dir, Message: "failed to create output directory", Cause: err}
	}
	path := filepath.Join(a.dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", &Error{Path: path, Message: "failed to write file", Cause: err}
	}
	return path, nil
}

// RenderLetterHTML wraps plain text in the printable letter page.
func RenderLetterHTML(title, body string) (string, error) {
	var buf bytes.Buffer
	if err := letterTemplate.Execute(&buf, struct{ Title, Body string }{title, body}); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func manifestEntries(doc types.Document) []types.ManifestEntry {
	resolved := doc.Resolved()
	entries := make([]types.ManifestEntry, 0, len(resolved))
	for _, att := range resolved {
		entries = append(entries, types.ManifestEntry{Filename: att.GeneratedFilename, OriginalURL: att.OriginalURL})
	}
	return entries
}

// Manifest renders README.txt.
func Manifest(entries []types.ManifestEntry, generated time.Time) string {
	var b strings.Builder
	b.WriteString("ERC PROTEST PACKAGE\n\n")
	b.WriteString("Main Document:\n")
	b.WriteString("- " + LetterPDFName + " (The main protest letter)\n\n")
	fmt.Fprintf(&b, "Attachments (%d):\n", len(entries))
	if len(entries) == 0 {
		b.WriteString("None. No cited sources could be attached.\n")
	}
	for i, e := range entries {
		fmt.Fprintf(&b, "%d. %s (original URL: %s)\n", i+1, e.Filename, e.OriginalURL)
	}
	fmt.Fprintf(&b, "\nGenerated on: %s\n", generated.UTC().Format(time.RFC3339))
	return b.String()
}

type archiveFile struct {
	name string
	path string
	data []byte
}

func writeArchive(path string, files []archiveFile, modified time.Time) (err error) {
	tmp := path + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return &Error{Path: tmp, Message: "failed to create archive", Cause: err}
	}
	defer func() {
		if err != nil {
			_ = out.Close()
			_ = os.Remove(tmp)
		}
	}()

	zw := zip.NewWriter(out)
	for _, f := range files {
		if err = addFile(zw, f, modified); err != nil {
			return &Error{Path: f.name, Message: "failed to add file to archive", Cause: err}
		}
	}
	if err = zw.Close(); err != nil {
		return &Error{Path: tmp, Message: "failed to finish archive", Cause: err}
	}
	if err = out.Close(); err != nil {
		return &Error{Path: tmp, Message: "failed to close archive", Cause: err}
	}
	if err = os.Rename(tmp, path); err != nil {
		return &Error{Path: path, Message: "failed to move archive into place", Cause: err}
	}
	return nil
}

func addFile(zw *zip.Writer, f archiveFile, modified time.Time) error {
	w, err := zw.CreateHeader(&zip.FileHeader{
		Name:     f.name,
		Method:   zip.Deflate,
		Modified: modified,
	})
	if err != nil {
		return err
	}
	if f.data != nil {
		_, err = w.Write(f.data)
		return err
	}
	src, err := os.Open(f.path)
	if err != nil {
		return err
	}
	defer func() { _ = src.Close() }()
	_, err = io.Copy(w, src)
	return err
}
