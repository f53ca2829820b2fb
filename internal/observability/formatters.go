// Package observability provides formatted output for the CLI.
package observability

import (
	"fmt"
	"io"
	"strings"

	"github.com/jonathan/erc-protest-agent/internal/types"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 72
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 5
)

// Printer handles formatted output
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	for _, line := range strings.Split(content, "\n") {
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, truncate(line, boxWidth-4))
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// truncate shortens s to width runes.
func truncate(s string, width int) string {
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	return string(r[:width-3]) + "..."
}

// PrintPackageResult outputs a summary of a finished package.
func (p *Printer) PrintPackageResult(r *types.PackageResult) {
	if r == nil {
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Request:      %s\n", r.RequestID)
	if r.TrackingID != "" {
		fmt.Fprintf(&sb, "Tracking ID:  %s\n", r.TrackingID)
	}
	fmt.Fprintf(&sb, "Letter PDF:   %s\n", r.PrimaryPDFPath)
	fmt.Fprintf(&sb, "Archive:      %s\n", r.ArchivePath)
	fmt.Fprintf(&sb, "Transcript:   %s\n", r.TranscriptStrategy)
	fmt.Fprintf(&sb, "Facts:        %d\n", r.FactCount)
	if r.UsedFallbackLetter {
		sb.WriteString("Letter:       fallback template\n")
	}

	if r.Links != nil {
		if r.Links.FolderLink != "" {
			fmt.Fprintf(&sb, "Folder:       %s\n", r.Links.FolderLink)
		}
		if r.Links.ArchiveLink != "" {
			fmt.Fprintf(&sb, "Archive link: %s\n", r.Links.ArchiveLink)
		}
	}

	if len(r.Attachments) > 0 {
		fmt.Fprintf(&sb, "\nAttachments (%d):\n", len(r.Attachments))
		count := min(len(r.Attachments), maxItemsToShow)
		for i := 0; i < count; i++ {
			fmt.Fprintf(&sb, "  • %s\n", r.Attachments[i].Filename)
		}
		if len(r.Attachments) > maxItemsToShow {
			fmt.Fprintf(&sb, "  ... and %d more\n", len(r.Attachments)-maxItemsToShow)
		}
	}

	if len(r.FailedURLs) > 0 {
		fmt.Fprintf(&sb, "\nUnresolved sources (%d):\n", len(r.FailedURLs))
		for _, u := range r.FailedURLs {
			fmt.Fprintf(&sb, "  ✗ %s\n", u)
		}
	}

	if len(r.Warnings) > 0 {
		sb.WriteString("\nWarnings:\n")
		for _, w := range r.Warnings {
			fmt.Fprintf(&sb, "  ⚠ %s\n", w)
		}
	}

	p.printBox("PROTEST PACKAGE READY", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintFailure outputs a failed run.
func (p *Printer) PrintFailure(stage, state, message string) {
	content := fmt.Sprintf("Stage:   %s\nState:   %s\nMessage: %s", stage, state, message)
	p.printBox("PACKAGE FAILED", content)
}

// PrintTranscript outputs the first turns of an extracted transcript.
func (p *Printer) PrintTranscript(t types.Transcript) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Strategy: %s\n", t.Strategy)
	fmt.Fprintf(&sb, "Length:   %d chars\n", len(t.Text))

	if t.Attributed() {
		fmt.Fprintf(&sb, "Turns:    %d\n\n", len(t.Turns))
		count := min(len(t.Turns), maxItemsToShow)
		for i := 0; i < count; i++ {
			turn := t.Turns[i]
			fmt.Fprintf(&sb, "%s: %s\n", turn.Speaker.Label(), firstLine(turn.Text))
		}
		if len(t.Turns) > maxItemsToShow {
			fmt.Fprintf(&sb, "... and %d more turns\n", len(t.Turns)-maxItemsToShow)
		}
	} else if !t.IsEmpty() {
		fmt.Fprintf(&sb, "\n%s\n", firstLine(t.Text))
	}

	p.printBox("EXTRACTED TRANSCRIPT", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintFacts outputs the order statements matched in a transcript.
func (p *Printer) PrintFacts(facts []types.ExtractedFact) {
	if len(facts) == 0 {
		p.printBox("ORDER FACTS", "No order statements matched.")
		return
	}

	var sb strings.Builder
	for i, f := range facts {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, firstLine(f.RawText))
	}
	p.printBox(fmt.Sprintf("ORDER FACTS (%d)", len(facts)), strings.TrimSuffix(sb.String(), "\n"))
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i] + " ..."
	}
	return s
}
