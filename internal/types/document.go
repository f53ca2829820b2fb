package types

import "time"

// AttachmentStatus is the outcome of rendering a cited URL.
type AttachmentStatus string

const (
	// AttachmentResolved means the URL was rendered to a PDF
	AttachmentResolved AttachmentStatus = "resolved"
	// AttachmentFailed means navigation or rendering failed; the URL stays literal in the letter
	AttachmentFailed AttachmentStatus = "failed"
)

// Attachment is a PDF rendering of a URL cited in the letter.
type Attachment struct {
	OriginalURL       string           `json:"original_url"`
	GeneratedFilename string           `json:"filename,omitempty"`
	LocalPath         string           `json:"-"`
	Status            AttachmentStatus `json:"status"`
	Error             string           `json:"error,omitempty"`
}

// Document is the letter body together with its attachments.
type Document struct {
	Body        string       `json:"body"`
	Attachments []Attachment `json:"attachments"`
}

// Resolved returns the attachments that were rendered successfully, in order.
func (d Document) Resolved() []Attachment {
	out := make([]Attachment, 0, len(d.Attachments))
	for _, a := range d.Attachments {
		if a.Status == AttachmentResolved {
			out = append(out, a)
		}
	}
	return out
}

// ManifestEntry lists one attachment in the package README.
type ManifestEntry struct {
	Filename    string `json:"filename"`
	OriginalURL string `json:"original_url"`
}

// Package is the terminal artifact of a pipeline run.
type Package struct {
	PrimaryPDFPath  string          `json:"primary_pdf_path"`
	ArchivePath     string          `json:"archive_path"`
	ManifestEntries []ManifestEntry `json:"manifest_entries"`
	GeneratedAt     time.Time       `json:"generated_at"`
}

// ShareLinks are the links returned by a blob sink after upload.
type ShareLinks struct {
	FolderLink  string `json:"folder_link,omitempty"`
	LetterLink  string `json:"letter_link,omitempty"`
	ArchiveLink string `json:"archive_link,omitempty"`
}

// AttachmentRef is the caller-facing view of a resolved attachment.
type AttachmentRef struct {
	Filename    string `json:"filename"`
	OriginalURL string `json:"original_url"`
}

// PackageResult is the success output of the pipeline.
type PackageResult struct {
	RequestID          string          `json:"request_id"`
	TrackingID         string          `json:"tracking_id,omitempty"`
	LetterText         string          `json:"letter_text"`
	Attachments        []AttachmentRef `json:"attachments"`
	FailedURLs         []string        `json:"failed_urls,omitempty"`
	PrimaryPDFPath     string          `json:"primary_pdf_path"`
	ArchivePath        string          `json:"archive_path"`
	TranscriptStrategy string          `json:"transcript_strategy"`
	FactCount          int             `json:"fact_count"`
	UsedFallbackLetter bool            `json:"used_fallback_letter"`
	Links              *ShareLinks     `json:"links,omitempty"`
	Warnings           []string        `json:"warnings,omitempty"`
}
