package observability

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jonathan/erc-protest-agent/internal/types"
)

func TestPrintPackageResult(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.PrintPackageResult(&types.PackageResult{
		RequestID:          "req-1",
		TrackingID:         "ERC-1234ABCD",
		PrimaryPDFPath:     "/out/req-1/protest_letter.pdf",
		ArchivePath:        "/out/req-1/complete_protest_package.zip",
		TranscriptStrategy: "structural",
		FactCount:          2,
		UsedFallbackLetter: true,
		Attachments: []types.AttachmentRef{
			{Filename: "attachment_1_https___gov_texas_gov.pdf"},
		},
		FailedURLs: []string{"https://broken.example.com"},
		Links:      &types.ShareLinks{FolderLink: "https://drive.google.com/drive/folders/x"},
		Warnings:   []string{"attachment_failed: https://broken.example.com"},
	})

	output := buf.String()
	assert.Contains(t, output, "PROTEST PACKAGE READY")
	assert.Contains(t, output, "ERC-1234ABCD")
	assert.Contains(t, output, "fallback template")
	assert.Contains(t, output, "attachment_1_https___gov_texas_gov.pdf")
	assert.Contains(t, output, "✗ https://broken.example.com")
	assert.Contains(t, output, "drive.google.com")
	assert.Contains(t, output, "⚠ attachment_failed")
}

func TestPrintPackageResult_Nil(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf).PrintPackageResult(nil)
	assert.Empty(t, buf.String())
}

func TestPrintPackageResult_ManyAttachments(t *testing.T) {
	var buf bytes.Buffer
	atts := make([]types.AttachmentRef, 8)
	for i := range atts {
		atts[i] = types.AttachmentRef{Filename: "a.pdf"}
	}
	NewPrinter(&buf).PrintPackageResult(&types.PackageResult{Attachments: atts})
	assert.Contains(t, buf.String(), "... and 3 more")
}

func TestPrintFailure(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf).PrintFailure("navigation_failed", "fetching", "page never loaded")
	assert.Contains(t, buf.String(), "PACKAGE FAILED")
	assert.Contains(t, buf.String(), "navigation_failed")
}

func TestPrintTranscript(t *testing.T) {
	var buf bytes.Buffer
	tr := types.NewAttributedTranscript([]types.Turn{
		{Speaker: types.SpeakerUser, Text: "What orders applied in Austin?"},
		{Speaker: types.SpeakerAssistant, Text: "Executive Order GA-14\nclosed restaurants."},
	}, "structural")

	NewPrinter(&buf).PrintTranscript(tr)
	output := buf.String()
	assert.Contains(t, output, "Strategy: structural")
	assert.Contains(t, output, "Turns:    2")
	assert.Contains(t, output, "User: What orders applied in Austin?")
	assert.Contains(t, output, "Assistant: Executive Order GA-14 ...")
}

func TestPrintFacts(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)
	p.PrintFacts(nil)
	assert.Contains(t, buf.String(), "No order statements matched.")

	buf.Reset()
	p.PrintFacts([]types.ExtractedFact{{RawText: "Executive Order GA-14 limited dine-in service in Q2 2020."}})
	assert.Contains(t, buf.String(), "ORDER FACTS (1)")
	assert.Contains(t, buf.String(), "1. Executive Order GA-14")
}

func TestPrintBox_TruncatesLongLines(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)
	p.printBox("TITLE", strings.Repeat("x", 200))

	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		assert.LessOrEqual(t, len([]rune(line)), boxWidth)
	}
	assert.Contains(t, buf.String(), "...")
}
