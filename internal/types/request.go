// Package types provides type definitions for structured data passed between protest pipeline stages.
package types

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// BusinessProfile holds the taxpayer fields interpolated into the protest letter.
type BusinessProfile struct {
	Name             string `json:"business_name" validate:"required,min=1"`
	TaxID            string `json:"ein" validate:"required,min=1"`
	Location         string `json:"location,omitempty"`
	Period           string `json:"time_period" validate:"required,min=1"`
	BusinessCategory string `json:"business_type,omitempty"`
	NAICSCode        string `json:"naics_code,omitempty" validate:"omitempty,numeric,max=6"`
}

// Category returns the business category, derived from the NAICS code when not set explicitly.
func (p BusinessProfile) Category() string {
	if c := strings.TrimSpace(p.BusinessCategory); c != "" {
		return c
	}
	return BusinessTypeForNAICS(p.NAICSCode)
}

// ExtractionRequest is the immutable input to one pipeline invocation.
type ExtractionRequest struct {
	ConversationURL string          `json:"conversation_url" validate:"required,url"`
	Profile         BusinessProfile `json:"business_profile"`
	TrackingID      string          `json:"tracking_id,omitempty"`
}

// Validate validates the ExtractionRequest using the validator.
func (r *ExtractionRequest) Validate() error {
	validate := validator.New()
	return validate.Struct(r)
}

// PageSnapshot is the rendered state of a page captured by the fetcher.
type PageSnapshot struct {
	URL             string    `json:"url"`
	HTML            string    `json:"html"`
	ScreenshotBytes []byte    `json:"-"`
	CapturedAt      time.Time `json:"captured_at"`
	// Navigation records which wait strategy resolved the page load.
	Navigation string `json:"navigation,omitempty"`
}

// ExtractedFact is a pattern-matched statement believed to describe a government order.
type ExtractedFact struct {
	RawText         string `json:"raw_text"`
	SourceParagraph string `json:"source_paragraph"`
}

// NewTrackingID returns an identifier of the form ERC-XXXXXXXX.
func NewTrackingID() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("ERC-%s", strings.ToUpper(id[:8]))
}

// SplitLocation splits "City, ST" into its city and state parts.
func SplitLocation(location string) (city, state string) {
	parts := strings.SplitN(location, ",", 2)
	city = strings.TrimSpace(parts[0])
	if len(parts) > 1 {
		state = strings.TrimSpace(parts[1])
	}
	return city, state
}
