package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewAttributedTranscript(t *testing.T) {
	tr := NewAttributedTranscript([]Turn{
		{Speaker: SpeakerUser, Text: " What orders applied? "},
		{Speaker: SpeakerAssistant, Text: ""},
		{Speaker: SpeakerAssistant, Text: "Executive Order GA-14 closed bars."},
	}, "structural")

	assert.Len(t, tr.Turns, 2)
	assert.Equal(t, "User: What orders applied?\n\nAssistant: Executive Order GA-14 closed bars.", tr.Text)
	assert.True(t, tr.Attributed())
	assert.False(t, tr.IsEmpty())
	assert.Equal(t, "structural", tr.Strategy)
}

func TestEmptyTranscript(t *testing.T) {
	tr := EmptyTranscript()
	assert.True(t, tr.IsEmpty())
	assert.False(t, tr.Attributed())
	assert.Equal(t, StrategyEmpty, tr.Strategy)
}

func TestParseSpeaker(t *testing.T) {
	s, ok := ParseSpeaker("Assistant")
	assert.True(t, ok)
	assert.Equal(t, SpeakerAssistant, s)

	s, ok = ParseSpeaker("human")
	assert.True(t, ok)
	assert.Equal(t, SpeakerUser, s)

	_, ok = ParseSpeaker("system")
	assert.False(t, ok)
}

func TestDocument_Resolved(t *testing.T) {
	doc := Document{Attachments: []Attachment{
		{OriginalURL: "https://a.example", Status: AttachmentResolved},
		{OriginalURL: "https://b.example", Status: AttachmentFailed},
		{OriginalURL: "https://c.example", Status: AttachmentResolved},
	}}
	resolved := doc.Resolved()
	assert.Len(t, resolved, 2)
	assert.Equal(t, "https://c.example", resolved[1].OriginalURL)
}
