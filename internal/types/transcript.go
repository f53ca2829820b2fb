package types

import (
	"strings"
)

// Speaker identifies the author of a conversation turn.
type Speaker string

const (
	// SpeakerUser is the human side of the conversation
	SpeakerUser Speaker = "user"
	// SpeakerAssistant is the model side of the conversation
	SpeakerAssistant Speaker = "assistant"
)

// Label returns the prefix used when a turn is flattened to text.
func (s Speaker) Label() string {
	switch s {
	case SpeakerUser:
		return "User"
	case SpeakerAssistant:
		return "Assistant"
	default:
		return "Unknown"
	}
}

// ParseSpeaker maps a role attribute value to a Speaker.
func ParseSpeaker(role string) (Speaker, bool) {
	switch strings.ToLower(strings.TrimSpace(role)) {
	case "user", "human":
		return SpeakerUser, true
	case "assistant", "model", "ai", "bot":
		return SpeakerAssistant, true
	default:
		return "", false
	}
}

// Turn is one speaker-attributed message.
type Turn struct {
	Speaker Speaker `json:"speaker"`
	Text    string  `json:"text"`
}

// StrategyEmpty names the transcript returned when no extraction strategy produced text.
const StrategyEmpty = "empty"

// Transcript is the extracted conversation. Turns is set when speaker
// attribution succeeded; Text always holds the flattened form.
type Transcript struct {
	Turns    []Turn `json:"turns,omitempty"`
	Text     string `json:"text"`
	Strategy string `json:"strategy"`
}

// NewAttributedTranscript flattens turns into a transcript.
func NewAttributedTranscript(turns []Turn, strategy string) Transcript {
	parts := make([]string, 0, len(turns))
	kept := make([]Turn, 0, len(turns))
	for _, t := range turns {
		text := strings.TrimSpace(t.Text)
		if text == "" {
			continue
		}
		kept = append(kept, Turn{Speaker: t.Speaker, Text: text})
		parts = append(parts, t.Speaker.Label()+": "+text)
	}
	return Transcript{Turns: kept, Text: strings.Join(parts, "\n\n"), Strategy: strategy}
}

// NewFlatTranscript builds an unattributed transcript.
func NewFlatTranscript(text, strategy string) Transcript {
	return Transcript{Text: strings.TrimSpace(text), Strategy: strategy}
}

// EmptyTranscript is returned when every extraction strategy failed.
func EmptyTranscript() Transcript {
	return Transcript{Strategy: StrategyEmpty}
}

// IsEmpty reports whether the transcript carries no text.
func (t Transcript) IsEmpty() bool {
	return strings.TrimSpace(t.Text) == ""
}

// Attributed reports whether speaker attribution is available.
func (t Transcript) Attributed() bool {
	return len(t.Turns) > 0
}

func (t Transcript) String() string {
	return t.Text
}
