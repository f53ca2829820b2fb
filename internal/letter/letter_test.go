package letter

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/jonathan/erc-protest-agent/internal/llm"
	"github.com/jonathan/erc-protest-agent/internal/llm/llmtest"
	"github.com/jonathan/erc-protest-agent/internal/types"
)

var fixedNow = func() time.Time { return time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC) }

func testInput() Input {
	return Input{
		Profile: types.BusinessProfile{
			Name:      "Lone Star Diner LLC",
			TaxID:     "74-1234567",
			Location:  "Austin, TX",
			Period:    "Q2 2020",
			NAICSCode: "722511",
		},
		Facts: []types.ExtractedFact{
			{RawText: "Executive Order GA-14 closed dine-in service at all restaurants."},
			{RawText: "Travis County Order 20-04 limited capacity to 25 percent, see https://traviscounty.gov/o/20-04"},
		},
		Links: []string{"https://traviscounty.gov/o/20-04", "https://gov.texas.gov/ga-14.pdf"},
	}
}

func TestCompose_UsesModelOutput(t *testing.T) {
	fake := llmtest.Text("```\nDear Appeals Officer,\nPlease reverse the disallowance.\n```")
	c := New(fake, "", Options{Now: fixedNow}, zaptest.NewLogger(t))

	got := c.Compose(context.Background(), testInput())
	assert.False(t, got.Fallback)
	assert.NoError(t, got.GenerationErr)
	assert.True(t, strings.HasPrefix(got.Text, "03/05/2024\n"))
	assert.True(t, strings.HasSuffix(got.Text, "Tax Period: Q2 2020\n\nDear Appeals Officer,\nPlease reverse the disallowance."))

	reqs := fake.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, llm.TierAdvanced, reqs[0].Tier)
	assert.Contains(t, reqs[0].System, "ERC")
	user := reqs[0].User
	assert.Contains(t, user, "DATE: 03/05/2024")
	assert.Contains(t, user, "start at the salutation")
	assert.Contains(t, user, "Time Period: Q2 2020")
	assert.Contains(t, user, "Business Type: restaurant")
	assert.Contains(t, user, "1. Executive Order GA-14")
	assert.Contains(t, user, "- https://gov.texas.gov/ga-14.pdf")
	assert.Contains(t, user, "Riverside Family Dental", "worked example is included")
	assert.NotContains(t, user, "{{.")
}

func TestCompose_LetterheadOverridesModelHeader(t *testing.T) {
	fake := llmtest.Text("March 1, 2021\n\nInternal Revenue Service\nRE: ERC for Q3 2021\n\nDear Appeals Officer,\nOur operations were partially suspended.")
	c := New(fake, "", Options{Now: fixedNow}, zaptest.NewLogger(t))

	got := c.Compose(context.Background(), testInput())
	require.False(t, got.Fallback)
	assert.True(t, strings.HasPrefix(got.Text, "03/05/2024\n"))
	assert.Contains(t, got.Text, "EIN: 74-1234567")
	assert.Contains(t, got.Text, "Taxpayer Name: Lone Star Diner LLC")
	assert.Contains(t, got.Text, "RE: Formal Protest to Letter 105 - ERC Disallowance for Q2 2020")
	assert.Contains(t, got.Text, "Tax Period: Q2 2020")
	assert.Contains(t, got.Text, "Our operations were partially suspended.")
	assert.NotContains(t, got.Text, "March 1, 2021")
	assert.NotContains(t, got.Text, "Q3 2021")
	assert.Equal(t, 1, strings.Count(got.Text, "Dear Appeals Officer,"))
}

func TestCompose_LetterheadWithoutSalutation(t *testing.T) {
	c := New(llmtest.Text("We protest the disallowance."), "", Options{Now: fixedNow}, zaptest.NewLogger(t))

	got := c.Compose(context.Background(), testInput())
	assert.True(t, strings.HasPrefix(got.Text, "03/05/2024\n"))
	assert.True(t, strings.HasSuffix(got.Text, "Tax Period: Q2 2020\n\nWe protest the disallowance."))
}

func TestCompose_TranscriptMode(t *testing.T) {
	fake := llmtest.Text("letter")
	c := New(fake, "EXAMPLE BODY", Options{Mode: ModeTranscript, Now: fixedNow}, zaptest.NewLogger(t))

	in := testInput()
	in.Transcript = types.NewFlatTranscript("User: orders?\n\nAssistant: GA-14.", "structural")
	c.Compose(context.Background(), in)

	user := fake.Requests()[0].User
	assert.Contains(t, user, "COVID-19 RESEARCH CONVERSATION")
	assert.Contains(t, user, "Assistant: GA-14.")
	assert.Contains(t, user, "EXAMPLE BODY")
	assert.NotContains(t, user, "GOVERNMENT ORDERS IDENTIFIED")
}

func TestCompose_FallbackOnModelFailure(t *testing.T) {
	boom := errors.New("deadline exceeded")
	c := New(llmtest.Failing(boom), "", Options{Now: fixedNow, Signatory: "Pat Lee", SignatoryTitle: "Owner"}, zaptest.NewLogger(t))

	in := testInput()
	got := c.Compose(context.Background(), in)
	require.True(t, got.Fallback)
	assert.ErrorIs(t, got.GenerationErr, boom)

	var genErr *GenerationError
	assert.ErrorAs(t, got.GenerationErr, &genErr)

	for _, f := range in.Facts {
		assert.Contains(t, got.Text, f.RawText)
	}
	assert.True(t, strings.HasPrefix(got.Text, "03/05/2024\n"))
	assert.Contains(t, got.Text, "EIN: 74-1234567")
	assert.Contains(t, got.Text, "Tax Period: Q2 2020")
	assert.Contains(t, got.Text, "1. Executive Order GA-14")
	assert.Contains(t, got.Text, "2. Travis County Order 20-04")
	assert.Contains(t, got.Text, "Notice 2021-20")
	assert.Contains(t, got.Text, "Under penalties of perjury")
	assert.Contains(t, got.Text, "Pat Lee\nOwner\nLone Star Diner LLC")
	// only the link not already quoted in a fact is listed separately
	assert.Contains(t, got.Text, "Supporting sources:\nhttps://gov.texas.gov/ga-14.pdf\n")
	assert.Equal(t, 1, strings.Count(got.Text, "https://traviscounty.gov/o/20-04"))
}

func TestCompose_FallbackOnEmptyOutput(t *testing.T) {
	c := New(llmtest.Text("```\n```"), "", Options{Now: fixedNow}, zaptest.NewLogger(t))
	got := c.Compose(context.Background(), testInput())
	assert.True(t, got.Fallback)
	assert.ErrorIs(t, got.GenerationErr, llm.ErrEmptyResponse)
}

func TestCompose_FallbackOnTimeout(t *testing.T) {
	fake := &llmtest.Fake{Handler: func(ctx context.Context, _ llm.Request) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}}
	c := New(fake, "", Options{Now: fixedNow, Timeout: 20 * time.Millisecond}, zaptest.NewLogger(t))

	got := c.Compose(context.Background(), testInput())
	assert.True(t, got.Fallback)
	assert.ErrorIs(t, got.GenerationErr, context.DeadlineExceeded)
	assert.NotEmpty(t, got.Text)
}

func TestCompose_NoClient(t *testing.T) {
	c := New(nil, "", Options{Now: fixedNow}, zaptest.NewLogger(t))
	got := c.Compose(context.Background(), testInput())
	assert.True(t, got.Fallback)
	assert.Contains(t, got.Text, DefaultSignatory)
}

func TestFallback_NoFactsUsesBoilerplate(t *testing.T) {
	c := New(nil, "", Options{Now: fixedNow}, zaptest.NewLogger(t))
	in := testInput()
	in.Facts = nil
	in.Links = nil

	got := c.Fallback(in)
	assert.Contains(t, got.Text, "1. COVID-19 restrictions in Austin, TX significantly impacted our restaurant operations during Q2 2020.")
	assert.Contains(t, got.Text, "3. Enhanced health and safety protocols")
	assert.NotContains(t, got.Text, "Supporting sources")
	assert.NotContains(t, got.Text, "<no value>")
}

func TestLoadExample(t *testing.T) {
	def, err := LoadExample("")
	require.NoError(t, err)
	assert.Equal(t, DefaultExample(), def)

	path := filepath.Join(t.TempDir(), "example.txt")
	require.NoError(t, os.WriteFile(path, []byte("custom example"), 0o644))
	got, err := LoadExample(path)
	require.NoError(t, err)
	assert.Equal(t, "custom example", got)

	_, err = LoadExample(filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeFacts, m)

	m, err = ParseMode(" Transcript ")
	require.NoError(t, err)
	assert.Equal(t, ModeTranscript, m)

	_, err = ParseMode("poetry")
	assert.Error(t, err)
}
