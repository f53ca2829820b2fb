package transcript

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/jonathan/erc-protest-agent/internal/llm"
	"github.com/jonathan/erc-protest-agent/internal/llm/llmtest"
)

func TestGenerative_TruncatesMarkup(t *testing.T) {
	fake := llmtest.Text("Assistant: ok")
	extract := Generative(fake, 64, zaptest.NewLogger(t))

	_, err := extract(context.Background(), snapshot(strings.Repeat("<p>abcdefgh</p>", 100)))
	require.NoError(t, err)

	reqs := fake.Requests()
	require.Len(t, reqs, 1)
	assert.True(t, reqs[0].JSON)
	assert.Equal(t, llm.TierStandard, reqs[0].Tier)
	assert.Contains(t, reqs[0].User, "truncated to the first 64 bytes")
	assert.NotContains(t, reqs[0].User, strings.Repeat("<p>abcdefgh</p>", 5))
	assert.Contains(t, reqs[0].System, "JSON object")
}

func TestGenerative_EmptyMarkup(t *testing.T) {
	fake := llmtest.Text("x")
	_, err := Generative(fake, 100, zaptest.NewLogger(t))(context.Background(), snapshot("  "))
	require.Error(t, err)
	assert.Equal(t, 0, fake.Calls())
}

func TestParseSanitized(t *testing.T) {
	logger := zaptest.NewLogger(t)

	tr, err := parseSanitized(`{"turns":[{"speaker":"user","text":"see https://a.test/x"}],"links":["https://a.test/x","https://b.test/y","https://b.test/y"]}`, logger)
	require.NoError(t, err)
	assert.Equal(t, "User: see https://a.test/x\n\nSources:\nhttps://b.test/y", tr.Text)

	tr, err = parseSanitized(`{"turns":[{"speaker":"robot","text":"x"}]}`, logger)
	require.NoError(t, err)
	assert.False(t, tr.Attributed())
	assert.Equal(t, "robot: x", tr.Text)

	tr, err = parseSanitized("Plain conversation text", logger)
	require.NoError(t, err)
	assert.Equal(t, "Plain conversation text", tr.Text)

	_, err = parseSanitized("   ", logger)
	assert.ErrorIs(t, err, llm.ErrEmptyResponse)
}

func TestParseSanitized_SchemaMismatchKeepsTurnText(t *testing.T) {
	logger := zaptest.NewLogger(t)

	out := `{"turns":[{"speaker":"human","text":"Which orders applied in Q2 2020?"},` +
		`{"speaker":"AI","text":"Executive Order GA-14 closed \"non-essential\" venues."},` +
		`{"speaker":"human","text":""}],"links":["https://gov.texas.gov/ga-14"]}`
	tr, err := parseSanitized(out, logger)
	require.NoError(t, err)
	require.True(t, tr.Attributed())
	assert.Equal(t, StrategyGenerative, tr.Strategy)
	assert.Equal(t, "User: Which orders applied in Q2 2020?\n\n"+
		`Assistant: Executive Order GA-14 closed "non-essential" venues.`+
		"\n\nSources:\nhttps://gov.texas.gov/ga-14", tr.Text)
	assert.NotContains(t, tr.Text, "{")

	tr, err = parseSanitized(`{"turns":[{"speaker":"narrator","text":"Order 7 applied."},{"text":"No speaker."}]}`, logger)
	require.NoError(t, err)
	assert.False(t, tr.Attributed())
	assert.Equal(t, "narrator: Order 7 applied.\n\nNo speaker.", tr.Text)

	tr, err = parseSanitized(`{"turns":[]}`, logger)
	require.NoError(t, err)
	assert.Equal(t, `{"turns":[]}`, tr.Text)
}

func TestStripTags(t *testing.T) {
	assert.Equal(t, "Hello world & more", StripTags("<div>Hello <b>world</b></div>\n\n<script>alert(1)</script><p>&amp; more</p>"))
	assert.Equal(t, "", StripTags("<div><style>p{}</style></div>"))
}

func TestStrategies_ReportNoContent(t *testing.T) {
	ctx := context.Background()
	empty := snapshot("<html><body><p></p></body></html>")

	_, err := Degenerate(ctx, empty)
	assert.ErrorIs(t, err, ErrNoContent)
	_, err = NewStructural()(ctx, empty)
	assert.ErrorIs(t, err, ErrNoContent)
	_, err = Heuristic(DefaultMinBlockChars)(ctx, empty)
	assert.Error(t, err)
}
