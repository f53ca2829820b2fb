package research

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/api/customsearch/v1"
	"google.golang.org/api/option"

	"github.com/jonathan/erc-protest-agent/internal/logging"
	"github.com/jonathan/erc-protest-agent/internal/types"
)

// Source is a search hit that may document a government order.
type Source struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Snippet string `json:"snippet,omitempty"`
	// Official is set for government domains.
	Official bool `json:"official"`
}

// Searcher finds order documents through a programmable search engine.
type Searcher struct {
	svc    *customsearch.Service
	cx     string
	logger *zap.Logger
}

// NewSearcher creates a Searcher. Extra client options override the API key,
// e.g. to point at a different endpoint.
func NewSearcher(ctx context.Context, apiKey, cx string, logger *zap.Logger, opts ...option.ClientOption) (*Searcher, error) {
	if cx == "" {
		return nil, fmt.Errorf("search engine ID is required")
	}
	clientOpts := append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)
	svc, err := customsearch.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create customsearch service: %w", err)
	}
	return &Searcher{svc: svc, cx: cx, logger: logging.OrNop(logger)}, nil
}

// Queries returns the searches run for a request: state, city and county
// orders for the claim year.
func Queries(req Request) []string {
	city, state := types.SplitLocation(req.Location)
	year := ""
	if q, ok := types.ParseQuarter(req.Period); ok {
		year = strconv.Itoa(q.Year)
	}
	join := func(parts ...string) string {
		var kept []string
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				kept = append(kept, p)
			}
		}
		return strings.Join(kept, " ")
	}
	queries := []string{
		join(state, "governor executive order COVID-19", year),
		join(city, state, "emergency order COVID-19 closure", year),
		join(city, state, "county public health order COVID-19", year),
	}
	if bt := types.BusinessTypeForNAICS(req.NAICSCode); bt != "business" {
		queries = append(queries, join(state, bt, "COVID-19 restrictions order", year))
	}
	return queries
}

// FindOrderSources runs every query and returns unique hits, government
// domains first. A failed query is skipped.
func (s *Searcher) FindOrderSources(ctx context.Context, req Request, perQuery int) ([]Source, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid research request: %w", err)
	}
	if perQuery <= 0 || perQuery > 10 {
		perQuery = 5
	}

	var sources []Source
	seen := make(map[string]bool)
	failures := 0
	queries := Queries(req)
	for _, q := range queries {
		resp, err := s.svc.Cse.List().Cx(s.cx).Q(q).Num(int64(perQuery)).Context(ctx).Do()
		if err != nil {
			failures++
			s.logger.Warn("search query failed", zap.String("query", q), zap.Error(err))
			continue
		}
		for _, item := range resp.Items {
			if item.Link == "" || seen[item.Link] {
				continue
			}
			seen[item.Link] = true
			sources = append(sources, Source{
				URL:      item.Link,
				Title:    item.Title,
				Snippet:  item.Snippet,
				Official: IsOfficial(item.Link),
			})
		}
	}
	if failures == len(queries) {
		return nil, fmt.Errorf("all %d search queries failed", failures)
	}

	sort.SliceStable(sources, func(i, j int) bool {
		return sources[i].Official && !sources[j].Official
	})
	return sources, nil
}

// IsOfficial reports whether a URL is hosted on a government domain.
func IsOfficial(link string) bool {
	parsed, err := url.Parse(link)
	if err != nil {
		return false
	}
	host := strings.ToLower(parsed.Hostname())
	return strings.HasSuffix(host, ".gov") || strings.HasSuffix(host, ".mil") ||
		strings.Contains(host, ".state.") || strings.HasSuffix(host, ".us")
}
