// Package fetch - platform.go recognizes the chat hosts whose shared conversations we can capture.
package fetch

import (
	"fmt"
	"net/url"
	"strings"
)

// Host represents a known conversation host.
type Host string

const (
	// HostChatGPT is chatgpt.com / chat.openai.com
	HostChatGPT Host = "chatgpt"
	// HostClaude is claude.ai
	HostClaude Host = "claude"
	// HostGemini is gemini.google.com
	HostGemini Host = "gemini"
	// HostPerplexity is perplexity.ai
	HostPerplexity Host = "perplexity"
	// HostUnknown is an unrecognized host
	HostUnknown Host = "unknown"
)

type hostRule struct {
	host     Host
	domains  []string
	prefixes []string
}

var hostRules = []hostRule{
	{host: HostChatGPT, domains: []string{"chatgpt.com", "chat.openai.com"}, prefixes: []string{"/share/", "/c/", "/g/"}},
	{host: HostClaude, domains: []string{"claude.ai"}, prefixes: []string{"/share/"}},
	{host: HostGemini, domains: []string{"gemini.google.com", "g.co"}, prefixes: []string{"/share/", "/gemini/share/"}},
	{host: HostPerplexity, domains: []string{"perplexity.ai"}, prefixes: []string{"/search/", "/page/"}},
}

func matchDomain(host, domain string) bool {
	return host == domain || strings.HasSuffix(host, "."+domain)
}

// DetectHost identifies the conversation host from a URL.
func DetectHost(urlStr string) Host {
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return HostUnknown
	}
	host := strings.ToLower(parsed.Hostname())
	for _, rule := range hostRules {
		for _, d := range rule.domains {
			if matchDomain(host, d) {
				return rule.host
			}
		}
	}
	return HostUnknown
}

// ValidConversationURL checks that a URL resembles a shared conversation on a known host.
func ValidConversationURL(urlStr string) error {
	parsed, err := url.Parse(strings.TrimSpace(urlStr))
	if err != nil || parsed.Host == "" {
		return fmt.Errorf("invalid conversation URL %q", urlStr)
	}
	if parsed.Scheme != "https" {
		return fmt.Errorf("conversation URL must use https: %q", urlStr)
	}

	host := strings.ToLower(parsed.Hostname())
	for _, rule := range hostRules {
		for _, d := range rule.domains {
			if !matchDomain(host, d) {
				continue
			}
			for _, p := range rule.prefixes {
				if strings.HasPrefix(parsed.Path, p) && len(parsed.Path) > len(p) {
					return nil
				}
			}
			return fmt.Errorf("%s URL is not a shared conversation link: %q", rule.host, urlStr)
		}
	}
	return fmt.Errorf("unsupported conversation host %q", parsed.Host)
}
