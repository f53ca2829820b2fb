package ratelimit

import "strings"

// exempt routes serve health checks and scrapes and are never limited.
var exempt = map[string]bool{
	"GET /health":  true,
	"GET /metrics": true,
}

var unlimited = &EndpointConfig{}

// MatchEndpoint picks the limit for a request. An exact path wins; otherwise
// the longest configured prefix ending in "/" applies. Nil means the default
// limit.
func MatchEndpoint(path, method string, configs []EndpointConfig) *EndpointConfig {
	if exempt[method+" "+path] {
		return unlimited
	}

	var best *EndpointConfig
	for i := range configs {
		ec := &configs[i]
		if ec.Method != method {
			continue
		}
		if ec.Path == path {
			return ec
		}
		if isPrefixRoute(ec.Path) && strings.HasPrefix(path, ec.Path) &&
			(best == nil || len(ec.Path) > len(best.Path)) {
			best = ec
		}
	}
	return best
}

func isPrefixRoute(p string) bool {
	return strings.HasSuffix(p, "/")
}
