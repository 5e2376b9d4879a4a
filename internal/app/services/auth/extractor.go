package auth

import (
	"net"
	"net/http"
	"strings"

	"github.com/runlet-dev/runlet/internal/app/domain/credential"
	"github.com/runlet-dev/runlet/internal/app/domain/route"
)

// APIKeyHeader is the standard header credentials with method "header" are
// presented through.
const APIKeyHeader = "X-API-Key"

var apiKeyQueryParams = []string{"api_key", "apikey"}

// candidate is an extracted token together with the channel it arrived on.
type candidate struct {
	token        string
	method       credential.Method
	customHeader string
}

// extract pulls the candidate token for the route's auth mode. Extraction is
// pinned to the mode's convention; it never probes other modes' channels.
// customHeaders lists the header names registered on custom credentials.
func extract(r *http.Request, mode route.AuthMode, customHeaders []string) (candidate, bool) {
	switch mode {
	case route.AuthAPIKey:
		if v := strings.TrimSpace(r.Header.Get(APIKeyHeader)); v != "" {
			return candidate{token: v, method: credential.MethodHeader}, true
		}
		query := r.URL.Query()
		for _, param := range apiKeyQueryParams {
			if v := strings.TrimSpace(query.Get(param)); v != "" {
				return candidate{token: v, method: credential.MethodQuery}, true
			}
		}
		for _, name := range customHeaders {
			if v := strings.TrimSpace(r.Header.Get(name)); v != "" {
				return candidate{token: v, method: credential.MethodCustom, customHeader: name}, true
			}
		}

	case route.AuthBearer:
		header := r.Header.Get("Authorization")
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") && strings.TrimSpace(parts[1]) != "" {
			return candidate{token: strings.TrimSpace(parts[1]), method: credential.MethodBearer}, true
		}

	case route.AuthBasic:
		if _, password, ok := r.BasicAuth(); ok && password != "" {
			return candidate{token: password, method: credential.MethodBasic}, true
		}
	}
	return candidate{}, false
}

// ClientIP derives the caller's network address, honouring the first
// X-Forwarded-For hop when present.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if first := strings.TrimSpace(strings.Split(fwd, ",")[0]); first != "" {
			return first
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Identifier selects the rate-limit key for a request: the credential token
// when the route counts by API key and a credential is present, otherwise
// the caller's address.
func Identifier(rt route.Route, r *http.Request, cred *credential.Credential) string {
	if rt.RateLimit.KeyBy == route.KeyByAPIKey && cred != nil {
		return cred.Token
	}
	return ClientIP(r)
}
