package httpx

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// CORSPolicy lets browser clients on other origins search slots and book sessions. A policy with
// no Origins disables CORS entirely. "*" matches any origin.
type CORSPolicy struct {
	Origins     []string
	Methods     []string
	Headers     []string
	Credentials bool
	MaxAge      time.Duration
}

var (
	defaultCORSMethods = []string{http.MethodGet, http.MethodPost, http.MethodOptions}
	defaultCORSHeaders = []string{"Content-Type", "Idempotency-Key", RequestIDHeader}
	// Exposed so clients can correlate failures and back off after a 429.
	corsExposed = strings.Join([]string{RequestIDHeader, "Retry-After", "X-RateLimit-Remaining"}, ", ")
)

type corsRules struct {
	origins     []string
	anyOrigin   bool
	methods     string
	headers     string
	credentials bool
	maxAge      string
}

func compileCORS(p CORSPolicy) corsRules {
	rules := corsRules{credentials: p.Credentials}
	for _, o := range trimAll(p.Origins) {
		if o == "*" {
			rules.anyOrigin = true
			continue
		}
		rules.origins = append(rules.origins, strings.TrimSuffix(o, "/"))
	}
	methods, headers := trimAll(p.Methods), trimAll(p.Headers)
	if len(methods) == 0 {
		methods = defaultCORSMethods
	}
	if len(headers) == 0 {
		headers = defaultCORSHeaders
	}
	rules.methods = strings.Join(methods, ", ")
	rules.headers = strings.Join(headers, ", ")
	if secs := int(p.MaxAge / time.Second); secs > 0 {
		rules.maxAge = strconv.Itoa(secs)
	}
	return rules
}

// allowOrigin returns the Access-Control-Allow-Origin value for origin. Credentialed requests
// never get the wildcard back.
func (c corsRules) allowOrigin(origin string) (string, bool) {
	for _, o := range c.origins {
		if strings.EqualFold(o, origin) {
			return origin, true
		}
	}
	if !c.anyOrigin {
		return "", false
	}
	if c.credentials {
		return origin, true
	}
	return "*", true
}

func WithCORS(p CORSPolicy) Middleware {
	if len(trimAll(p.Origins)) == 0 {
		return nil
	}
	rules := compileCORS(p)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			h := w.Header()
			h.Add("Vary", "Origin")
			allow, ok := rules.allowOrigin(origin)
			if origin == "" || !ok {
				next.ServeHTTP(w, r)
				return
			}
			h.Set("Access-Control-Allow-Origin", allow)
			h.Set("Access-Control-Expose-Headers", corsExposed)
			if rules.credentials {
				h.Set("Access-Control-Allow-Credentials", "true")
			}

			preflight := r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != ""
			if !preflight {
				next.ServeHTTP(w, r)
				return
			}
			h.Add("Vary", "Access-Control-Request-Method")
			h.Add("Vary", "Access-Control-Request-Headers")
			h.Set("Access-Control-Allow-Methods", rules.methods)
			h.Set("Access-Control-Allow-Headers", rules.headers)
			if rules.maxAge != "" {
				h.Set("Access-Control-Max-Age", rules.maxAge)
			}
			w.WriteHeader(http.StatusNoContent)
		})
	}
}

func trimAll(values []string) []string {
	var out []string
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
