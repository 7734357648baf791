package httpclient

import (
	"net/http"
	"strconv"
	"time"
)

// ParseAnthropicHeaders extracts rate-limit info from Anthropic response
// headers (anthropic-ratelimit-*), used by the native/anthropic adapter.
func ParseAnthropicHeaders(h http.Header) RateLimitInfo {
	var info RateLimitInfo
	if v := h.Get("retry-after"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			info.RetryAfter = time.Duration(secs) * time.Second
		}
	}
	for _, name := range []string{
		"anthropic-ratelimit-input-tokens-reset",
		"anthropic-ratelimit-output-tokens-reset",
		"anthropic-ratelimit-requests-reset",
	} {
		if v := h.Get(name); v != "" {
			if t, err := time.Parse(time.RFC3339, v); err == nil {
				info.ResetUnix = t.Unix()
				break
			}
		}
	}
	return info
}

// ParseOpenAIHeaders extracts rate-limit info from OpenAI-wire-compatible
// response headers (x-ratelimit-*), shared by native/openai, openrouter,
// and litellm adapters since all three are OpenAI-wire-compatible.
func ParseOpenAIHeaders(h http.Header) RateLimitInfo {
	var info RateLimitInfo
	if v := h.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			info.RetryAfter = time.Duration(secs) * time.Second
		}
	}
	for _, name := range []string{"x-ratelimit-reset-tokens", "x-ratelimit-reset-requests"} {
		if v := h.Get(name); v != "" {
			if unix, err := strconv.ParseInt(v, 10, 64); err == nil {
				info.ResetUnix = unix
				break
			}
		}
	}
	return info
}

// ParseGeminiHeaders extracts rate-limit info from Google Gemini response
// headers, used by the native/gemini adapter.
func ParseGeminiHeaders(h http.Header) RateLimitInfo {
	var info RateLimitInfo
	if v := h.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			info.RetryAfter = time.Duration(secs) * time.Second
		}
	}
	return info
}
