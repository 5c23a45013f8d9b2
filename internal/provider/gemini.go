package provider

import (
	"net/url"
	"strings"
)

// GeminiPart is one text part of a Gemini content block.
type GeminiPart struct {
	Text string `json:"text"`
}

// GeminiContent is a role-tagged list of parts.
type GeminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []GeminiPart `json:"parts"`
}

// GeminiText builds a single-part content block.
func GeminiText(role, text string) GeminiContent {
	return GeminiContent{Role: role, Parts: []GeminiPart{{Text: text}}}
}

// GeminiURL returns {base}/v1beta/models/{model}:{method}?key={apiKey}.
func GeminiURL(baseURL, model, method, apiKey string) string {
	base := strings.TrimRight(baseURL, "/")
	model = strings.TrimPrefix(model, "models/")
	return base + "/v1beta/models/" + url.PathEscape(model) + ":" + method + "?key=" + url.QueryEscape(apiKey)
}
