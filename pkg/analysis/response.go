package analysis

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Suggestion is one snippet replacement proposed by the model
type Suggestion struct {
	OriginalCode string `json:"original_code"`
	ImprovedCode string `json:"improved_code"`
	Explanation  string `json:"explanation"`
}

// Response is the JSON object the model is asked to return
type Response struct {
	Summary          string                 `json:"summary"`
	Analysis         map[string]interface{} `json:"analysis"`
	SuggestedChanges []Suggestion           `json:"suggested_changes"`
	// ImprovedContent, when set, replaces the whole file
	ImprovedContent *string `json:"improved_content,omitempty"`
}

var analysisSections = []struct {
	key   string
	title string
}{
	{"code_quality", "Code quality"},
	{"best_practices", "Best practices"},
	{"potential_bugs", "Potential bugs"},
	{"performance", "Performance"},
}

// ParseResponse decodes the model output. The JSON object may be wrapped in
// a markdown code fence or surrounded by prose.
func ParseResponse(raw string) (*Response, error) {
	s := extractJSON(strings.TrimSpace(raw))
	if !strings.HasPrefix(s, "{") {
		return nil, fmt.Errorf("no JSON object in model response")
	}

	var resp Response
	if err := json.Unmarshal([]byte(s), &resp); err != nil {
		return nil, fmt.Errorf("failed to parse model response as JSON: %w", err)
	}
	return &resp, nil
}

// extractJSON extracts JSON from a response that might be wrapped in markdown code blocks
func extractJSON(s string) string {
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start != -1 && end != -1 && end > start {
		return s[start : end+1]
	}
	return s
}

// Apply produces the proposed content. A full replacement wins; otherwise each
// suggestion whose original snippet occurs in the content replaces its first
// occurrence. The suggestions that took effect are returned.
func (r *Response) Apply(original string) (string, []Suggestion) {
	if r.ImprovedContent != nil && strings.TrimSpace(*r.ImprovedContent) != "" {
		return *r.ImprovedContent, r.SuggestedChanges
	}

	content := original
	var applied []Suggestion
	for _, s := range r.SuggestedChanges {
		if s.OriginalCode == "" || s.OriginalCode == s.ImprovedCode {
			continue
		}
		if !strings.Contains(content, s.OriginalCode) {
			continue
		}
		content = strings.Replace(content, s.OriginalCode, s.ImprovedCode, 1)
		applied = append(applied, s)
	}
	return content, applied
}

// Rationale renders the analysis notes and the explanations of applied changes
func (r *Response) Rationale(applied []Suggestion) string {
	var b strings.Builder
	for _, sec := range analysisSections {
		v, ok := r.Analysis[sec.key]
		if !ok || v == nil {
			continue
		}
		text := strings.TrimSpace(fmt.Sprint(v))
		if text == "" {
			continue
		}
		fmt.Fprintf(&b, "**%s**: %s\n\n", sec.title, text)
	}
	for i, s := range applied {
		fmt.Fprintf(&b, "**Change %d**: %s\n\n", i+1, strings.TrimSpace(s.Explanation))
	}
	return strings.TrimSpace(b.String())
}
