package llm

import (
	"encoding/json"
	"strings"
)

// FallbackReasoning is used whenever generation fails or returns something
// unusable. Generation never fails outward.
const FallbackReasoning = "Action recommended based on business data."

// ActionDraft is the structured pair expected back from the generator.
type ActionDraft struct {
	Reasoning string `json:"reasoning"`
	Content   string `json:"content"`
}

// ParseActionDraft extracts a (reasoning, content) pair from generator
// output. The model is asked for JSON but may reply with fenced blocks,
// prose, or garbage; anything unparseable degrades to the fallback.
func ParseActionDraft(text string) ActionDraft {
	cleaned := stripFences(strings.TrimSpace(text))
	var draft ActionDraft
	if err := json.Unmarshal([]byte(cleaned), &draft); err == nil && draft.Reasoning != "" {
		return draft
	}
	// Some models wrap the object in prose; try the first {...} span.
	if start := strings.Index(cleaned, "{"); start >= 0 {
		if end := strings.LastIndex(cleaned, "}"); end > start {
			if err := json.Unmarshal([]byte(cleaned[start:end+1]), &draft); err == nil && draft.Reasoning != "" {
				return draft
			}
		}
	}
	return ActionDraft{Reasoning: FallbackReasoning}
}

func stripFences(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
