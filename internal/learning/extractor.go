package learning

import (
	"strings"

	"cofounder/internal/domain"
)

// PatternExtractor derives categorical patterns from a logged decision.
// Implementations must be deterministic; returning zero matches is valid.
type PatternExtractor interface {
	Extract(d domain.Decision) []PatternMatch
}

// HeuristicExtractor is the keyword/marker-based extractor. Rules are
// ordered tables; the first matching cue wins within a table.
type HeuristicExtractor struct{}

func NewHeuristicExtractor() HeuristicExtractor { return HeuristicExtractor{} }

type cueRule struct {
	label string
	cues  []string
}

var styleRules = []cueRule{
	{"collaborative", []string{"i'll take care", "we can", "let's", "together", "happy to work with"}},
	{"directive", []string{"you should", "you need to", "you must", "make sure to", "please do"}},
	{"consultative", []string{"i recommend", "i suggest", "you might consider", "my advice", "it may be worth"}},
	{"supportive", []string{"happy to help", "no problem", "i understand", "don't worry", "we've got you"}},
}

var pricingRules = []cueRule{
	{"discount_friendly", []string{"discount", "% off", "coupon", "special deal", "promo"}},
	{"premium_positioning", []string{"premium", "luxury", "high-end", "top quality", "white glove"}},
	{"competitive_pricing", []string{"competitive", "price match", "market rate", "best price"}},
	{"bundling_strategy", []string{"bundle", "package deal", "combo", "all together"}},
}

var timingRules = []cueRule{
	{"immediate_response", []string{"right away", "immediately", "asap", "within the hour", "right now"}},
	{"same_day_response", []string{"today", "this afternoon", "by end of day", "before close"}},
	{"scheduled_followup", []string{"schedule", "next week", "follow up on", "circle back", "later this week"}},
}

var urgencyRules = []cueRule{
	{"high_urgency", []string{"urgent", "asap", "immediately", "critical", "right away"}},
	{"low_urgency", []string{"whenever", "no rush", "no hurry", "at your convenience"}},
}

var formalMarkers = []string{"dear", "sincerely", "regards", "kindly", "furthermore", "please find", "respectfully", "thank you for your"}
var informalMarkers = []string{"hey", "yeah", "gonna", "wanna", "thanks!", "cool", "awesome", "no worries", "btw"}

var casualToneMarkers = []string{"hey", "cool", "awesome", "no worries", "yeah", "sounds good"}
var formalToneMarkers = []string{"dear", "sincerely", "regards", "kindly", "respectfully"}

// Extract runs the heuristics appropriate to the decision type plus the
// always-on formality check.
func (HeuristicExtractor) Extract(d domain.Decision) []PatternMatch {
	text := d.Decision
	lower := strings.ToLower(text)
	example := truncateExample(text)
	var matches []PatternMatch

	add := func(category domain.PreferenceCategory, label string, confidence float64) {
		matches = append(matches, PatternMatch{
			Category:   category,
			Pattern:    label,
			Confidence: confidence,
			Example:    example,
		})
	}

	switch d.Type {
	case domain.DecisionMessageResponse:
		if label := firstCue(lower, styleRules); label != "" {
			add(domain.CategoryCommunicationStyle, label, patternSeed)
		}
		add(domain.CategoryTone, toneLabel(text, lower), patternSeed)
		add(domain.CategoryResponseLength, lengthLabel(text), patternSeed)
	case domain.DecisionPricingSuggestion:
		if label := firstCue(lower, pricingRules); label != "" {
			add(domain.CategoryPricing, label, patternSeed)
		}
	case domain.DecisionLeadFollowup:
		if label := firstCue(lower, timingRules); label != "" {
			add(domain.CategoryTiming, label, patternSeed)
		}
		add(domain.CategoryUrgencyThreshold, urgencyLabel(lower), patternSeed)
	}

	add(domain.CategoryFormality, formalityLabel(lower), formalitySeed)
	return matches
}

func firstCue(lower string, rules []cueRule) string {
	for _, rule := range rules {
		for _, cue := range rule.cues {
			if strings.Contains(lower, cue) {
				return rule.label
			}
		}
	}
	return ""
}

// toneLabel weighs punctuation density, emoji presence and marker words.
func toneLabel(text, lower string) string {
	exclamations := strings.Count(text, "!")
	if exclamations >= 2 || hasEmoji(text) {
		return "enthusiastic"
	}
	if containsAny(lower, casualToneMarkers) {
		return "casual"
	}
	if containsAny(lower, formalToneMarkers) {
		return "formal"
	}
	return "professional"
}

func lengthLabel(text string) string {
	switch n := len(text); {
	case n < 100:
		return "concise"
	case n < 300:
		return "moderate"
	case n < 600:
		return "detailed"
	default:
		return "comprehensive"
	}
}

func urgencyLabel(lower string) string {
	if label := firstCue(lower, urgencyRules); label != "" {
		return label
	}
	return "normal_urgency"
}

// formalityLabel compares formal vs informal marker occurrences across the
// whole text with a margin of one.
func formalityLabel(lower string) string {
	formal := countOccurrences(lower, formalMarkers)
	informal := countOccurrences(lower, informalMarkers)
	switch {
	case formal > informal+1:
		return "high_formality"
	case informal > formal+1:
		return "low_formality"
	default:
		return "balanced_formality"
	}
}

func countOccurrences(lower string, markers []string) int {
	total := 0
	for _, m := range markers {
		total += strings.Count(lower, m)
	}
	return total
}

func containsAny(lower string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

func hasEmoji(text string) bool {
	for _, r := range text {
		if r >= 0x1F300 && r <= 0x1FAFF {
			return true
		}
		if r >= 0x2600 && r <= 0x27BF {
			return true
		}
	}
	return false
}

func truncateExample(text string) string {
	if len(text) <= exampleMaxLen {
		return text
	}
	return text[:exampleMaxLen]
}
