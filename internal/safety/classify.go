package safety

import (
	"fmt"
	"regexp"
	"strings"
)

type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

const (
	CategoryPromptInjection = "prompt_injection"
	CategoryJailbreak       = "jailbreak_attempt"
	CategoryCodeInjection   = "code_injection"

	CategoryPCI   = "pci"
	CategoryGDPR  = "gdpr"
	CategoryCOPPA = "coppa"
	CategoryHIPAA = "hipaa"
)

type ClassificationLabel struct {
	Category   string     `json:"category"`
	Confidence Confidence `json:"confidence"`
	Detail     string     `json:"detail,omitempty"`
}

type ClassificationResult struct {
	Labels               []ClassificationLabel `json:"labels"`
	RiskScore            int                   `json:"risk_score"`
	HasSafetyRisk        bool                  `json:"has_safety_risk"`
	HasRegulatoryContent bool                  `json:"has_regulatory_content"`
}

// LabelNames - категории меток (для политик и аудита).
func (r ClassificationResult) LabelNames() []string {
	out := make([]string, len(r.Labels))
	for i, l := range r.Labels {
		out[i] = l.Category
	}
	return out
}

type safetyPattern struct {
	source string
	re     *regexp.Regexp
}

type safetyCategory struct {
	name     string
	patterns []safetyPattern
}

func patterns(sources ...string) []safetyPattern {
	out := make([]safetyPattern, len(sources))
	for i, src := range sources {
		out[i] = safetyPattern{source: src, re: regexp.MustCompile(`(?i)` + src)}
	}
	return out
}

var safetyCategories = []safetyCategory{
	{CategoryPromptInjection, patterns(
		`ignore\s+(all\s+)?previous\s+instructions`,
		`disregard\s+(all\s+)?prior\s+(instructions|context)`,
		`you\s+are\s+now\s+(?:a|an)\s+\w+`,
		`system\s*:\s*you\s+are`,
		`\bdo\s+anything\s+now\b`,
		`\bDAN\s+mode\b`,
	)},
	{CategoryJailbreak, patterns(
		`bypass\s+(?:your\s+)?(?:safety|content|moderation)\s+(?:filters?|guidelines?|restrictions?)`,
		`pretend\s+(?:you\s+)?(?:have\s+)?no\s+(?:restrictions?|limitations?|rules?)`,
		`act\s+as\s+(?:if\s+)?(?:you\s+)?(?:have|had)\s+no\s+(?:ethics|morals|guidelines)`,
	)},
	{CategoryCodeInjection, patterns(
		`(?:exec|eval|system)\s*\(`,
		`__import__\s*\(`,
		`os\.(?:system|popen|exec)`,
		`subprocess\.(?:run|call|Popen)`,
	)},
}

// regulatoryOrder фиксирует порядок меток в ответе.
var regulatoryOrder = []string{CategoryPCI, CategoryGDPR, CategoryCOPPA, CategoryHIPAA}

var piiToRegulatory = map[PIIType][]string{
	PIISSN:         {CategoryPCI, CategoryGDPR},
	PIICreditCard:  {CategoryPCI},
	PIIEmail:       {CategoryGDPR, CategoryCOPPA},
	PIIPhone:       {CategoryGDPR},
	PIIDateOfBirth: {CategoryGDPR, CategoryCOPPA, CategoryHIPAA},
	PIIIPAddress:   {CategoryGDPR},
}

// ClassifyContent: safety-метки по тексту (не больше одной на категорию),
// регуляторные метки только по типам найденных PII.
func ClassifyContent(text string, matches []PIIMatch) ClassificationResult {
	res := ClassificationResult{Labels: []ClassificationLabel{}}

	for _, cat := range safetyCategories {
		for _, p := range cat.patterns {
			if !p.re.MatchString(text) {
				continue
			}
			src := p.source
			if len(src) > 50 {
				src = src[:50]
			}
			res.Labels = append(res.Labels, ClassificationLabel{
				Category:   cat.name,
				Confidence: ConfidenceMedium,
				Detail:     "Matched pattern: " + src,
			})
			res.HasSafetyRisk = true
			break
		}
	}

	byCategory := make(map[string][]PIIType)
	for _, t := range UniqueTypes(matches) {
		for _, cat := range piiToRegulatory[t] {
			byCategory[cat] = append(byCategory[cat], t)
		}
	}
	for _, cat := range regulatoryOrder {
		types, ok := byCategory[cat]
		if !ok {
			continue
		}
		names := make([]string, len(types))
		for i, t := range types {
			names[i] = string(t)
		}
		res.Labels = append(res.Labels, ClassificationLabel{
			Category:   cat,
			Confidence: ConfidenceHigh,
			Detail:     fmt.Sprintf("PII detected: %s", strings.Join(names, ", ")),
		})
		res.HasRegulatoryContent = true
	}

	res.RiskScore = riskScore(res.HasSafetyRisk, res.HasRegulatoryContent, len(matches))
	return res
}

func riskScore(safety, regulatory bool, matchCount int) int {
	score := 0
	if safety {
		score += 50
	}
	if regulatory {
		score += 20
	}
	score += min(matchCount*5, 30)
	return max(0, min(score, 100))
}
