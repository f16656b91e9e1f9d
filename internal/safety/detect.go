package safety

import (
	"regexp"
	"sort"
)

// PIIType - категория персональных данных
type PIIType string

const (
	PIIEmail       PIIType = "email"
	PIIPhone       PIIType = "phone"
	PIISSN         PIIType = "ssn"
	PIICreditCard  PIIType = "credit_card"
	PIIIPAddress   PIIType = "ip_address"
	PIIDateOfBirth PIIType = "date_of_birth"
)

// PIIMatch - найденный фрагмент. Start/End - байтовые смещения в исходном тексте.
type PIIMatch struct {
	Type  PIIType `json:"type"`
	Value string  `json:"value"`
	Start int     `json:"start"`
	End   int     `json:"end"`
}

// CustomPattern - пользовательский детектор, добавляется к встроенным.
type CustomPattern struct {
	Type    PIIType
	Pattern *regexp.Regexp
}

var builtinPatterns = []CustomPattern{
	{PIIEmail, regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)},
	// США: код региона обязателен, 7 цифр подряд не считаются телефоном
	{PIIPhone, regexp.MustCompile(`(?:\+1[-.\s]?)?(?:\(\d{3}\)\s?|\b\d{3}[-.\s]?)\d{3}[-.\s]?\d{4}\b`)},
	{PIISSN, regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)},
	{PIICreditCard, regexp.MustCompile(`\b(?:(?:4\d{3}|5[1-5]\d{2}|6(?:011|5\d{2}))[-\s]?\d{4}[-\s]?\d{4}[-\s]?\d{4}|3[47]\d{2}[-\s]?\d{6}[-\s]?\d{5})\b`)},
	{PIIIPAddress, regexp.MustCompile(`\b(?:(?:25[0-5]|2[0-4]\d|[01]?\d\d?)\.){3}(?:25[0-5]|2[0-4]\d|[01]?\d\d?)\b`)},
	{PIIDateOfBirth, regexp.MustCompile(`\b(?:\d{1,2}[/-]\d{1,2}[/-]\d{4}|\d{4}-\d{2}-\d{2})\b`)},
}

// DetectPII прогоняет встроенные и пользовательские детекторы.
// Результат отсортирован по Start, пересечения между детекторами не схлопываются.
func DetectPII(text string, custom ...CustomPattern) []PIIMatch {
	if text == "" {
		return nil
	}

	var matches []PIIMatch
	scan := func(p CustomPattern) {
		if p.Pattern == nil {
			return
		}
		for _, loc := range p.Pattern.FindAllStringIndex(text, -1) {
			if loc[0] == loc[1] {
				continue
			}
			matches = append(matches, PIIMatch{
				Type:  p.Type,
				Value: text[loc[0]:loc[1]],
				Start: loc[0],
				End:   loc[1],
			})
		}
	}

	for _, p := range builtinPatterns {
		scan(p)
	}
	for _, p := range custom {
		scan(p)
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Start < matches[j].Start
	})
	return matches
}

// UniqueTypes - типы в порядке первого появления.
func UniqueTypes(matches []PIIMatch) []PIIType {
	seen := make(map[PIIType]struct{}, len(matches))
	out := make([]PIIType, 0, len(matches))
	for _, m := range matches {
		if _, ok := seen[m.Type]; ok {
			continue
		}
		seen[m.Type] = struct{}{}
		out = append(out, m.Type)
	}
	return out
}
