package safety

import (
	"sort"
	"strings"
	"unicode/utf8"
)

type RedactionMode string

const (
	ModeMask        RedactionMode = "mask"
	ModeRemove      RedactionMode = "remove"
	ModePlaceholder RedactionMode = "placeholder"
)

const (
	DefaultMaskChar    = "*"
	DefaultKeepChars   = 2
	DefaultPlaceholder = "[{TYPE}]"

	// KeepNone маскирует значение целиком (нулевой KeepChars означает дефолт).
	KeepNone = -1
)

type RedactionConfig struct {
	Mode        RedactionMode `json:"mode" mapstructure:"mode"`
	MaskChar    string        `json:"mask_char" mapstructure:"mask_char"`
	KeepChars   int           `json:"keep_chars" mapstructure:"keep_chars"`
	Placeholder string        `json:"placeholder" mapstructure:"placeholder"`
	// Types ограничивает редактирование; пусто = все типы
	Types []PIIType `json:"types,omitempty" mapstructure:"types"`
}

func (c RedactionConfig) withDefaults() RedactionConfig {
	if c.Mode == "" {
		c.Mode = ModeMask
	}
	if c.MaskChar == "" {
		c.MaskChar = DefaultMaskChar
	}
	switch {
	case c.KeepChars == 0:
		c.KeepChars = DefaultKeepChars
	case c.KeepChars < 0:
		c.KeepChars = 0
	}
	if c.Placeholder == "" {
		c.Placeholder = DefaultPlaceholder
	}
	return c
}

type span struct {
	typ        PIIType
	start, end int
}

// RedactPII применяет правки с конца текста к началу, чтобы ранние смещения оставались валидными.
// Пересекающиеся совпадения склеиваются в один фрагмент (тип берется у первого).
func RedactPII(text string, matches []PIIMatch, cfg RedactionConfig) string {
	if len(matches) == 0 {
		return text
	}
	cfg = cfg.withDefaults()

	var allowed map[PIIType]struct{}
	if len(cfg.Types) > 0 {
		allowed = make(map[PIIType]struct{}, len(cfg.Types))
		for _, t := range cfg.Types {
			allowed[t] = struct{}{}
		}
	}

	selected := make([]span, 0, len(matches))
	for _, m := range matches {
		if m.Start < 0 || m.End > len(text) || m.Start >= m.End {
			continue
		}
		if allowed != nil {
			if _, ok := allowed[m.Type]; !ok {
				continue
			}
		}
		selected = append(selected, span{typ: m.Type, start: m.Start, end: m.End})
	}
	sort.SliceStable(selected, func(i, j int) bool { return selected[i].start < selected[j].start })

	merged := make([]span, 0, len(selected))
	for _, s := range selected {
		if n := len(merged); n > 0 && s.start < merged[n-1].end {
			if s.end > merged[n-1].end {
				merged[n-1].end = s.end
			}
			continue
		}
		merged = append(merged, s)
	}

	result := text
	for i := len(merged) - 1; i >= 0; i-- {
		s := merged[i]
		result = result[:s.start] + replacement(text[s.start:s.end], s.typ, cfg) + result[s.end:]
	}
	return result
}

func replacement(value string, typ PIIType, cfg RedactionConfig) string {
	switch cfg.Mode {
	case ModeRemove:
		return ""
	case ModePlaceholder:
		return strings.ReplaceAll(cfg.Placeholder, "{TYPE}", strings.ToUpper(string(typ)))
	default:
		return maskValue(value, cfg.MaskChar, cfg.KeepChars)
	}
}

// maskValue считает руны, а не байты.
func maskValue(value, maskChar string, keep int) string {
	n := utf8.RuneCountInString(value)
	if n <= keep*2 {
		return strings.Repeat(maskChar, n)
	}
	runes := []rune(value)
	return string(runes[:keep]) + strings.Repeat(maskChar, n-keep*2) + string(runes[n-keep:])
}
