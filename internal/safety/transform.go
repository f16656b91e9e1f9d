package safety

import (
	"sort"
	"strconv"
	"strings"
)

// TransformConfig: нулевое значение запускает все этапы, Skip* выключают отдельные.
type TransformConfig struct {
	SkipDetect     bool
	SkipRedact     bool
	SkipClassify   bool
	Redaction      RedactionConfig
	CustomPatterns []CustomPattern
}

// DefaultTransformConfig включает все этапы.
func DefaultTransformConfig() TransformConfig {
	return TransformConfig{}
}

type ContentMetadata struct {
	ContentLength    int                   `json:"content_length"`
	PIITypesDetected []PIIType             `json:"pii_types_detected"`
	PIIMatchCount    int                   `json:"pii_match_count"`
	RiskScore        int                   `json:"risk_score"`
	Labels           []ClassificationLabel `json:"labels"`
}

type TransformResult struct {
	Content        string               `json:"content"`
	Original       string               `json:"-"`
	Transformed    bool                 `json:"transformed"`
	Matches        []PIIMatch           `json:"matches"`
	Classification ClassificationResult `json:"classification"`
	Metadata       ContentMetadata      `json:"metadata"`
}

// TransformContent: detect -> classify -> redact -> metadata.
func TransformContent(text string, cfg TransformConfig) TransformResult {
	var matches []PIIMatch
	if !cfg.SkipDetect {
		matches = DetectPII(text, cfg.CustomPatterns...)
	}

	classification := ClassificationResult{Labels: []ClassificationLabel{}}
	if !cfg.SkipClassify {
		classification = ClassifyContent(text, matches)
	}

	content := text
	if !cfg.SkipRedact && len(matches) > 0 {
		content = RedactPII(text, matches, cfg.Redaction)
	}

	return TransformResult{
		Content:        content,
		Original:       text,
		Transformed:    content != text,
		Matches:        matches,
		Classification: classification,
		Metadata:       buildMetadata(len(text), matches, classification),
	}
}

func buildMetadata(length int, matches []PIIMatch, c ClassificationResult) ContentMetadata {
	return ContentMetadata{
		ContentLength:    length,
		PIITypesDetected: UniqueTypes(matches),
		PIIMatchCount:    len(matches),
		RiskScore:        c.RiskScore,
		Labels:           c.Labels,
	}
}

// PathMatch - совпадение внутри JSON-документа; Path в dotted-нотации.
type PathMatch struct {
	Path string `json:"path"`
	PIIMatch
}

type JSONTransformResult struct {
	Value          any                  `json:"value"`
	Transformed    bool                 `json:"transformed"`
	Matches        []PathMatch          `json:"matches"`
	Classification ClassificationResult `json:"classification"`
	Metadata       ContentMetadata      `json:"metadata"`
}

// TransformJSON проходит по всем строковым значениям декодированного JSON
// (map[string]any / []any) и возвращает новую копию документа.
// Классификация считается по всем строкам сразу.
func TransformJSON(doc any, cfg TransformConfig) JSONTransformResult {
	w := &jsonWalker{cfg: cfg}
	value := w.walk(doc, "")

	flat := make([]PIIMatch, len(w.matches))
	for i, m := range w.matches {
		flat[i] = m.PIIMatch
	}

	classification := ClassificationResult{Labels: []ClassificationLabel{}}
	if !cfg.SkipClassify {
		classification = ClassifyContent(w.joined(), flat)
	}
	return JSONTransformResult{
		Value:          value,
		Transformed:    w.transformed,
		Matches:        w.matches,
		Classification: classification,
		Metadata:       buildMetadata(w.length, flat, classification),
	}
}

type jsonWalker struct {
	cfg         TransformConfig
	texts       []string
	matches     []PathMatch
	length      int
	transformed bool
}

func (w *jsonWalker) walk(v any, path string) any {
	switch node := v.(type) {
	case string:
		// классификация считается по всему документу в TransformJSON
		res := TransformContent(node, TransformConfig{
			SkipDetect:     w.cfg.SkipDetect,
			SkipRedact:     w.cfg.SkipRedact,
			SkipClassify:   true,
			Redaction:      w.cfg.Redaction,
			CustomPatterns: w.cfg.CustomPatterns,
		})
		w.texts = append(w.texts, node)
		w.length += len(node)
		for _, m := range res.Matches {
			w.matches = append(w.matches, PathMatch{Path: path, PIIMatch: m})
		}
		if res.Transformed {
			w.transformed = true
		}
		return res.Content

	case map[string]any:
		keys := make([]string, 0, len(node))
		for k := range node {
			keys = append(keys, k)
		}
		// стабильный порядок совпадений
		sort.Strings(keys)
		out := make(map[string]any, len(node))
		for _, k := range keys {
			out[k] = w.walk(node[k], joinPath(path, k))
		}
		return out

	case []any:
		out := make([]any, len(node))
		for i, item := range node {
			out[i] = w.walk(item, joinPath(path, strconv.Itoa(i)))
		}
		return out
	}
	return v
}

func (w *jsonWalker) joined() string {
	return strings.Join(w.texts, "\n")
}

func joinPath(base, part string) string {
	if base == "" {
		return part
	}
	return base + "." + part
}
