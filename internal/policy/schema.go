package policy

import (
	"fmt"
	"sort"
	"strings"
)

// SchemaProperty - упрощенная схема поля: тип и/или enum.
type SchemaProperty struct {
	Type string `json:"type,omitempty" yaml:"type,omitempty" mapstructure:"type"` // string|number|boolean|object|array
	Enum []any  `json:"enum,omitempty" yaml:"enum,omitempty" mapstructure:"enum"`
}

// SimpleSchema - легковесное подмножество JSON Schema для входа инструмента.
type SimpleSchema struct {
	SchemaProperty `yaml:",inline" mapstructure:",squash"`
	Required       []string                  `json:"required,omitempty" yaml:"required,omitempty" mapstructure:"required"`
	Properties     map[string]SchemaProperty `json:"properties,omitempty" yaml:"properties,omitempty" mapstructure:"properties"`
}

type SchemaResult struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors"`
}

// ValidateSchema собирает все нарушения, а не только первое.
func ValidateSchema(input any, schema SimpleSchema) SchemaResult {
	errs := make([]string, 0)

	if schema.Type == "object" {
		obj, ok := input.(map[string]any)
		if !ok {
			return SchemaResult{Valid: false, Errors: []string{"Expected an object"}}
		}

		for _, field := range schema.Required {
			if _, ok := obj[field]; !ok {
				errs = append(errs, "Missing required field: "+field)
			}
		}

		// порядок ошибок детерминирован
		keys := make([]string, 0, len(schema.Properties))
		for k := range schema.Properties {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, key := range keys {
			if v, ok := obj[key]; ok {
				errs = append(errs, validateValue(v, schema.Properties[key], key)...)
			}
		}
	} else {
		errs = append(errs, validateValue(input, schema.SchemaProperty, "input")...)
	}

	return SchemaResult{Valid: len(errs) == 0, Errors: errs}
}

func validateValue(value any, prop SchemaProperty, path string) []string {
	var errs []string

	if prop.Type != "" {
		if actual := jsonType(value); actual != prop.Type {
			errs = append(errs, fmt.Sprintf("%s: expected %s, got %s", path, prop.Type, actual))
		}
	}

	if len(prop.Enum) > 0 {
		found := false
		for _, allowed := range prop.Enum {
			if strictEqual(value, allowed) {
				found = true
				break
			}
		}
		if !found {
			parts := make([]string, len(prop.Enum))
			for i, e := range prop.Enum {
				parts[i] = stringify(e)
			}
			errs = append(errs, fmt.Sprintf("%s: must be one of [%s]", path, strings.Join(parts, ", ")))
		}
	}

	return errs
}

// jsonType - имя типа значения после json.Unmarshal; массивы определяются раньше объектов.
func jsonType(v any) string {
	switch v.(type) {
	case []any, []string:
		return "array"
	case map[string]any:
		return "object"
	case string:
		return "string"
	case bool:
		return "boolean"
	case nil:
		return "null"
	}
	if _, ok := toFloat(v); ok {
		return "number"
	}
	return fmt.Sprintf("%T", v)
}
