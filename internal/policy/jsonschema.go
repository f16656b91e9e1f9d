package policy

import (
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// CompileJSONSchema компилирует полноценную JSON Schema (draft 2020-12) для входа инструмента.
func CompileJSONSchema(name, doc string) (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020

	url := "mem://tools/" + name + ".json"
	if err := c.AddResource(url, strings.NewReader(doc)); err != nil {
		return nil, fmt.Errorf("policy: add schema %s: %w", name, err)
	}
	schema, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("policy: compile schema %s: %w", name, err)
	}
	return schema, nil
}

// ValidateJSONSchema приводит ошибки валидатора к формату SchemaResult.
func ValidateJSONSchema(schema *jsonschema.Schema, input any) SchemaResult {
	err := schema.Validate(input)
	if err == nil {
		return SchemaResult{Valid: true, Errors: []string{}}
	}

	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return SchemaResult{Valid: false, Errors: []string{err.Error()}}
	}

	var errs []string
	collectLeaves(verr, &errs)
	if len(errs) == 0 {
		errs = append(errs, verr.Message)
	}
	return SchemaResult{Valid: false, Errors: errs}
}

func collectLeaves(e *jsonschema.ValidationError, out *[]string) {
	if len(e.Causes) == 0 {
		loc := e.InstanceLocation
		if loc == "" {
			loc = "input"
		}
		*out = append(*out, loc+": "+e.Message)
		return
	}
	for _, c := range e.Causes {
		collectLeaves(c, out)
	}
}
