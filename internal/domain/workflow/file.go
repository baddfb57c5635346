package workflow

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

//go:embed template.schema.json
var templateSchema []byte

var schemaLoader = gojsonschema.NewBytesLoader(templateSchema)

// DecodeFile reads a template definition from a .json, .yaml or .yml file
// and builds it.
func DecodeFile(path string) (*Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read template %s: %w", path, err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return Decode(data, "json")
	case ".yaml", ".yml":
		return Decode(data, "yaml")
	default:
		return nil, fmt.Errorf("unsupported template file extension: %s", path)
	}
}

// Decode checks a template document against the template schema, decodes
// it and runs structural validation. format is "json" or "yaml".
func Decode(data []byte, format string) (*Template, error) {
	doc := data
	if format == "yaml" {
		var raw interface{}
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("failed to parse template yaml: %w", err)
		}
		converted, err := json.Marshal(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to convert template yaml: %w", err)
		}
		doc = converted
	}

	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return nil, fmt.Errorf("failed to check template schema: %w", err)
	}
	if !result.Valid() {
		violations := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			violations = append(violations, e.String())
		}
		return nil, &InvalidWorkflowError{Violations: violations}
	}

	t, err := ParseTemplate(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to decode template: %w", err)
	}
	return Build(*t)
}
