// Package template renders Go templates with the sprig function library
// inside nested configuration values.
package template

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
)

// Engine renders every string holding template actions in a value. Maps
// and slices are walked recursively; other values are returned unchanged.
type Engine struct {
	funcs template.FuncMap
}

// New creates a new template engine
func New() *Engine {
	return &Engine{funcs: sprig.TxtFuncMap()}
}

// Render returns a copy of value with its templates executed against the
// merged data maps. Later maps override keys of earlier ones. A reference to
// a missing key is an error.
func (e *Engine) Render(value interface{}, data ...map[string]interface{}) (interface{}, error) {
	return e.render(value, merge(data...))
}

func (e *Engine) render(value interface{}, data map[string]interface{}) (interface{}, error) {
	switch v := value.(type) {
	case string:
		return e.renderString(v, data)
	case map[string]interface{}:
		result := make(map[string]interface{}, len(v))
		for key, val := range v {
			rendered, err := e.render(val, data)
			if err != nil {
				return nil, fmt.Errorf("error in key '%s': %w", key, err)
			}
			result[key] = rendered
		}
		return result, nil
	case []interface{}:
		result := make([]interface{}, len(v))
		for i, val := range v {
			rendered, err := e.render(val, data)
			if err != nil {
				return nil, fmt.Errorf("error at index %d: %w", i, err)
			}
			result[i] = rendered
		}
		return result, nil
	default:
		return value, nil
	}
}

func (e *Engine) renderString(s string, data map[string]interface{}) (string, error) {
	if !strings.Contains(s, "{{") {
		return s, nil
	}

	tmpl, err := template.New("value").Funcs(e.funcs).Option("missingkey=error").Parse(s)
	if err != nil {
		return "", fmt.Errorf("parsing template %q: %w", s, err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("executing template %q: %w", s, err)
	}
	return buf.String(), nil
}

func merge(maps ...map[string]interface{}) map[string]interface{} {
	result := make(map[string]interface{})
	for _, m := range maps {
		for key, value := range m {
			result[key] = value
		}
	}
	return result
}
