// Package expression renders templated values inside node configuration
// before a handler runs.
package expression

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/template"
	"time"
)

// Scope is the data visible to expressions in node config.
type Scope struct {
	// RunID and GraphID identify the run being evaluated.
	RunID   string
	GraphID string

	// Input is the node's primary input.
	Input map[string]any

	// Outputs maps node id to that node's recorded output.
	Outputs map[string]any

	// Global is the run-scoped shared context.
	Global map[string]any

	// Trigger is the payload the run was started with.
	Trigger map[string]any
}

func (s Scope) templateData() map[string]any {
	return map[string]any{
		"input":   s.Input,
		"outputs": s.Outputs,
		"global":  s.Global,
		"trigger": s.Trigger,
		"env":     envVars(),
		"run": map[string]any{
			"id":       s.RunID,
			"graph_id": s.GraphID,
		},
	}
}

// Render evaluates a single template string against the scope. Results that
// look like JSON, numbers or booleans are converted to their typed value.
func Render(expr string, scope Scope) (any, error) {
	tmpl, err := template.
		New("expression").
		Funcs(template.FuncMap{
			"now": func() string {
				return time.Now().UTC().Format(time.RFC3339)
			},
			"default": func(fallback, value any) any {
				if value == nil || value == "" {
					return fallback
				}

				return value
			},
		}).Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse expression '%s': %w", expr, err)
	}

	var buf strings.Builder

	err = tmpl.Execute(&buf, scope.templateData())
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate expression '%s': %w", expr, err)
	}

	result := strings.TrimSpace(buf.String())

	if (strings.HasPrefix(result, "{") && strings.HasSuffix(result, "}")) ||
		(strings.HasPrefix(result, "[") && strings.HasSuffix(result, "]")) {
		var jsonResult any

		err := json.Unmarshal([]byte(result), &jsonResult)
		if err == nil {
			return jsonResult, nil
		}
	}

	if num, err := strconv.ParseFloat(result, 64); err == nil {
		return num, nil
	}

	if b, err := strconv.ParseBool(result); err == nil {
		return b, nil
	}

	return result, nil
}

// EvaluateConfig walks a node's config and renders every string that
// contains a template action. Nested maps and slices are evaluated
// recursively; everything else passes through unchanged.
func EvaluateConfig(config map[string]any, scope Scope) (map[string]any, error) {
	if config == nil {
		return nil, nil
	}

	evaluated := make(map[string]any, len(config))

	for key, value := range config {
		result, err := evaluateValue(value, scope)
		if err != nil {
			return nil, fmt.Errorf("failed to evaluate config key '%s': %w", key, err)
		}

		evaluated[key] = result
	}

	return evaluated, nil
}

func evaluateValue(value any, scope Scope) (any, error) {
	switch v := value.(type) {
	case string:
		if !strings.Contains(v, "{{") {
			return v, nil
		}

		return Render(v, scope)
	case map[string]any:
		return EvaluateConfig(v, scope)
	case []any:
		evaluated := make([]any, len(v))

		for i, item := range v {
			result, err := evaluateValue(item, scope)
			if err != nil {
				return nil, err
			}

			evaluated[i] = result
		}

		return evaluated, nil
	default:
		return value, nil
	}
}

func envVars() map[string]any {
	envMap := make(map[string]any)

	for _, env := range os.Environ() {
		parts := strings.SplitN(env, "=", 2)
		if len(parts) == 2 {
			envMap[parts[0]] = parts[1]
		}
	}

	return envMap
}
