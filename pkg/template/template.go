// Package template renders message bodies, endpoints and payloads against instance data.
package template

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"text/template"
	"time"
)

var funcs = template.FuncMap{
	"now": func() string {
		return time.Now().UTC().Format(time.RFC3339)
	},
	"rand": func(max int) int {
		if max <= 0 {
			return 0
		}
		num := make([]byte, 1)
		_, err := rand.Read(num)
		if err != nil {
			return 0
		}

		return int(num[0]) % max
	},
	"upper": strings.ToUpper,
	"lower": strings.ToLower,
	"join": func(sep string, items []any) string {
		parts := make([]string, len(items))
		for idx, item := range items {
			parts[idx] = fmt.Sprint(item)
		}

		return strings.Join(parts, sep)
	},
	"default": func(fallback, value any) any {
		if value == nil {
			return fallback
		}
		if s, ok := value.(string); ok && s == "" {
			return fallback
		}

		return value
	},
	"json": func(value any) (string, error) {
		encoded, err := json.Marshal(value)

		return string(encoded), err
	},
}

// RenderString executes templateStr over data and returns the text.
// Missing keys render as an empty string.
func RenderString(templateStr string, data any) (string, error) {
	if !strings.Contains(templateStr, "{{") {
		return templateStr, nil
	}

	tmpl, err := template.
		New("render").
		Option("missingkey=zero").
		Funcs(funcs).
		Parse(templateStr)
	if err != nil {
		return "", fmt.Errorf("failed to parse template '%s': %w", templateStr, err)
	}

	var buf strings.Builder

	err = tmpl.Execute(&buf, data)
	if err != nil {
		return "", fmt.Errorf("failed to execute template '%s': %w", templateStr, err)
	}

	return strings.ReplaceAll(buf.String(), "<no value>", ""), nil
}

// Render executes templateStr over data and decodes the text into a JSON value,
// number or boolean when it looks like one. Anything else is returned as a string.
func Render(templateStr string, data any) (any, error) {
	result, err := RenderString(templateStr, data)
	if err != nil {
		return nil, err
	}

	// Try to parse as JSON if it looks like JSON
	result = strings.TrimSpace(result)
	if (strings.HasPrefix(result, "{") && strings.HasSuffix(result, "}")) ||
		(strings.HasPrefix(result, "[") && strings.HasSuffix(result, "]")) {
		var jsonResult any

		err := json.Unmarshal([]byte(result), &jsonResult)
		if err == nil {
			return jsonResult, nil
		}

		return jsonResult, fmt.Errorf("failed to parse json '%s': %w", templateStr, err)
	}

	if num, err := strconv.ParseFloat(result, 64); err == nil {
		return num, nil
	}

	if b, err := strconv.ParseBool(result); err == nil {
		return b, nil
	}

	return result, nil
}

// RenderAll renders every string of templates over data.
func RenderAll(templates []string, data any) ([]string, error) {
	rendered := make([]string, 0, len(templates))

	for _, tmpl := range templates {
		out, err := RenderString(tmpl, data)
		if err != nil {
			return nil, err
		}

		if out = strings.TrimSpace(out); out != "" {
			rendered = append(rendered, out)
		}
	}

	return rendered, nil
}
