// Package prompt renders task payload templates. Task descriptions in the run
// config may reference {{objective}}, {{phase}}, {{role}}, and any variables
// injected by an approval modify decision.
package prompt

import (
	"fmt"
	"regexp"
	"strings"
)

var varRe = regexp.MustCompile(`\{\{([a-zA-Z_][a-zA-Z0-9_]*)\}\}`)

// Vars maps variable names to values for template rendering.
type Vars map[string]string

// Merge returns a copy of base with overrides applied on top.
func Merge(base, overrides Vars) Vars {
	out := make(Vars, len(base)+len(overrides))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range overrides {
		out[k] = v
	}
	return out
}

// Render expands {{variable}} references in tmpl. Referencing a variable that
// is not present is an error so typos in task templates fail loudly at
// dispatch time rather than reaching a provider half-rendered.
func Render(tmpl string, vars Vars) (string, error) {
	var missing []string
	expanded := varRe.ReplaceAllStringFunc(tmpl, func(match string) string {
		m := varRe.FindStringSubmatch(match)
		if m == nil {
			return match
		}
		if val, ok := vars[m[1]]; ok {
			return val
		}
		missing = append(missing, m[1])
		return match
	})

	if len(missing) > 0 {
		return "", fmt.Errorf("missing template variables: %s", strings.Join(missing, ", "))
	}
	return expanded, nil
}
