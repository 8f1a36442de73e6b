package processor

import (
	"fmt"
	"regexp"
	"strings"
)

var placeholderPattern = regexp.MustCompile(`\{([a-z_]+)\}`)

// renderTemplate substitutes {name} placeholders from vars. A placeholder
// without a value is an error; vars the template never mentions are fine.
func renderTemplate(tpl string, vars map[string]string) (string, error) {
	var missing []string
	out := placeholderPattern.ReplaceAllStringFunc(tpl, func(token string) string {
		name := token[1 : len(token)-1]
		v, ok := vars[name]
		if !ok {
			missing = append(missing, name)
			return token
		}
		return v
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("template references unknown key %s", strings.Join(missing, ", "))
	}
	return out, nil
}
