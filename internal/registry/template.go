// file: internal/registry/template.go
package registry

import (
	"regexp"
	"strings"

	"github.com/cockroachdb/errors"
)

var placeholderName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// uriTemplate is a compiled URI template. Each {name} placeholder matches a
// non-empty run of characters, "/" included; literal text must match exactly.
type uriTemplate struct {
	raw     string
	vars    []string
	pattern *regexp.Regexp
}

func parseTemplate(raw string) (*uriTemplate, error) {
	if raw == "" {
		return nil, errors.New("uri template must not be empty")
	}

	var expr strings.Builder
	expr.WriteString("(?s)^")
	t := &uriTemplate{raw: raw}
	seen := make(map[string]bool)
	lastWasVar := false

	rest := raw
	for len(rest) > 0 {
		open := strings.IndexByte(rest, '{')
		closing := strings.IndexByte(rest, '}')
		if closing >= 0 && (open < 0 || closing < open) {
			return nil, errors.Newf("uri template %q: unmatched '}'", raw)
		}
		if open < 0 {
			expr.WriteString(regexp.QuoteMeta(rest))
			break
		}
		if open > 0 {
			expr.WriteString(regexp.QuoteMeta(rest[:open]))
			lastWasVar = false
		}
		end := strings.IndexByte(rest[open:], '}')
		if end < 0 {
			return nil, errors.Newf("uri template %q: unmatched '{'", raw)
		}
		name := rest[open+1 : open+end]
		if !placeholderName.MatchString(name) {
			return nil, errors.Newf("uri template %q: invalid placeholder name %q", raw, name)
		}
		if seen[name] {
			return nil, errors.Newf("uri template %q: placeholder %q used twice", raw, name)
		}
		if lastWasVar {
			return nil, errors.Newf("uri template %q: placeholders must be separated by literal text", raw)
		}
		seen[name] = true
		t.vars = append(t.vars, name)
		expr.WriteString("(.+?)")
		lastWasVar = true
		rest = rest[open+end+1:]
	}
	expr.WriteString("$")

	pattern, err := regexp.Compile(expr.String())
	if err != nil {
		return nil, errors.Wrapf(err, "uri template %q", raw)
	}
	t.pattern = pattern
	return t, nil
}

// isConcrete reports whether the template has no placeholders.
func (t *uriTemplate) isConcrete() bool {
	return len(t.vars) == 0
}

// match binds the template's placeholders against uri.
func (t *uriTemplate) match(uri string) (map[string]string, bool) {
	groups := t.pattern.FindStringSubmatch(uri)
	if groups == nil {
		return nil, false
	}
	vars := make(map[string]string, len(t.vars))
	for i, name := range t.vars {
		vars[name] = groups[i+1]
	}
	return vars, true
}
