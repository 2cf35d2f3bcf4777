// file: internal/schema/name_rules.go

package schema

import (
	"regexp"

	"github.com/cockroachdb/errors"
)

// EntityType is the kind of registered entity a name belongs to.
type EntityType string

const (
	EntityTypeTool     EntityType = "tool"
	EntityTypeResource EntityType = "resource"
	EntityTypePrompt   EntityType = "prompt"
)

type nameRule struct {
	pattern *regexp.Regexp
	hint    string
	maxLen  int
}

var identifierRule = nameRule{
	pattern: regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_.-]*$`),
	hint:    "must start with a letter and contain only letters, digits, '_', '-' or '.'",
	maxLen:  64,
}

// Tool and prompt names travel in requests and must be identifier-like.
// Resource names are display labels, so only blank or padded names are refused.
var nameRules = map[EntityType]nameRule{
	EntityTypeTool:   identifierRule,
	EntityTypePrompt: identifierRule,
	EntityTypeResource: {
		pattern: regexp.MustCompile(`^\S(.*\S)?$`),
		hint:    "must not be blank or padded with whitespace",
		maxLen:  128,
	},
}

// ValidateName checks name against the naming rule for kind.
func ValidateName(kind EntityType, name string) error {
	rule, ok := nameRules[kind]
	switch {
	case !ok:
		return errors.Newf("unknown entity type %q", kind)
	case name == "":
		return errors.Newf("%s name is empty", kind)
	case len(name) > rule.maxLen:
		return errors.Newf("%s name is %d characters, limit is %d", kind, len(name), rule.maxLen)
	case !rule.pattern.MatchString(name):
		return errors.Newf("%s name %q %s", kind, name, rule.hint)
	}
	return nil
}
