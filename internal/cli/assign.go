package cli

import (
	"fmt"
	"strings"

	"github.com/mstrYoda/repoql"
)

// parseAssignments parses "name=value" pairs. A value written as
// "TYPE:text", where TYPE names a scalar type, is parsed as that type;
// any other value is a STRING.
func parseAssignments(pairs []string) (map[string]repoql.Value, error) {
	out := make(map[string]repoql.Value, len(pairs))
	for _, pair := range pairs {
		name, text, ok := strings.Cut(pair, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid assignment %q: want name=value", pair)
		}
		v, err := parseTypedValue(text)
		if err != nil {
			return nil, fmt.Errorf("invalid assignment %q: %w", pair, err)
		}
		out[name] = v
	}
	return out, nil
}

func parseTypedValue(text string) (repoql.Value, error) {
	if typeName, rest, ok := strings.Cut(text, ":"); ok {
		if t, known := repoql.ScalarTypeByName(typeName); known {
			return repoql.ParseValue(t, rest)
		}
	}
	return repoql.String(text), nil
}
