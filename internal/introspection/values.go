package introspection

import (
	"fmt"
	"strings"
)

// parseValueList reads the member list of a MySQL ENUM or SET column type
// such as enum('a','b'). Quotes may be escaped with a backslash or doubled.
func parseValueList(columnType, keyword string) ([]string, error) {
	trimmed := strings.TrimSpace(columnType)
	prefix := keyword + "("
	if len(trimmed) < len(prefix)+1 ||
		!strings.EqualFold(trimmed[:len(prefix)], prefix) ||
		!strings.HasSuffix(trimmed, ")") {
		return nil, fmt.Errorf("invalid %s definition %q", keyword, columnType)
	}

	def := trimmed[len(prefix) : len(trimmed)-1]
	var values []string
	for i := 0; i < len(def); {
		for i < len(def) && (def[i] == ' ' || def[i] == ',') {
			i++
		}
		if i >= len(def) {
			break
		}
		if def[i] != '\'' {
			return nil, fmt.Errorf("expected quote at position %d", i)
		}

		var sb strings.Builder
		closed := false
		for i++; i < len(def); i++ {
			ch := def[i]
			if ch == '\\' {
				if i+1 >= len(def) {
					return nil, fmt.Errorf("unterminated escape")
				}
				i++
				sb.WriteByte(def[i])
				continue
			}
			if ch == '\'' {
				if i+1 < len(def) && def[i+1] == '\'' {
					sb.WriteByte('\'')
					i++
					continue
				}
				closed = true
				i++
				break
			}
			sb.WriteByte(ch)
		}
		if !closed {
			return nil, fmt.Errorf("unterminated value")
		}
		values = append(values, sb.String())

		for i < len(def) && def[i] == ' ' {
			i++
		}
		if i < len(def) && def[i] != ',' {
			return nil, fmt.Errorf("expected comma at position %d", i)
		}
	}

	if len(values) == 0 {
		return nil, fmt.Errorf("no %s values parsed", keyword)
	}
	return values, nil
}
