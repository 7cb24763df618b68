package businessflow

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var placeholderPattern = regexp.MustCompile(`\{([^{}\s]+)\}`)

// PlaceholderContext maps lowercase placeholder tokens to string, integer or decimal values
type PlaceholderContext map[string]any

// NewPlaceholderContext canonicalizes keys to lowercase
func NewPlaceholderContext(values map[string]any) PlaceholderContext {
	pc := make(PlaceholderContext, len(values))
	for k, v := range values {
		pc.Set(k, v)
	}
	return pc
}

// Set stores v under the lowercase form of key
func (pc PlaceholderContext) Set(key string, v any) {
	pc[strings.ToLower(key)] = v
}

// Lookup resolves a token case-insensitively
func (pc PlaceholderContext) Lookup(token string) (any, bool) {
	v, ok := pc[strings.ToLower(token)]
	return v, ok
}

// RenderTemplate substitutes every {token} found in the context. Tokens without a
// value are left in place, braces included.
func RenderTemplate(body string, pc PlaceholderContext) string {
	return placeholderPattern.ReplaceAllStringFunc(body, func(match string) string {
		token := match[1 : len(match)-1]
		v, ok := pc.Lookup(token)
		if !ok {
			return match
		}
		return formatPlaceholderValue(v)
	})
}

// TemplatePlaceholders lists the distinct lowercase tokens used by body, in order of first use
func TemplatePlaceholders(body string) []string {
	var tokens []string
	seen := make(map[string]struct{})
	for _, m := range placeholderPattern.FindAllStringSubmatch(body, -1) {
		token := strings.ToLower(m[1])
		if _, ok := seen[token]; ok {
			continue
		}
		seen[token] = struct{}{}
		tokens = append(tokens, token)
	}
	return tokens
}

// UnresolvedPlaceholders lists tokens of body the context has no value for
func UnresolvedPlaceholders(body string, pc PlaceholderContext) []string {
	var missing []string
	for _, token := range TemplatePlaceholders(body) {
		if _, ok := pc.Lookup(token); !ok {
			missing = append(missing, token)
		}
	}
	return missing
}

func formatPlaceholderValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case int:
		return strconv.FormatInt(int64(val), 10)
	case int32:
		return strconv.FormatInt(int64(val), 10)
	case int64:
		return strconv.FormatInt(val, 10)
	case uint:
		return strconv.FormatUint(uint64(val), 10)
	case uint32:
		return strconv.FormatUint(uint64(val), 10)
	case uint64:
		return strconv.FormatUint(val, 10)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case fmt.Stringer:
		return val.String()
	case nil:
		return ""
	default:
		return fmt.Sprint(val)
	}
}
