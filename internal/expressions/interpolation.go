package expressions

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rendis/conduit/pkg/schema"
)

// Interpolation resolves {{...}} placeholders in node configuration.
//
// Two independent passes, kept separate because they read from different
// scopes:
//   - simple form {{field}}: looked up in a flat context map (typically the
//     trigger payload)
//   - qualified form {{nodeId.field}}: looked up in the per-run results map,
//     narrowing to results[nodeId].Data[field]
//
// Both passes are pure string rewrites: a missing field resolves to the empty
// string, placeholder-free input passes through unchanged, and malformed
// input (unclosed braces) is left as-is rather than failing.

// ResolveSimple substitutes {{field}} tokens from a flat context map.
// Tokens containing a dot are left for the qualified pass.
func ResolveSimple(s string, ctx map[string]any) string {
	return rewrite(s, func(token string) (string, bool) {
		if strings.Contains(token, ".") {
			return "", false
		}
		if ctx == nil {
			return "", true
		}
		val, ok := ctx[token]
		if !ok {
			return "", true
		}
		return stringify(val), true
	})
}

// ResolveQualified substitutes {{nodeId.field}} tokens from a run's results
// map. A missing node, a non-success result, or a missing field all resolve
// to the empty string.
func ResolveQualified(s string, results map[string]*schema.ExecutionResult) string {
	return rewrite(s, func(token string) (string, bool) {
		dot := strings.IndexByte(token, '.')
		if dot <= 0 || dot == len(token)-1 {
			return "", false
		}
		nodeID, field := token[:dot], token[dot+1:]
		if results == nil {
			return "", true
		}
		res, ok := results[nodeID]
		if !ok || res == nil || res.Data == nil {
			return "", true
		}
		val, ok := res.Data[field]
		if !ok {
			return "", true
		}
		return stringify(val), true
	})
}

// Resolve applies the qualified pass and then the simple pass.
func Resolve(s string, ctx map[string]any, results map[string]*schema.ExecutionResult) string {
	return ResolveSimple(ResolveQualified(s, results), ctx)
}

// ResolveConfig deep-copies a node config, resolving placeholders in every
// string value (including strings nested in maps and slices).
func ResolveConfig(cfg map[string]any, ctx map[string]any, results map[string]*schema.ExecutionResult) map[string]any {
	if cfg == nil {
		return nil
	}
	out := make(map[string]any, len(cfg))
	for k, v := range cfg {
		out[k] = resolveValue(v, ctx, results)
	}
	return out
}

func resolveValue(v any, ctx map[string]any, results map[string]*schema.ExecutionResult) any {
	switch val := v.(type) {
	case string:
		return Resolve(val, ctx, results)
	case map[string]any:
		return ResolveConfig(val, ctx, results)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = resolveValue(item, ctx, results)
		}
		return out
	default:
		return v
	}
}

// HasPlaceholder checks whether a string contains any {{...}} token.
func HasPlaceholder(s string) bool {
	open := strings.Index(s, "{{")
	return open != -1 && strings.Index(s[open:], "}}") != -1
}

// rewrite scans for {{...}} tokens and replaces those the lookup claims.
// Unclaimed tokens and unclosed markers are written back verbatim.
func rewrite(s string, lookup func(token string) (string, bool)) string {
	if !strings.Contains(s, "{{") {
		return s
	}

	var result strings.Builder
	result.Grow(len(s))

	i := 0
	for i < len(s) {
		open := strings.Index(s[i:], "{{")
		if open == -1 {
			result.WriteString(s[i:])
			break
		}
		result.WriteString(s[i : i+open])
		start := i + open + 2

		end := strings.Index(s[start:], "}}")
		if end == -1 {
			// Unclosed marker: keep the rest untouched.
			result.WriteString(s[i+open:])
			break
		}
		end += start

		token := strings.TrimSpace(s[start:end])
		if replacement, ok := lookup(token); ok {
			result.WriteString(replacement)
		} else {
			result.WriteString(s[i+open : end+2])
		}
		i = end + 2
	}

	return result.String()
}

// stringify converts a resolved value into its inline string representation.
// Complex values (maps, slices) are JSON-encoded.
func stringify(val any) string {
	switch v := val.(type) {
	case string:
		return v
	case nil:
		return ""
	case bool:
		if v {
			return "true"
		}
		return "false"
	case float64:
		return fmt.Sprintf("%v", v)
	case int:
		return fmt.Sprintf("%d", v)
	case int64:
		return fmt.Sprintf("%d", v)
	case json.Number:
		return v.String()
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	}
}
