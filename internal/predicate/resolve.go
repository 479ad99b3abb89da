package predicate

import "strings"

// Value resolution precedence. A higher class wins regardless of which
// input the user touched last:
//
//	array:  ManualValues > ListValues > RawValues
//	scalar: Manual > Selected
//
// Only one provenance class survives; list values are never merged into
// manual ones.

// resolveArray returns the winning tag list, trimmed, empties dropped.
// Nil means nothing to emit.
func resolveArray(in ValueInput) []string {
	for _, candidate := range [][]string{in.ManualValues, in.ListValues, in.RawValues} {
		if tags := cleanTags(candidate); len(tags) > 0 {
			return tags
		}
	}
	return nil
}

// resolveScalar returns the winning trimmed scalar, or "" for nothing.
func resolveScalar(in ValueInput) string {
	if v := strings.TrimSpace(in.Manual); v != "" {
		return v
	}
	return strings.TrimSpace(in.Selected)
}

func cleanTags(tags []string) []string {
	var out []string
	for _, t := range tags {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}
