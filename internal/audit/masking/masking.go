package masking

import "strings"

const maskToken = "****"

// MaskSecret redacts a value while keeping a minimal suffix for auditing.
func MaskSecret(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	if len(trimmed) <= 4 {
		return maskToken
	}
	return maskToken + trimmed[len(trimmed)-4:]
}

// MaskFields returns a copy of input where string values stored under any of
// the sensitive keys are redacted. Nested maps are walked with the same keys.
func MaskFields(input map[string]any, sensitive ...string) map[string]any {
	if len(input) == 0 {
		return nil
	}

	keys := make(map[string]struct{}, len(sensitive))
	for _, key := range sensitive {
		keys[strings.ToLower(strings.TrimSpace(key))] = struct{}{}
	}

	return maskMap(input, keys)
}

func maskMap(input map[string]any, keys map[string]struct{}) map[string]any {
	out := make(map[string]any, len(input))
	for key, value := range input {
		trimmedKey := strings.TrimSpace(key)
		if trimmedKey == "" {
			continue
		}
		if _, ok := keys[strings.ToLower(trimmedKey)]; ok {
			out[trimmedKey] = maskValue(value)
			continue
		}
		if nested, ok := value.(map[string]any); ok {
			out[trimmedKey] = maskMap(nested, keys)
			continue
		}
		out[trimmedKey] = value
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func maskValue(value any) any {
	switch cast := value.(type) {
	case string:
		return MaskSecret(cast)
	case *string:
		if cast == nil {
			return nil
		}
		return MaskSecret(*cast)
	default:
		return value
	}
}
