package transport

import (
	"encoding/json"
	"strings"
)

// formatForLog pretty-prints a JSON payload with secret fields masked and the
// output length capped. Non-JSON payloads are logged raw (still capped).
func formatForLog(raw []byte) string {
	var v any
	out := string(raw)
	if err := json.Unmarshal(raw, &v); err == nil {
		v = maskSensitive(v)
		if pretty, err := json.MarshalIndent(v, "", "  "); err == nil {
			out = string(pretty)
		}
	}
	if len(out) > maxLogBody {
		out = out[:maxLogBody] + "…(truncated)"
	}
	return out
}

// maskSensitive replaces bearer/password/token values anywhere in the payload
// so credentials never reach log files.
func maskSensitive(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, child := range t {
			if isSecretField(k) {
				t[k] = "****"
				continue
			}
			t[k] = maskSensitive(child)
		}
		return t
	case []any:
		for i, child := range t {
			t[i] = maskSensitive(child)
		}
		return t
	default:
		return v
	}
}

func isSecretField(key string) bool {
	switch strings.ToLower(key) {
	case "bearer", "password", "token":
		return true
	}
	return false
}
