package store

import (
	"encoding/json"
	"strings"
)

const redacted = "***REDACTED***"

var redactKeys = map[string]struct{}{
	"password":     {},
	"passphrase":   {},
	"mnemonic":     {},
	"private_key":  {},
	"privatekey":   {},
	"secret":       {},
	"otp":          {},
	"session_blob": {},
	"blob":         {},
	"token":        {},
}

// RedactJSON replaces secret-looking fields in a JSON document.
// Input that is not JSON is returned unchanged.
func RedactJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return raw
	}

	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return raw
	}

	b, err := json.Marshal(redactValue(v))
	if err != nil {
		return raw
	}
	return string(b)
}

// RedactMap returns a copy of m with secret-looking fields replaced.
func RedactMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	return redactValue(m).(map[string]any)
}

func redactValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, vv := range t {
			if _, ok := redactKeys[strings.ToLower(k)]; ok {
				out[k] = redacted
				continue
			}
			out[k] = redactValue(vv)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = redactValue(t[i])
		}
		return out
	default:
		return v
	}
}
