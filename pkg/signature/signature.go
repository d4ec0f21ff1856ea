// Package signature implements the canonical key-sorted HMAC-SHA256 scheme
// shared by the hosted-checkout gateways.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strconv"
	"strings"
)

// Canonical sorts keys and joins them as key=value pairs separated by "&".
// Nil values render as empty strings; nested values render as compact JSON.
func Canonical(fields map[string]any) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(formatValue(fields[k]))
	}
	return b.String()
}

func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		if val == "null" || val == "undefined" {
			return ""
		}
		return val
	case json.Number:
		return val.String()
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case bool:
		return strconv.FormatBool(val)
	default:
		raw, err := json.Marshal(val)
		if err != nil {
			return ""
		}
		return string(raw)
	}
}

// Sign returns the lowercase hex HMAC-SHA256 of message under secret.
func Sign(message, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(message))
	return hex.EncodeToString(mac.Sum(nil))
}

// SignFields signs the canonical form of fields.
func SignFields(fields map[string]any, secret string) string {
	return Sign(Canonical(fields), secret)
}

// Verify compares the expected signature of message against provided in constant time.
// It never errors; any mismatch, including malformed input, yields false.
func Verify(message, provided, secret string) bool {
	if provided == "" || secret == "" {
		return false
	}
	expected := Sign(message, secret)
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(strings.TrimSpace(provided))))
}

// VerifyFields verifies provided against the canonical form of fields.
func VerifyFields(fields map[string]any, provided, secret string) bool {
	return Verify(Canonical(fields), provided, secret)
}

// DecodeFields parses a JSON object preserving numbers exactly as sent.
func DecodeFields(raw []byte) (map[string]any, error) {
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	dec.UseNumber()
	fields := map[string]any{}
	if err := dec.Decode(&fields); err != nil {
		return nil, err
	}
	return fields, nil
}
