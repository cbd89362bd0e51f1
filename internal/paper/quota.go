package paper

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/rsharma/biopaper/internal/llm"
)

// IsQuotaExceeded classifies a generation failure as a quota / rate-limit
// error. The structured check on the client's error type is authoritative;
// when it misses, the error text is scanned for an embedded JSON fragment
// carrying a 429 code or a RESOURCE_EXHAUSTED status. Some providers bury
// the real error as string-encoded JSON inside a transport error, so the
// scan is recursive and strictly best-effort.
func IsQuotaExceeded(err error) bool {
	if err == nil {
		return false
	}
	var qe *llm.ErrQuotaExceeded
	if errors.As(err, &qe) {
		return true
	}
	return messageSignalsQuota(err.Error())
}

func messageSignalsQuota(msg string) bool {
	v, ok := extractJSON(msg)
	if !ok {
		return false
	}
	return valueSignalsQuota(v, 0)
}

// extractJSON pulls the outermost {...} fragment out of msg and parses it.
func extractJSON(msg string) (any, bool) {
	start := strings.Index(msg, "{")
	end := strings.LastIndex(msg, "}")
	if start < 0 || end <= start {
		return nil, false
	}
	var v any
	if err := json.Unmarshal([]byte(msg[start:end+1]), &v); err != nil {
		return nil, false
	}
	return v, true
}

func valueSignalsQuota(v any, depth int) bool {
	if depth > 5 {
		return false
	}
	switch t := v.(type) {
	case map[string]any:
		if c, ok := t["code"].(float64); ok && int(c) == 429 {
			return true
		}
		if s, ok := t["status"].(string); ok && s == "RESOURCE_EXHAUSTED" {
			return true
		}
		for _, inner := range t {
			if valueSignalsQuota(inner, depth+1) {
				return true
			}
		}
	case []any:
		for _, inner := range t {
			if valueSignalsQuota(inner, depth+1) {
				return true
			}
		}
	case string:
		if inner, ok := extractJSON(t); ok {
			return valueSignalsQuota(inner, depth+1)
		}
	}
	return false
}
