package webhook

import (
	"strings"

	"github.com/tidwall/gjson"
)

// replyKeys are probed in order; the first non-empty value wins.
var replyKeys = []string{"response", "assistant_reply", "message", "text", "output"}

// ExtractReply turns whatever the workflow answered into a single reply string.
// Workflows commonly wrap their output in a one-element array, so the first element
// of a non-empty array is used. Bodies that are not JSON are returned verbatim.
func ExtractReply(body []byte) string {
	raw := string(body)
	if !gjson.Valid(raw) {
		return raw
	}

	payload := gjson.Parse(raw)
	if payload.IsArray() {
		if items := payload.Array(); len(items) > 0 {
			payload = items[0]
		}
	}

	switch {
	case payload.Type == gjson.String:
		return payload.String()
	case payload.IsObject():
		for _, key := range replyKeys {
			value := payload.Get(gjson.Escape(key))
			if isPresent(value) {
				return resultText(value)
			}
		}
		return strings.TrimSpace(payload.Raw)
	default:
		return strings.TrimSpace(payload.Raw)
	}
}

// isPresent treats null, false, zero, "" and empty containers as absent.
func isPresent(value gjson.Result) bool {
	switch value.Type {
	case gjson.String:
		return value.Str != ""
	case gjson.Number:
		return value.Num != 0
	case gjson.True:
		return true
	case gjson.JSON:
		if value.IsArray() {
			return len(value.Array()) > 0
		}
		return len(value.Map()) > 0
	default:
		return false
	}
}

func resultText(value gjson.Result) string {
	if value.Type == gjson.String {
		return value.Str
	}
	return strings.TrimSpace(value.Raw)
}
