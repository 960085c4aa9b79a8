package ledger

import (
	"encoding/json"
)

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func ensureJSON(data json.RawMessage) json.RawMessage {
	if data == nil {
		return json.RawMessage(`{}`)
	}
	return data
}

// mergeMeta overlays extra keys onto a JSON object.
func mergeMeta(base json.RawMessage, extra map[string]interface{}) json.RawMessage {
	m := map[string]interface{}{}
	if len(base) > 0 {
		_ = json.Unmarshal(base, &m)
	}
	for k, v := range extra {
		m[k] = v
	}
	out, err := json.Marshal(m)
	if err != nil {
		return ensureJSON(base)
	}
	return out
}
