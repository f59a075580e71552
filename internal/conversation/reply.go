package conversation

import (
	"time"

	"github.com/kalambet/querybot/internal/normalize"
)

// payloadField marks a wrapped service result.
const payloadField = "responseText"

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// reply builds the bot message for a successful result. A record carrying
// responseText is a wrapper: the field is the payload and id, createdAt and
// user are metadata.
func reply(query string, v normalize.Value) Message {
	m := Message{
		Role:        RoleBot,
		Kind:        KindNormal,
		SourceQuery: query,
		RawPayload:  v,
	}

	payload := v
	if r := v.Record(); r != nil {
		if inner, ok := r.Get(payloadField); ok {
			payload = inner
			if id, ok := r.Get("id"); ok && isScalar(id) {
				m.RemoteID = normalize.Normalize(id)
			}
			if ts, ok := r.Get("createdAt"); ok {
				if t, ok := parseTimestamp(ts); ok {
					m.Timestamp = t
				}
			}
			if u, ok := r.Get("user"); ok {
				m.User = u
			}
		}
	}

	m.Text = normalize.Normalize(payload)
	return m
}

func isScalar(v normalize.Value) bool {
	switch v.Kind() {
	case normalize.KindString, normalize.KindNumber:
		return true
	}
	return false
}

// parseTimestamp accepts ISO-8601 strings, with or without a zone, and
// epoch milliseconds.
func parseTimestamp(v normalize.Value) (time.Time, bool) {
	if ms, ok := v.Num(); ok {
		return time.UnixMilli(int64(ms)), true
	}
	s, ok := v.Str()
	if !ok || s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
