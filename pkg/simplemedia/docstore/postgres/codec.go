package postgres

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/tendant/simple-media/pkg/simplemedia"
)

// Times are stored as {"$date": "<fixed width UTC>"} so that JSONB ordering of
// a time field is chronological.
const (
	dateKey    = "$date"
	dateLayout = "2006-01-02T15:04:05.000000000Z"
)

func encodeFields(fields simplemedia.Document) (string, error) {
	if fields == nil {
		// a JSON null would turn fields || $n into an array
		return "{}", nil
	}
	tagged := tagTimes(map[string]interface{}(fields))
	b, err := json.Marshal(tagged)
	if err != nil {
		return "", fmt.Errorf("%w: %v", simplemedia.ErrInvalidDocument, err)
	}
	return string(b), nil
}

func tagTimes(v interface{}) interface{} {
	switch val := v.(type) {
	case time.Time:
		return map[string]interface{}{dateKey: val.UTC().Format(dateLayout)}
	case *time.Time:
		if val == nil {
			return nil
		}
		return map[string]interface{}{dateKey: val.UTC().Format(dateLayout)}
	case simplemedia.Document:
		return tagTimes(map[string]interface{}(val))
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			out[k] = tagTimes(item)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = tagTimes(item)
		}
		return out
	case []map[string]interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = tagTimes(item)
		}
		return out
	default:
		return v
	}
}

func decodeFields(raw []byte) (simplemedia.Document, error) {
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	if m == nil {
		return simplemedia.Document{}, nil
	}
	return simplemedia.Document(untagTimes(m).(map[string]interface{})), nil
}

func untagTimes(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		if len(val) == 1 {
			if s, ok := val[dateKey].(string); ok {
				if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
					return t.UTC()
				}
			}
		}
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			out[k] = untagTimes(item)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = untagTimes(item)
		}
		return out
	default:
		return v
	}
}
