package simplemedia

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveServerTimestamps(t *testing.T) {
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	doc := Document{
		"createdAt": ServerTimestamp,
		"items": []interface{}{
			map[string]interface{}{"createdAt": ServerTimestamp, "imageUrl": "a"},
			"plain",
		},
		"nested": Document{"at": &ServerTimestampValue{}},
	}

	out := ResolveServerTimestamps(doc, now)
	assert.Equal(t, now, out["createdAt"])
	items := out["items"].([]interface{})
	assert.Equal(t, now, items[0].(map[string]interface{})["createdAt"])
	assert.Equal(t, "plain", items[1])
	assert.Equal(t, now, out["nested"].(map[string]interface{})["at"])

	// the input keeps its sentinels
	assert.Equal(t, ServerTimestamp, doc["createdAt"])
	assert.Nil(t, ResolveServerTimestamps(nil, now))
}

func TestCloneDocument(t *testing.T) {
	doc := Document{"items": []interface{}{map[string]interface{}{"a": 1}}}
	clone := CloneDocument(doc)
	clone["items"].([]interface{})[0].(map[string]interface{})["a"] = 2
	assert.Equal(t, 1, doc["items"].([]interface{})[0].(map[string]interface{})["a"])
}

func TestCompareValues(t *testing.T) {
	early := time.Unix(100, 0)
	late := time.Unix(200, 0)

	tests := []struct {
		a, b interface{}
		want int
	}{
		{1, 2, -1},
		{int64(5), 5.0, 0},
		{json.Number("7"), int32(3), 1},
		{"a", "b", -1},
		{early, late, -1},
		{late, late, 0},
		{false, true, -1},
		{1, "1", -1},
		{"z", early, -1},
		{true, 1, 1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CompareValues(tt.a, tt.b), "%v vs %v", tt.a, tt.b)
	}
}

func TestDecodeMediaEntry(t *testing.T) {
	at := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	entry, err := decodeMediaEntry(&Snapshot{ID: "m1", Fields: Document{
		"name":        "beach_1.webp",
		"url":         "memory://objects/media/beach_1.webp",
		"destination": "media",
		"objectKey":   "media/beach_1.webp",
		"mimeType":    "image/webp",
		"size":        float64(1234),
		"createdAt":   at.Format(time.RFC3339Nano),
	}})
	require.NoError(t, err)
	assert.Equal(t, "m1", entry.ID)
	assert.Equal(t, int64(1234), entry.Size)
	assert.Equal(t, at, entry.CreatedAt)

	_, err = decodeMediaEntry(&Snapshot{ID: "m2", Fields: Document{"name": "x"}})
	assert.True(t, errors.Is(err, ErrInvalidDocument))

	_, err = decodeMediaEntry(&Snapshot{ID: "m3", Fields: Document{"url": 42}})
	assert.True(t, errors.Is(err, ErrInvalidDocument))
}

func TestDecodeArchiveImage(t *testing.T) {
	img, err := decodeArchiveImage(&Snapshot{ID: "a1", Fields: Document{"imageUrl": "u"}})
	require.NoError(t, err)
	assert.Nil(t, img.CreatedAt)

	_, err = decodeArchiveImage(&Snapshot{ID: "a2", Fields: Document{}})
	assert.True(t, errors.Is(err, ErrInvalidDocument))
}

func TestDecodePositionedEntry(t *testing.T) {
	tests := []struct {
		name     string
		in       interface{}
		want     PositionedEntry
		migrated bool
		invalid  bool
	}{
		{
			name: "current shape",
			in:   map[string]interface{}{"imageUrl": "a", "position": int64(2), "redirectionURL": "https://x.test"},
			want: PositionedEntry{ImageURL: "a", Position: 2, RedirectionURL: "https://x.test"},
		},
		{
			name: "missing position is unpositioned",
			in:   map[string]interface{}{"imageUrl": "a"},
			want: PositionedEntry{ImageURL: "a", Position: Unpositioned},
		},
		{
			name: "negative position is unpositioned",
			in:   map[string]interface{}{"imageUrl": "a", "position": -3},
			want: PositionedEntry{ImageURL: "a", Position: Unpositioned},
		},
		{
			name:     "imageLink becomes redirectionURL",
			in:       map[string]interface{}{"imageUrl": "a", "position": 1, "imageLink": "https://old.test"},
			want:     PositionedEntry{ImageURL: "a", Position: 1, RedirectionURL: "https://old.test"},
			migrated: true,
		},
		{
			name:     "redirectionURL wins over imageLink",
			in:       map[string]interface{}{"imageUrl": "a", "redirectionURL": "https://new.test", "imageLink": "https://old.test"},
			want:     PositionedEntry{ImageURL: "a", RedirectionURL: "https://new.test"},
			migrated: true,
		},
		{
			name:     "enquire fields are dropped",
			in:       map[string]interface{}{"imageUrl": "a", "enquireNowURL": "x", "enquireNowLink": "y"},
			want:     PositionedEntry{ImageURL: "a"},
			migrated: true,
		},
		{name: "not an object", in: "a", invalid: true},
		{name: "no image url", in: map[string]interface{}{"position": 1}, invalid: true},
		{name: "fractional position", in: map[string]interface{}{"imageUrl": "a", "position": 1.5}, invalid: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, migrated, err := decodePositionedEntry(tt.in)
			if tt.invalid {
				assert.True(t, errors.Is(err, ErrInvalidDocument))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.migrated, migrated)
		})
	}
}

func TestEncodePositionedEntry(t *testing.T) {
	assert.Equal(t,
		map[string]interface{}{"imageUrl": "a", "position": 3, "redirectionURL": "https://x.test"},
		encodePositionedEntry(PositionedEntry{ImageURL: "a", Position: 3, RedirectionURL: "https://x.test"}))
	assert.Equal(t,
		map[string]interface{}{"imageUrl": "a"},
		encodePositionedEntry(PositionedEntry{ImageURL: "a"}))
}

func TestHasServerTimestamps(t *testing.T) {
	assert.False(t, HasServerTimestamps(Document{"a": 1, "items": []interface{}{"x"}}))
	assert.True(t, HasServerTimestamps(Document{"createdAt": ServerTimestamp}))
	assert.True(t, HasServerTimestamps(Document{"items": []interface{}{map[string]interface{}{"at": ServerTimestamp}}}))
	assert.False(t, HasServerTimestamps(nil))
}
