package simplemedia

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
)

// Document is a schemaless record. Values are strings, numbers, bools,
// time.Time, []interface{}, nested Documents or map[string]interface{}.
type Document map[string]interface{}

// Snapshot is a document read from a DocumentStore.
type Snapshot struct {
	ID      string
	Fields  Document
	Version int64
}

// Direction of a query ordering.
type Direction int

const (
	Ascending Direction = iota
	Descending
)

// Query selects the ordering of a collection scan.
type Query struct {
	OrderBy   string
	Direction Direction
}

// ServerTimestampValue marks a field the store fills with its own clock.
type ServerTimestampValue struct{}

// ServerTimestamp is written in place of a time value that the store must assign.
var ServerTimestamp = ServerTimestampValue{}

// ResolveServerTimestamps returns a deep copy of doc with every ServerTimestamp
// replaced by now. Backends call it before persisting.
func ResolveServerTimestamps(doc Document, now time.Time) Document {
	if doc == nil {
		return nil
	}
	return resolveValue(map[string]interface{}(doc), now).(map[string]interface{})
}

func resolveValue(v interface{}, now time.Time) interface{} {
	switch val := v.(type) {
	case ServerTimestampValue:
		return now
	case *ServerTimestampValue:
		return now
	case Document:
		return resolveValue(map[string]interface{}(val), now)
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			out[k] = resolveValue(item, now)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = resolveValue(item, now)
		}
		return out
	case []map[string]interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = resolveValue(item, now)
		}
		return out
	default:
		return v
	}
}

// HasServerTimestamps reports whether doc contains a ServerTimestamp anywhere.
func HasServerTimestamps(doc Document) bool {
	return hasServerTimestamp(map[string]interface{}(doc))
}

func hasServerTimestamp(v interface{}) bool {
	switch val := v.(type) {
	case ServerTimestampValue, *ServerTimestampValue:
		return true
	case Document:
		return hasServerTimestamp(map[string]interface{}(val))
	case map[string]interface{}:
		for _, item := range val {
			if hasServerTimestamp(item) {
				return true
			}
		}
	case []interface{}:
		for _, item := range val {
			if hasServerTimestamp(item) {
				return true
			}
		}
	case []map[string]interface{}:
		for _, item := range val {
			if hasServerTimestamp(item) {
				return true
			}
		}
	}
	return false
}

// CloneDocument deep-copies the container values of doc.
func CloneDocument(doc Document) Document {
	if doc == nil {
		return nil
	}
	return cloneValue(map[string]interface{}(doc)).(map[string]interface{})
}

func cloneValue(v interface{}) interface{} {
	switch val := v.(type) {
	case Document:
		return cloneValue(map[string]interface{}(val))
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			out[k] = cloneValue(item)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	case []map[string]interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}

// CollectSnapshots drains and closes an iterator.
func CollectSnapshots(ctx context.Context, it DocumentIterator) ([]*Snapshot, error) {
	defer it.Close(ctx)

	var snaps []*Snapshot
	for it.Next(ctx) {
		snaps = append(snaps, it.Snapshot())
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	return snaps, nil
}

// Field accessors tolerate the numeric and container types produced by the
// different store drivers.

func fieldString(m map[string]interface{}, key string) (string, bool, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return "", false, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", true, fmt.Errorf("%w: field %q is %T, want string", ErrInvalidDocument, key, v)
	}
	return s, true, nil
}

func fieldInt(m map[string]interface{}, key string) (int, bool, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return 0, false, nil
	}
	n, err := toInt(v)
	if err != nil {
		return 0, true, fmt.Errorf("%w: field %q: %v", ErrInvalidDocument, key, err)
	}
	return n, true, nil
}

func toInt(v interface{}) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int32:
		return int(n), nil
	case int64:
		return int(n), nil
	case float64:
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("%v is not an integer", n)
		}
		return int(n), nil
	case float32:
		return toInt(float64(n))
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, err
		}
		return int(i), nil
	default:
		return 0, fmt.Errorf("%T is not a number", v)
	}
}

func fieldTime(m map[string]interface{}, key string) (time.Time, bool, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return time.Time{}, false, nil
	}
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), true, nil
	case *time.Time:
		return t.UTC(), true, nil
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		if err != nil {
			return time.Time{}, true, fmt.Errorf("%w: field %q: %v", ErrInvalidDocument, key, err)
		}
		return parsed.UTC(), true, nil
	default:
		return time.Time{}, true, fmt.Errorf("%w: field %q is %T, want time", ErrInvalidDocument, key, v)
	}
}

func fieldSlice(m map[string]interface{}, key string) ([]interface{}, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return nil, nil
	}
	switch s := v.(type) {
	case []interface{}:
		return s, nil
	case []map[string]interface{}:
		out := make([]interface{}, len(s))
		for i := range s {
			out[i] = s[i]
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: field %q is %T, want array", ErrInvalidDocument, key, v)
	}
}

func asMap(v interface{}) (map[string]interface{}, bool) {
	switch m := v.(type) {
	case map[string]interface{}:
		return m, true
	case Document:
		return m, true
	default:
		return nil, false
	}
}

// Media documents

func encodeMediaEntry(e *MediaEntry) Document {
	return Document{
		"name":        e.Name,
		"url":         e.URL,
		"destination": e.Destination,
		"objectKey":   e.ObjectKey,
		"mimeType":    e.MimeType,
		"size":        e.Size,
		"createdAt":   ServerTimestamp,
	}
}

func decodeMediaEntry(snap *Snapshot) (*MediaEntry, error) {
	f := snap.Fields
	url, _, err := fieldString(f, "url")
	if err != nil {
		return nil, err
	}
	if url == "" {
		return nil, fmt.Errorf("%w: media %s has no url", ErrInvalidDocument, snap.ID)
	}
	name, _, err := fieldString(f, "name")
	if err != nil {
		return nil, err
	}
	dest, _, err := fieldString(f, "destination")
	if err != nil {
		return nil, err
	}
	key, _, err := fieldString(f, "objectKey")
	if err != nil {
		return nil, err
	}
	mimeType, _, err := fieldString(f, "mimeType")
	if err != nil {
		return nil, err
	}
	size, _, err := fieldInt(f, "size")
	if err != nil {
		return nil, err
	}
	createdAt, _, err := fieldTime(f, "createdAt")
	if err != nil {
		return nil, err
	}

	return &MediaEntry{
		ID:          snap.ID,
		Name:        name,
		URL:         url,
		Destination: dest,
		ObjectKey:   key,
		MimeType:    mimeType,
		Size:        int64(size),
		CreatedAt:   createdAt,
	}, nil
}

// Archive documents

func encodeArchiveImage(imageURL, mediaID string) Document {
	return Document{
		"imageUrl":  imageURL,
		"mediaId":   mediaID,
		"createdAt": ServerTimestamp,
	}
}

func decodeArchiveImage(snap *Snapshot) (*ArchiveImage, error) {
	f := snap.Fields
	imageURL, _, err := fieldString(f, "imageUrl")
	if err != nil {
		return nil, err
	}
	if imageURL == "" {
		return nil, fmt.Errorf("%w: archive image %s has no imageUrl", ErrInvalidDocument, snap.ID)
	}
	mediaID, _, err := fieldString(f, "mediaId")
	if err != nil {
		return nil, err
	}

	img := &ArchiveImage{ID: snap.ID, ImageURL: imageURL, MediaID: mediaID}
	createdAt, ok, err := fieldTime(f, "createdAt")
	if err != nil {
		return nil, err
	}
	if ok {
		img.CreatedAt = &createdAt
	}
	return img, nil
}

// Positioned documents

// legacy positioned fields
const (
	legacyImageLink      = "imageLink"
	legacyEnquireNowURL  = "enquireNowURL"
	legacyEnquireNowLink = "enquireNowLink"
)

// decodePositionedEntry reads one array element, applying legacy migration.
// migrated reports whether the stored shape differed from the current one.
func decodePositionedEntry(v interface{}) (entry PositionedEntry, migrated bool, err error) {
	m, ok := asMap(v)
	if !ok {
		return entry, false, fmt.Errorf("%w: positioned entry is %T, want object", ErrInvalidDocument, v)
	}

	imageURL, _, err := fieldString(m, "imageUrl")
	if err != nil {
		return entry, false, err
	}
	if imageURL == "" {
		return entry, false, fmt.Errorf("%w: positioned entry has no imageUrl", ErrInvalidDocument)
	}
	entry.ImageURL = imageURL

	pos, hasPos, err := fieldInt(m, "position")
	if err != nil {
		return entry, false, err
	}
	if hasPos && pos >= 1 {
		entry.Position = pos
	} else {
		entry.Position = Unpositioned
	}

	redirect, hasRedirect, err := fieldString(m, "redirectionURL")
	if err != nil {
		return entry, false, err
	}
	entry.RedirectionURL = redirect

	if link, hasLink, _ := fieldString(m, legacyImageLink); hasLink {
		migrated = true
		if !hasRedirect {
			entry.RedirectionURL = link
		}
	}
	if _, ok := m[legacyEnquireNowURL]; ok {
		migrated = true
	}
	if _, ok := m[legacyEnquireNowLink]; ok {
		migrated = true
	}
	return entry, migrated, nil
}

func encodePositionedEntry(e PositionedEntry) map[string]interface{} {
	m := map[string]interface{}{
		"imageUrl": e.ImageURL,
	}
	if e.IsPositioned() {
		m["position"] = e.Position
	}
	if e.RedirectionURL != "" {
		m["redirectionURL"] = e.RedirectionURL
	}
	return m
}

func encodePositionedEntries(entries []PositionedEntry) []interface{} {
	items := make([]interface{}, len(entries))
	for i, e := range entries {
		items[i] = encodePositionedEntry(e)
	}
	return items
}

// Carousel documents

func decodeCarouselEntry(v interface{}) (ScreenCarouselEntry, error) {
	var entry ScreenCarouselEntry
	m, ok := asMap(v)
	if !ok {
		return entry, fmt.Errorf("%w: carousel entry is %T, want object", ErrInvalidDocument, v)
	}
	var err error
	if entry.ImageURL, _, err = fieldString(m, "imageUrl"); err != nil {
		return entry, err
	}
	if entry.ImageURL == "" {
		return entry, fmt.Errorf("%w: carousel entry has no imageUrl", ErrInvalidDocument)
	}
	if entry.CarouselName, _, err = fieldString(m, "carouselName"); err != nil {
		return entry, err
	}
	if entry.ScreenName, _, err = fieldString(m, "screenName"); err != nil {
		return entry, err
	}
	if entry.CreatedAt, _, err = fieldTime(m, "createdAt"); err != nil {
		return entry, err
	}
	return entry, nil
}

func encodeCarouselEntry(e ScreenCarouselEntry) map[string]interface{} {
	m := map[string]interface{}{
		"imageUrl":     e.ImageURL,
		"carouselName": e.CarouselName,
		"screenName":   e.ScreenName,
	}
	if !e.CreatedAt.IsZero() {
		m["createdAt"] = e.CreatedAt
	}
	return m
}

// CompareValues orders two field values for queries. Values of different
// kinds are ordered by kind: numbers, strings, times, booleans, others.
func CompareValues(a, b interface{}) int {
	ra, rb := kindRank(a), kindRank(b)
	if ra != rb {
		return cmpInt(int64(ra), int64(rb))
	}
	switch ra {
	case 0:
		fa, fb := toFloat(a), toFloat(b)
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
		return 0
	case 1:
		return strings.Compare(a.(string), b.(string))
	case 2:
		return a.(time.Time).Compare(b.(time.Time))
	case 3:
		ba, bb := a.(bool), b.(bool)
		switch {
		case ba == bb:
			return 0
		case !ba:
			return -1
		}
		return 1
	}
	return 0
}

func kindRank(v interface{}) int {
	switch v.(type) {
	case int, int32, int64, float32, float64, json.Number:
		return 0
	case string:
		return 1
	case time.Time:
		return 2
	case bool:
		return 3
	default:
		return 4
	}
}

func toFloat(v interface{}) float64 {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case float32:
		return float64(n)
	case float64:
		return n
	case json.Number:
		f, _ := n.Float64()
		return f
	}
	return 0
}

func cmpInt(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
