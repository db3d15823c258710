package simplemedia

import (
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestValidateObjectKey(t *testing.T) {
	valid := []string{"media/a.webp", "a", "blog/2024/05/x_1.webp", "ads/with space.webp"}
	for _, key := range valid {
		assert.NoError(t, ValidateObjectKey(key), key)
	}

	invalid := []string{"", "/abs", "a/../b", "..", "./a", "a//b", `a\b`, "a/\x00b", "a/\nb", "a/"}
	for _, key := range invalid {
		err := ValidateObjectKey(key)
		assert.True(t, errors.Is(err, ErrInvalidPath), "key %q: %v", key, err)
	}
}

func TestWebPName(t *testing.T) {
	tests := map[string]string{
		"beach.jpg":        "beach.webp",
		"archive.tar.gz":   "archive.tar.webp",
		"noext":            "noext.webp",
		"already.webp":     "already.webp",
		"dir/photo.PNG":    "photo.webp",
		`C:\Users\me\x.gif`: "x.webp",
	}
	for in, want := range tests {
		assert.Equal(t, want, WebPName(in), in)
	}
}

func TestFilenameGenerator(t *testing.T) {
	frozen := time.UnixMilli(1700000000000)
	g := newFilenameGenerator(func() time.Time { return frozen })

	first := g.next("beach.jpg")
	second := g.next("beach.jpg")
	assert.Equal(t, "beach_1700000000000.webp", first)
	assert.Equal(t, "beach_1700000000001.webp", second)

	assert.Equal(t, "my_photo_1700000000002.webp", g.next("my photo.png"))
	assert.True(t, strings.HasPrefix(g.next("...."), "image_"))
}

func TestObjectKeyFor(t *testing.T) {
	assert.Equal(t, "media/x.webp", objectKeyFor("/media/", "x.webp"))
	assert.Equal(t, "blog/inline/x.webp", objectKeyFor("blog/inline", "x.webp"))
}

func TestFilenameGenerator_LongNames(t *testing.T) {
	g := newFilenameGenerator(func() time.Time { return time.UnixMilli(1700000000000) })

	name := g.next(strings.Repeat("a", 300) + ".jpg")
	assert.Equal(t, strings.Repeat("a", maxBaseNameBytes)+"_1700000000000.webp", name)
	assert.LessOrEqual(t, len(name), 255)

	// 2-byte runes straddling the limit are dropped whole
	name = g.next("a" + strings.Repeat("é", 100) + ".png")
	base := strings.TrimSuffix(name, "_1700000000001.webp")
	assert.True(t, utf8.ValidString(base))
	assert.Equal(t, "a"+strings.Repeat("é", 63), base)
}

func TestTruncateUTF8(t *testing.T) {
	assert.Equal(t, "abc", truncateUTF8("abc", 10))
	assert.Equal(t, "ab", truncateUTF8("abc", 2))
	assert.Equal(t, "a", truncateUTF8("aé", 2))
	assert.Equal(t, "", truncateUTF8("é", 1))
}
