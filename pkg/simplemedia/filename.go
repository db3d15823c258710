package simplemedia

import (
	"fmt"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"
)

// ValidateObjectKey checks that key is a relative, slash-separated path without
// traversal segments, backslashes or control characters.
func ValidateObjectKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: empty key", ErrInvalidPath)
	}
	if strings.HasPrefix(key, "/") {
		return fmt.Errorf("%w: %q is absolute", ErrInvalidPath, key)
	}
	for _, r := range key {
		if r == '\\' || unicode.IsControl(r) {
			return fmt.Errorf("%w: %q contains %q", ErrInvalidPath, key, r)
		}
	}
	for _, segment := range strings.Split(key, "/") {
		switch segment {
		case "":
			return fmt.Errorf("%w: %q has an empty segment", ErrInvalidPath, key)
		case ".", "..":
			return fmt.Errorf("%w: %q has a relative segment", ErrInvalidPath, key)
		}
	}
	return nil
}

// WebPName replaces the final extension of name with ".webp".
func WebPName(name string) string {
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	if base == "." || base == "/" {
		base = ""
	}
	if ext := path.Ext(base); ext != "" {
		base = strings.TrimSuffix(base, ext)
	}
	return base + ".webp"
}

func sanitizeFilename(filename string) string {
	replacer := strings.NewReplacer(
		"/", "_",
		"\\", "_",
		":", "_",
		"*", "_",
		"?", "_",
		"\"", "_",
		"<", "_",
		">", "_",
		"|", "_",
		" ", "_",
		"#", "_",
		"%", "_",
	)
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, replacer.Replace(filename))
	cleaned = strings.Trim(cleaned, ".")
	if cleaned == "" {
		return "image"
	}
	return cleaned
}

// filenameGenerator produces "<base>_<millis>.webp" names. The millisecond
// component is strictly increasing for the lifetime of the generator.
type filenameGenerator struct {
	mu   sync.Mutex
	last int64
	now  func() time.Time
}

func newFilenameGenerator(now func() time.Time) *filenameGenerator {
	if now == nil {
		now = time.Now
	}
	return &filenameGenerator{now: now}
}

func (g *filenameGenerator) next(name string) string {
	g.mu.Lock()
	millis := g.now().UnixMilli()
	if millis <= g.last {
		millis = g.last + 1
	}
	g.last = millis
	g.mu.Unlock()

	base := strings.TrimSuffix(WebPName(name), ".webp")
	base = truncateUTF8(sanitizeFilename(base), maxBaseNameBytes)
	return base + "_" + strconv.FormatInt(millis, 10) + ".webp"
}

// maxBaseNameBytes keeps generated names well below the 255 byte limit of
// common filesystems and object stores once the suffix is added.
const maxBaseNameBytes = 128

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func objectKeyFor(destination, filename string) string {
	return strings.Trim(destination, "/") + "/" + filename
}
