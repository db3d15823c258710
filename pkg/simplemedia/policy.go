package simplemedia

import (
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

const bytesPerMB = 1024 * 1024

// DetectMimeType sniffs the media type of data, without parameters.
func DetectMimeType(data []byte) string {
	mt := mimetype.Detect(data).String()
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = mt[:i]
	}
	return strings.TrimSpace(mt)
}

// Check validates size and media type of data against the policy and returns
// the sniffed media type. A zero MaxSizeMB disables the size limit and an
// empty prefix list allows every type.
func (p UploadPolicy) Check(data []byte) (string, error) {
	if len(data) == 0 {
		return "", validationf("File is empty")
	}
	if p.MaxSizeMB < 0 {
		return "", validationf("Invalid size limit %dMB", p.MaxSizeMB)
	}
	if p.MaxSizeMB > 0 && int64(len(data)) > int64(p.MaxSizeMB)*bytesPerMB {
		return "", validationf("File size exceeds %dMB limit", p.MaxSizeMB)
	}

	mimeType := DetectMimeType(data)
	if len(p.AllowedMimePrefixes) == 0 {
		return mimeType, nil
	}
	for _, prefix := range p.AllowedMimePrefixes {
		if prefix != "" && strings.HasPrefix(mimeType, prefix) {
			return mimeType, nil
		}
	}
	return "", validationf("File type %s is not allowed", mimeType)
}
