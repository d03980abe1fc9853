package encode

import (
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// imageTypes are the extensions the store can infer a MIME type from.
var imageTypes = map[string]string{
	"png":  "image/png",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"gif":  "image/gif",
	"bmp":  "image/bmp",
}

// InferMimeType maps a file extension to the store's MIME type, or "".
func InferMimeType(name string) string {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	return imageTypes[ext]
}

// IsImageFile reports whether path has an extension the store accepts
// without an explicit MIME type.
func IsImageFile(path string) bool {
	return InferMimeType(path) != ""
}

// DetectContentType resolves the MIME type for an item: the declared type
// wins, then content sniffing on head, then the file extension.
// Returns "" when nothing is conclusive; the store then decides.
func DetectContentType(name string, head []byte, declared string) string {
	if declared = strings.TrimSpace(declared); declared != "" {
		return declared
	}

	if len(head) > 0 {
		if mt := mimetype.Detect(head); mt != nil && !isGeneric(mt) {
			return mt.String()
		}
	}

	return InferMimeType(name)
}

func isGeneric(mt *mimetype.MIME) bool {
	return mt.Is("application/octet-stream") || mt.Is("text/plain")
}
