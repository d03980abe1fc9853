package encode

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInferMimeType(t *testing.T) {
	tests := map[string]string{
		"a.png":        "image/png",
		"a.PNG":        "image/png",
		"b.jpg":        "image/jpeg",
		"b.jpeg":       "image/jpeg",
		"c.gif":        "image/gif",
		"d.bmp":        "image/bmp",
		"e.webp":       "",
		"noextension":  "",
		"dir.png/file": "",
	}
	for name, want := range tests {
		assert.Equal(t, want, InferMimeType(name), name)
	}
}

func TestIsImageFile(t *testing.T) {
	assert.True(t, IsImageFile("/photos/cat.JPG"))
	assert.False(t, IsImageFile("/photos/notes.txt"))
}

func TestDetectContentType(t *testing.T) {
	assert.Equal(t, "image/gif", DetectContentType("x.gif", nil, ""))
	assert.Equal(t, "", DetectContentType("x.txt", []byte("just some text"), ""))
	assert.Equal(t, "image/png", DetectContentType("x.txt", pngHeader, ""))
	assert.Equal(t, "image/webp", DetectContentType("x.png", nil, " image/webp "))
}
