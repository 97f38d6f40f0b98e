// Package imageutil sniffs photo formats before they are sent to a vision model.
package imageutil

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"

	_ "golang.org/x/image/webp"
)

var ErrUnsupportedImage = errors.New("unsupported or invalid image")

var mimeByFormat = map[string]string{
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"gif":  "image/gif",
	"webp": "image/webp",
}

// DetectMIME returns the MIME type of an encoded image by decoding its header. The file
// extension is not consulted.
func DetectMIME(data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("%w: empty data", ErrUnsupportedImage)
	}
	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnsupportedImage, err)
	}
	mime, ok := mimeByFormat[format]
	if !ok {
		return "", fmt.Errorf("%w: format %q", ErrUnsupportedImage, format)
	}
	return mime, nil
}

// Photo is an image file loaded for model input.
type Photo struct {
	Path string
	MIME string
	Data []byte
}

// LoadPhoto reads path and sniffs its format.
func LoadPhoto(path string) (Photo, error) {
	if path == "" {
		return Photo{}, errors.New("LoadPhoto: path is empty")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Photo{}, fmt.Errorf("LoadPhoto: read file: %w", err)
	}
	mime, err := DetectMIME(b)
	if err != nil {
		return Photo{}, fmt.Errorf("LoadPhoto: %s: %w", path, err)
	}
	return Photo{Path: path, MIME: mime, Data: b}, nil
}
