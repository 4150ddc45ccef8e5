package httpapi

import (
	"encoding/base64"
	"errors"
	"net/http"
	"strings"

	"snapsell/internal/generation"
)

const defaultImageMIMEType = "image/jpeg"

// decodeImage accepts raw base64 (what the web client sends after
// stripping the FileReader prefix) or a full data URL.
func decodeImage(raw string) (generation.Image, error) {
	raw = strings.TrimSpace(raw)
	mimeType := ""

	if strings.HasPrefix(raw, "data:") {
		comma := strings.IndexByte(raw, ',')
		if comma == -1 {
			return generation.Image{}, errors.New("imageBase64 data URL has no payload")
		}
		meta := raw[len("data:"):comma]
		if !strings.HasSuffix(meta, ";base64") {
			return generation.Image{}, errors.New("imageBase64 data URL must be base64 encoded")
		}
		mimeType = strings.ToLower(strings.TrimSuffix(meta, ";base64"))
		raw = raw[comma+1:]
	}

	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(raw, "="))
	}
	if err != nil {
		return generation.Image{}, errors.New("imageBase64 is not valid base64")
	}
	if len(data) == 0 {
		return generation.Image{}, errors.New("imageBase64 is empty")
	}

	if !strings.HasPrefix(mimeType, "image/") {
		mimeType = defaultImageMIMEType
		if sniffed := http.DetectContentType(data); strings.HasPrefix(sniffed, "image/") {
			mimeType = sniffed
		}
	}
	return generation.Image{Data: data, MIMEType: mimeType}, nil
}
