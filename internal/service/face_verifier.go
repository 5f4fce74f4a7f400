package service

import (
	"context"
	"encoding/base64"
	"errors"
	"math/rand/v2"
	"strings"
)

// ErrInvalidImage is returned when the face image is not valid base64.
var ErrInvalidImage = errors.New("invalid image data")

// FaceVerifier scores how confidently a captured image shows a live face.
type FaceVerifier interface {
	Verify(ctx context.Context, image []byte) (float64, error)
}

// StubVerifier accepts any decodable image and reports a high random
// confidence in [0.85, 0.99). It stands in until a real verifier is wired.
type StubVerifier struct{}

// Verify implements FaceVerifier.
func (StubVerifier) Verify(_ context.Context, image []byte) (float64, error) {
	if len(image) == 0 {
		return 0, ErrInvalidImage
	}
	return 0.85 + rand.Float64()*0.14, nil
}

// DecodeImageData decodes base64 image data, with or without a
// "data:image/...;base64," prefix.
func DecodeImageData(data string) ([]byte, error) {
	data = strings.TrimSpace(data)
	if strings.HasPrefix(data, "data:") {
		comma := strings.IndexByte(data, ',')
		if comma < 0 {
			return nil, ErrInvalidImage
		}
		data = data[comma+1:]
	}
	img, err := base64.StdEncoding.DecodeString(data)
	if err != nil || len(img) == 0 {
		return nil, ErrInvalidImage
	}
	return img, nil
}
