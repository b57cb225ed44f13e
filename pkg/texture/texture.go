// Package texture turns user avatars stored by the host into small PNG data URIs.
package texture

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"io"
	"math"

	"github.com/klauspost/compress/zlib"
	"golang.org/x/image/draw"

	"sybot/pkg/content"
)

const (
	// MaxSize bounds both dimensions of the rendered avatar.
	MaxSize = 128

	legacyWidth  = 600
	legacyHeight = 60
	legacyBytes  = legacyWidth * legacyHeight * 4
)

// ErrUnknownFormat is returned for textures that are neither an encoded image nor a
// compressed raw bitmap.
var ErrUnknownFormat = errors.New("unrecognized texture format")

// ToDataURI renders texture as a PNG data URI no larger than MaxSize on either side.
// An empty texture yields "".
func ToDataURI(texture []byte) (string, error) {
	if len(texture) == 0 {
		return "", nil
	}

	img, err := Decode(texture)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, Thumbnail(img, MaxSize)); err != nil {
		return "", fmt.Errorf("encode texture: %w", err)
	}
	return content.DataURI("image/png", buf.Bytes()), nil
}

// Decode reads a texture as stored by the host: the uploaded image file, or the
// legacy zlib compressed 600x60 BGRA bitmap, with or without its length prefix.
func Decode(texture []byte) (image.Image, error) {
	if img, _, err := image.Decode(bytes.NewReader(texture)); err == nil {
		return img, nil
	}

	raw, err := inflate(texture)
	if err != nil && len(texture) > 4 && binary.BigEndian.Uint32(texture[:4]) == legacyBytes {
		raw, err = inflate(texture[4:])
	}
	if err != nil {
		return nil, ErrUnknownFormat
	}
	if len(raw) != legacyBytes {
		return nil, fmt.Errorf("%w: raw bitmap is %d bytes", ErrUnknownFormat, len(raw))
	}

	img := image.NewRGBA(image.Rect(0, 0, legacyWidth, legacyHeight))
	for i := 0; i < len(raw); i += 4 {
		img.Pix[i] = raw[i+2]
		img.Pix[i+1] = raw[i+1]
		img.Pix[i+2] = raw[i]
		img.Pix[i+3] = raw[i+3]
	}
	return img, nil
}

func inflate(data []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()

	return io.ReadAll(io.LimitReader(r, legacyBytes+1))
}

// Thumbnail scales img down to fit within size x size, keeping its aspect ratio.
// Smaller images are returned unchanged.
func Thumbnail(img image.Image, size int) image.Image {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w <= size && h <= size {
		return img
	}

	scale := math.Min(float64(size)/float64(w), float64(size)/float64(h))
	tw := max(1, int(math.Round(float64(w)*scale)))
	th := max(1, int(math.Round(float64(h)*scale)))

	dst := image.NewRGBA(image.Rect(0, 0, tw, th))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
	return dst
}
