package texture

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"

	"github.com/klauspost/compress/zlib"
	"github.com/stretchr/testify/require"
)

func legacyTexture(t *testing.T, prefixed bool) []byte {
	t.Helper()

	raw := make([]byte, legacyBytes)
	for i := 0; i < len(raw); i += 4 {
		// Opaque blue in BGRA order.
		raw[i] = 0xff
		raw[i+3] = 0xff
	}

	var buf bytes.Buffer
	if prefixed {
		require.NoError(t, binary.Write(&buf, binary.BigEndian, uint32(legacyBytes)))
	}
	w := zlib.NewWriter(&buf)
	_, err := w.Write(raw)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func decodeDataURI(t *testing.T, uri string) image.Image {
	t.Helper()

	const prefix = "data:image/png;base64,"
	if !strings.HasPrefix(uri, prefix) {
		t.Fatalf("uri = %.40q, want png data uri", uri)
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(uri, prefix))
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	return img
}

func TestEmptyTexture(t *testing.T) {
	uri, err := ToDataURI(nil)
	require.NoError(t, err)
	require.Empty(t, uri)
}

func TestLegacyBitmapIsScaled(t *testing.T) {
	for _, prefixed := range []bool{false, true} {
		uri, err := ToDataURI(legacyTexture(t, prefixed))
		require.NoError(t, err, "prefixed=%v", prefixed)

		img := decodeDataURI(t, uri)
		require.Equal(t, image.Pt(128, 13), img.Bounds().Size())

		r, g, b, a := img.At(64, 6).RGBA()
		require.Equal(t, uint32(0), r>>8)
		require.Equal(t, uint32(0), g>>8)
		require.Equal(t, uint32(0xff), b>>8)
		require.Equal(t, uint32(0xff), a>>8)
	}
}

func TestEncodedImageKeepsSmallSize(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 64, 32))
	src.Set(1, 1, color.NRGBA{R: 255, A: 255})

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, src))

	uri, err := ToDataURI(buf.Bytes())
	require.NoError(t, err)
	require.Equal(t, image.Pt(64, 32), decodeDataURI(t, uri).Bounds().Size())
}

func TestThumbnailKeepsAspectRatio(t *testing.T) {
	img := Thumbnail(image.NewRGBA(image.Rect(0, 0, 256, 512)), MaxSize)
	require.Equal(t, image.Pt(64, 128), img.Bounds().Size())
}

func TestUnknownFormat(t *testing.T) {
	_, err := ToDataURI([]byte("definitely not an image"))
	require.ErrorIs(t, err, ErrUnknownFormat)
}
