package capture

import (
	"image/jpeg"
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStaticSourceEncode(t *testing.T) {
	src := NewStaticSource(64, 48)
	frame, err := src.NextFrame()
	require.NoError(t, err)

	data, err := Encode(frame.Image, 50, false)
	require.NoError(t, err)
	require.NotEmpty(t, data)

	img, err := jpeg.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	require.Equal(t, 64, img.Bounds().Dx())
	require.Equal(t, 48, img.Bounds().Dy())
}

func TestExtremeCompressionHalvesDimensions(t *testing.T) {
	src := NewStaticSource(64, 48)
	frame, _ := src.NextFrame()

	data, err := Encode(frame.Image, 50, true)
	require.NoError(t, err)

	img, err := jpeg.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	require.Equal(t, 32, img.Bounds().Dx())
	require.Equal(t, 24, img.Bounds().Dy())
}

func TestWebcamSourceNamedInterfaceOnly(t *testing.T) {
	var s Source = WebcamSource{}
	_, err := s.NextFrame()
	require.ErrorIs(t, err, ErrNoDevice)
}
