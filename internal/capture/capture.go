// Package capture defines the frame source abstraction for the capture/send
// pipeline (spec §4.4). The real webcam driver is out of scope (spec §1);
// this package defines its contract and ships two concrete sources that are
// in scope: a looping file source and a static placeholder image.
package capture

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	_ "image/png"
	"os"
	"sync"
)

// Frame is one raw captured image, ready for optional downscale + JPEG encode.
type Frame struct {
	Image image.Image
}

// Source pulls one raw frame at a time. Implementations must be safe for a
// single caller; the pipeline owns exactly one reader.
type Source interface {
	NextFrame() (Frame, error)
	Close() error
}

// ErrNoDevice is returned by WebcamSource, whose real driver is an external
// collaborator (spec §1) named here only as an interface.
var ErrNoDevice = errors.New("capture: webcam device not available in this build")

// WebcamSource is a named-interface-only stand-in for the real V4L2 /
// AVFoundation capture device. Swap in a real implementation behind the
// Source interface to support an actual camera.
type WebcamSource struct{}

func (WebcamSource) NextFrame() (Frame, error) { return Frame{}, ErrNoDevice }
func (WebcamSource) Close() error              { return nil }

// FileSource replays a single still image file as every captured frame —
// useful for demos, recordings, and tests that don't have a camera.
type FileSource struct {
	mu  sync.Mutex
	img image.Image
}

// NewFileSource decodes path once and serves it for every NextFrame call.
func NewFileSource(path string) (*FileSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, err
	}
	return &FileSource{img: img}, nil
}

func (s *FileSource) NextFrame() (Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Frame{Image: s.img}, nil
}

func (s *FileSource) Close() error { return nil }

// StaticSource serves a fixed "no camera" placeholder image — a solid
// dark-gray rectangle with a darker border — so the send pipeline always has
// something to encode even when no real source is configured.
type StaticSource struct {
	img image.Image
}

// NewStaticSource builds a w x h placeholder frame.
func NewStaticSource(w, h int) *StaticSource {
	rgba := image.NewRGBA(image.Rect(0, 0, w, h))
	fill := color.RGBA{R: 60, G: 60, B: 60, A: 255}
	border := color.RGBA{R: 20, G: 20, B: 20, A: 255}
	draw.Draw(rgba, rgba.Bounds(), &image.Uniform{C: fill}, image.Point{}, draw.Src)
	const b = 4
	for x := 0; x < w; x++ {
		for y := 0; y < b; y++ {
			rgba.Set(x, y, border)
			rgba.Set(x, h-1-y, border)
		}
	}
	for y := 0; y < h; y++ {
		for x := 0; x < b; x++ {
			rgba.Set(x, y, border)
			rgba.Set(w-1-x, y, border)
		}
	}
	return &StaticSource{img: rgba}
}

func (s *StaticSource) NextFrame() (Frame, error) { return Frame{Image: s.img}, nil }
func (s *StaticSource) Close() error              { return nil }

// Encode JPEG-encodes img at the given quality, optionally halving both
// dimensions first (spec's "extreme compression": glossary — halves both
// image dimensions before JPEG encoding).
func Encode(img image.Image, quality int, halveDimensions bool) ([]byte, error) {
	if halveDimensions {
		img = halve(img)
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func halve(img image.Image) image.Image {
	b := img.Bounds()
	w, h := b.Dx()/2, b.Dy()/2
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	out := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			out.Set(x, y, img.At(b.Min.X+x*2, b.Min.Y+y*2))
		}
	}
	return out
}
