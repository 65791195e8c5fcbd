package webcam

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"testing"
	"time"

	"github.com/teslashibe/go-framepace/pkg/camera"
	"github.com/teslashibe/go-framepace/pkg/capture"
)

func TestEncoder_RoundTripsSize(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 64, 48))
	for x := 0; x < 64; x++ {
		img.SetRGBA(x, 10, color.RGBA{R: 200, A: 255})
	}

	enc := NewEncoder(0.9)
	data, err := enc.Encode(img)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if enc.MimeType() != camera.MimeJPEG {
		t.Errorf("MimeType() = %s, want %s", enc.MimeType(), camera.MimeJPEG)
	}

	decoded, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("jpeg.Decode() error = %v", err)
	}
	if decoded.Bounds().Dx() != 64 || decoded.Bounds().Dy() != 48 {
		t.Errorf("decoded size = %v, want 64x48", decoded.Bounds())
	}
}

func TestAcquire_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewAcquirer(nil).Acquire(ctx, camera.DefaultConfig())
	if err == nil {
		t.Fatal("Acquire() with canceled context should fail")
	}
}

func TestStreamFrame_ServesLatestSlot(t *testing.T) {
	s := &Stream{}
	if _, err := s.Frame(); !errors.Is(err, capture.ErrNoFrame) {
		t.Fatalf("Frame() on empty slot error = %v, want ErrNoFrame", err)
	}

	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	s.latest = img

	done := make(chan struct{})
	go func() {
		defer close(done)
		got, err := s.Frame()
		if err != nil || got != image.Image(img) {
			t.Errorf("Frame() = %v, %v, want latest frame", got, err)
		}
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Frame() blocked")
	}

	s.stopped = true
	if _, err := s.Frame(); !errors.Is(err, capture.ErrStreamStopped) {
		t.Errorf("Frame() after stop error = %v, want ErrStreamStopped", err)
	}
}
