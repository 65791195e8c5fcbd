package capture

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-framepace/pkg/camera"
)

func TestStage_SkipsUntilSourceReady(t *testing.T) {
	cfg := camera.DefaultConfig()
	stage := NewStage(cfg, nil)
	stream := NewMockStream(cfg.Width, cfg.Height, 2)

	for i := 0; i < 2; i++ {
		p, err := stage.Capture(stream)
		assert.ErrorIs(t, err, ErrNoFrame)
		assert.True(t, p.Empty())
	}

	p, err := stage.Capture(stream)
	require.NoError(t, err)
	require.False(t, p.Empty())
	assert.Equal(t, uint64(1), p.Seq)
}

func TestStage_ProducesJPEG(t *testing.T) {
	cfg := camera.DefaultConfig()
	stage := NewStage(cfg, nil)
	stream := NewMockStream(640, 480, 0)

	p, err := stage.Capture(stream)
	require.NoError(t, err)

	assert.Equal(t, camera.MimeJPEG, p.MimeType)
	assert.Equal(t, 0.9, p.Quality)
	assert.Equal(t, 320, p.Width)
	assert.Equal(t, 240, p.Height)
	assert.False(t, p.CapturedAt.IsZero())
	require.True(t, len(p.Data) > 2)
	assert.Equal(t, []byte{0xFF, 0xD8}, p.Data[:2])

	img, err := jpeg.Decode(bytes.NewReader(p.Data))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 320, 240), img.Bounds())

	p2, err := stage.Capture(stream)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), p2.Seq)
}

func TestStage_StoppedStream(t *testing.T) {
	stage := NewStage(camera.DefaultConfig(), nil)
	stream := NewMockStream(320, 240, 0)
	require.NoError(t, stream.Stop())

	p, err := stage.Capture(stream)
	assert.ErrorIs(t, err, ErrStreamStopped)
	assert.True(t, p.Empty())
}

type failingEncoder struct{}

func (failingEncoder) Encode(image.Image) ([]byte, error) { return nil, errors.New("boom") }
func (failingEncoder) MimeType() string                  { return camera.MimeJPEG }
func (failingEncoder) Quality() float64                  { return 0.9 }

func TestStage_EncodeFailureIsEmpty(t *testing.T) {
	stage := NewStage(camera.DefaultConfig(), failingEncoder{})
	p, err := stage.Capture(NewMockStream(320, 240, 0))
	assert.Error(t, err)
	assert.True(t, p.Empty())
}

func TestCanvas_Mirror(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 4, 2))
	red := color.RGBA{R: 255, A: 255}
	src.SetRGBA(0, 0, red)

	c := NewCanvas(4, 2, true)
	c.Draw(src)

	assert.Equal(t, red, c.Image().RGBAAt(3, 0))
	assert.Equal(t, color.RGBA{}, c.Image().RGBAAt(0, 0))
}

func TestCanvas_CopyWithoutScaling(t *testing.T) {
	src := image.NewRGBA(image.Rect(10, 10, 14, 12))
	blue := color.RGBA{B: 255, A: 255}
	src.SetRGBA(10, 10, blue)

	c := NewCanvas(4, 2, false)
	c.Draw(src)

	assert.Equal(t, blue, c.Image().RGBAAt(0, 0))
}

func TestMockAcquirer(t *testing.T) {
	m := NewMockAcquirer(nil, WithWarmup(1))
	s, err := m.Acquire(context.Background(), camera.DefaultConfig())
	require.NoError(t, err)

	_, err = s.Frame()
	assert.ErrorIs(t, err, ErrNoFrame)
	_, err = s.Frame()
	assert.NoError(t, err)

	require.NoError(t, s.Stop())
	require.NoError(t, s.Stop())
	ms := m.Streams()
	require.Len(t, ms, 1)
	assert.True(t, ms[0].Stopped())
	assert.Equal(t, int64(2), ms[0].StopCalls())
	assert.Equal(t, int64(1), m.Calls())
}

func TestMockAcquirer_Error(t *testing.T) {
	denied := errors.New("permission denied")
	m := NewMockAcquirer(nil, WithAcquireError(denied))
	_, err := m.Acquire(context.Background(), camera.DefaultConfig())
	assert.ErrorIs(t, err, denied)
	assert.Empty(t, m.Streams())
}

func TestMockAcquirer_GateAndContext(t *testing.T) {
	gate := make(chan struct{})
	m := NewMockAcquirer(nil, WithAcquireGate(gate))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := m.Acquire(ctx, camera.DefaultConfig())
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(gate)
	s, err := m.Acquire(context.Background(), camera.DefaultConfig())
	require.NoError(t, err)
	assert.NotNil(t, s)
}
