package detect

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	"IntakeDetServer/engine"
	iface "IntakeDetServer/interface"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

type stubBackend struct {
	results []iface.Result
	err     error
	gotConf float32
	gotCh   int
}

func (s *stubBackend) Detect(ctx context.Context, img gocv.Mat, conf float32) ([]iface.Result, error) {
	s.gotConf = conf
	s.gotCh = img.Channels()
	return s.results, s.err
}

func (s *stubBackend) Close() error { return nil }

func newService(backend iface.Backend) *Service {
	model := engine.NewModel(func() (iface.Backend, error) { return backend, nil })
	return NewService(model, DefaultPadding)
}

func encodePNG(t *testing.T, rows, cols int, mt gocv.MatType) []byte {
	t.Helper()
	img := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), rows, cols, mt)
	defer img.Close()
	buf, err := gocv.IMEncode(gocv.PNGFileExt, img)
	require.NoError(t, err)
	defer buf.Close()
	return append([]byte(nil), buf.GetBytes()...)
}

// decodeItem returns the size of the image carried by a data URI.
func decodeItem(t *testing.T, uri string) (cols, rows int) {
	t.Helper()
	require.True(t, strings.HasPrefix(uri, "data:image/png;base64,"))
	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(uri, "data:image/png;base64,"))
	require.NoError(t, err)
	img, err := gocv.IMDecode(data, gocv.IMReadUnchanged)
	require.NoError(t, err)
	defer img.Close()
	return img.Cols(), img.Rows()
}

func TestService_NoDetectionsFallsBackToWholeImage(t *testing.T) {
	backend := &stubBackend{}
	svc := newService(backend)

	res, err := svc.Detect(context.Background(), encodePNG(t, 100, 100, gocv.MatTypeCV8UC3), DefaultConfidence)
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, 0, res.DetectedCount)
	assert.Equal(t, "No distinct items detected. Image added as single item.", res.Message)
	require.Len(t, res.Items, 1)
	assert.Equal(t, 0, res.Items[0].Index)
	assert.Equal(t, Box{0, 0, 100, 100}, res.Items[0].Box)

	cols, rows := decodeItem(t, res.Items[0].Image)
	assert.Equal(t, 100, cols)
	assert.Equal(t, 100, rows)
	assert.InDelta(t, DefaultConfidence, backend.gotConf, 1e-6)
}

func TestService_PadsClampsAndCrops(t *testing.T) {
	backend := &stubBackend{results: []iface.Result{
		{Conf: 0.9, Box: iface.NewBox(40, 40, 60, 60)},
		{Conf: 0.7, Box: iface.NewBox(2.8, 2.2, 20.5, 20.9)},
		{Conf: 0.4, Box: iface.NewBox(70, 10, 100, 80)},
	}}
	svc := newService(backend)

	res, err := svc.Detect(context.Background(), encodePNG(t, 100, 120, gocv.MatTypeCV8UC3), 0.3)
	require.NoError(t, err)

	assert.Equal(t, 3, res.DetectedCount)
	assert.Equal(t, "Detected 3 item(s)", res.Message)
	require.Len(t, res.Items, 3)

	expected := []Box{{30, 30, 70, 70}, {0, 0, 30, 30}, {60, 0, 110, 90}}
	for i, item := range res.Items {
		assert.Equal(t, i, item.Index)
		assert.Equal(t, expected[i], item.Box)
		cols, rows := decodeItem(t, item.Image)
		assert.Equal(t, item.Box[2]-item.Box[0], cols)
		assert.Equal(t, item.Box[3]-item.Box[1], rows)
	}
}

func TestService_NormalizesToThreeChannels(t *testing.T) {
	backend := &stubBackend{}
	svc := newService(backend)

	_, err := svc.Detect(context.Background(), encodePNG(t, 20, 30, gocv.MatTypeCV8UC1), 0.5)
	require.NoError(t, err)
	assert.Equal(t, 3, backend.gotCh)
}

func TestService_Errors(t *testing.T) {
	t.Run("unreadable image", func(t *testing.T) {
		svc := newService(&stubBackend{})
		_, err := svc.Detect(context.Background(), []byte("definitely not an image"), 0.15)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrUnreadableImage))
	})

	t.Run("empty upload", func(t *testing.T) {
		svc := newService(&stubBackend{})
		_, err := svc.Detect(context.Background(), nil, 0.15)
		assert.ErrorIs(t, err, ErrUnreadableImage)
	})

	t.Run("detector failure", func(t *testing.T) {
		svc := newService(&stubBackend{err: errors.New("cuda out of memory")})
		_, err := svc.Detect(context.Background(), encodePNG(t, 10, 10, gocv.MatTypeCV8UC3), 0.15)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "cuda out of memory")
	})

	t.Run("model load failure", func(t *testing.T) {
		model := engine.NewModel(func() (iface.Backend, error) { return nil, errors.New("model file not found") })
		svc := NewService(model, DefaultPadding)
		_, err := svc.Detect(context.Background(), encodePNG(t, 10, 10, gocv.MatTypeCV8UC3), 0.15)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "model file not found")
		assert.False(t, model.Loaded())
	})

	t.Run("zero area box", func(t *testing.T) {
		svc := newService(&stubBackend{results: []iface.Result{{Box: iface.NewBox(200, 200, 220, 220)}}})
		_, err := svc.Detect(context.Background(), encodePNG(t, 100, 100, gocv.MatTypeCV8UC3), 0.15)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "empty crop region")
	})
}

func TestDecodeBase64(t *testing.T) {
	raw := encodePNG(t, 4, 4, gocv.MatTypeCV8UC3)
	plain := base64.StdEncoding.EncodeToString(raw)

	got, err := DecodeBase64(plain)
	require.NoError(t, err)
	assert.Equal(t, raw, got)

	got, err = DecodeBase64("data:image/png;base64," + plain)
	require.NoError(t, err)
	assert.Equal(t, raw, got)

	_, err = DecodeBase64("%%%")
	assert.ErrorIs(t, err, ErrUnreadableImage)
}
