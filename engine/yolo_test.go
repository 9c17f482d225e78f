package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tensor lays out anchors as rows of (cx, cy, w, h, score per class) into the
// channel-major layout produced by the network.
func tensor(classes int, anchors [][]float32) []float32 {
	channels := 4 + classes
	data := make([]float32, channels*len(anchors))
	for i, a := range anchors {
		for c := 0; c < channels; c++ {
			data[c*len(anchors)+i] = a[c]
		}
	}
	return data
}

func TestDecodeYOLO(t *testing.T) {
	identity := frame{scaleX: 1, scaleY: 1, width: 640, height: 640}
	names := []string{"chair", "lamp"}

	t.Run("filters by confidence and sorts", func(t *testing.T) {
		data := tensor(2, [][]float32{
			{100, 100, 40, 40, 0.30, 0.10},
			{300, 300, 20, 20, 0.05, 0.90},
			{500, 500, 20, 20, 0.10, 0.14},
		})
		got := decodeYOLO(data, 6, 3, 0.15, 0.7, identity, names)
		require.Len(t, got, 2)

		assert.Equal(t, "lamp", got[0].Label)
		assert.InDelta(t, 0.90, got[0].Conf, 1e-6)
		assert.Equal(t, [4]int{290, 290, 310, 310}, got[0].Box.Corners())

		assert.Equal(t, "chair", got[1].Label)
		assert.Equal(t, [4]int{80, 80, 120, 120}, got[1].Box.Corners())
		assert.InDelta(t, 100, got[1].Center.X, 1e-4)
	})

	t.Run("suppresses overlapping boxes of one class", func(t *testing.T) {
		data := tensor(2, [][]float32{
			{100, 100, 40, 40, 0.80, 0},
			{102, 102, 40, 40, 0.60, 0},
			{102, 102, 40, 40, 0, 0.50},
		})
		got := decodeYOLO(data, 6, 3, 0.15, 0.7, identity, names)
		require.Len(t, got, 2)
		assert.Equal(t, "chair", got[0].Label)
		assert.InDelta(t, 0.80, got[0].Conf, 1e-6)
		assert.Equal(t, "lamp", got[1].Label)
	})

	t.Run("scales and clips to the source image", func(t *testing.T) {
		f := frame{scaleX: 0.5, scaleY: 0.25, width: 320, height: 160}
		data := tensor(1, [][]float32{{630, 10, 40, 40, 0.9}})
		got := decodeYOLO(data, 5, 1, 0.15, 0.7, f, nil)
		require.Len(t, got, 1)
		assert.Equal(t, [4]int{305, 0, 320, 7}, got[0].Box.Corners())
		assert.Equal(t, "0", got[0].Label)
	})

	t.Run("rejects malformed tensors", func(t *testing.T) {
		assert.Nil(t, decodeYOLO([]float32{1, 2, 3}, 4, 1, 0.1, 0.7, identity, nil))
		assert.Nil(t, decodeYOLO([]float32{1, 2, 3}, 6, 3, 0.1, 0.7, identity, nil))
	})
}
