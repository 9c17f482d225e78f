package detect

import "image"

// Box is (x1, y1, x2, y2) in source image pixels.
type Box [4]int

func (b Box) Rect() image.Rectangle {
	return image.Rect(b[0], b[1], b[2], b[3])
}

// PadBox grows b by pad pixels on every side and clamps it to a
// width x height image, keeping x1 <= x2 and y1 <= y2.
func PadBox(b Box, pad, width, height int) Box {
	x1 := clamp(b[0]-pad, 0, width)
	y1 := clamp(b[1]-pad, 0, height)
	x2 := clamp(b[2]+pad, x1, width)
	y2 := clamp(b[3]+pad, y1, height)
	return Box{x1, y1, x2, y2}
}

func clamp(v, lo, hi int) int {
	return min(max(v, lo), hi)
}
