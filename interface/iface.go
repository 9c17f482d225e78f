package iface

import (
	"context"
	"time"

	"gocv.io/x/gocv"
)

type Position struct {
	X, Y float32
}

// Box is an axis-aligned detection rectangle in source image pixels.
type Box struct {
	LT Position
	RB Position
}

func NewBox(x1, y1, x2, y2 float32) Box {
	return Box{LT: Position{X: x1, Y: y1}, RB: Position{X: x2, Y: y2}}
}

func (b Box) Center() Position {
	return Position{X: (b.LT.X + b.RB.X) / 2, Y: (b.LT.Y + b.RB.Y) / 2}
}

// Corners truncates the box to integer pixel coordinates (x1, y1, x2, y2).
func (b Box) Corners() [4]int {
	return [4]int{int(b.LT.X), int(b.LT.Y), int(b.RB.X), int(b.RB.Y)}
}

type Result struct {
	Conf   float32
	Label  string
	Box    Box
	Center Position
}

// Backend is an object detector. Detect returns boxes whose confidence is at
// least conf, in the order the model ranks them.
type Backend interface {
	Detect(ctx context.Context, img gocv.Mat, conf float32) ([]Result, error)
	Close() error
}

type EngineConfig struct {
	Backend      string
	ModelPath    string
	InferenceURL string
	Names        []string
	Iou          float32
	InputSize    int
	Workers      int
	Timeout      time.Duration
}
