package engine

import (
	"sort"
	"strconv"

	iface "IntakeDetServer/interface"
)

// frame describes how network coordinates map back onto the source image.
type frame struct {
	scaleX, scaleY float32
	width, height  float32
}

// decodeYOLO turns a YOLOv8 output tensor laid out as [4+classes][anchors]
// (cx, cy, w, h rows followed by one score row per class) into detections
// with confidence >= conf, suppressed per class at iou and sorted by
// descending confidence.
func decodeYOLO(data []float32, channels, anchors int, conf, iou float32, f frame, names []string) []iface.Result {
	classes := channels - 4
	if classes <= 0 || anchors <= 0 || len(data) < channels*anchors {
		return nil
	}

	candidates := make([]iface.Result, 0, 64)
	classOf := make([]int, 0, 64)
	for i := 0; i < anchors; i++ {
		best, score := -1, float32(0)
		for c := 0; c < classes; c++ {
			if s := data[(4+c)*anchors+i]; best < 0 || s > score {
				best, score = c, s
			}
		}
		if score < conf {
			continue
		}
		cx, cy := data[i], data[anchors+i]
		w, h := data[2*anchors+i], data[3*anchors+i]
		box := iface.NewBox(
			clip((cx-w/2)*f.scaleX, f.width),
			clip((cy-h/2)*f.scaleY, f.height),
			clip((cx+w/2)*f.scaleX, f.width),
			clip((cy+h/2)*f.scaleY, f.height),
		)
		candidates = append(candidates, iface.Result{
			Conf:   score,
			Label:  label(names, best),
			Box:    box,
			Center: box.Center(),
		})
		classOf = append(classOf, best)
	}

	order := make([]int, len(candidates))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return candidates[order[a]].Conf > candidates[order[b]].Conf
	})

	kept := make([]int, 0, len(order))
	for _, i := range order {
		suppressed := false
		for _, k := range kept {
			if classOf[k] == classOf[i] && overlap(candidates[k].Box, candidates[i].Box) > iou {
				suppressed = true
				break
			}
		}
		if !suppressed {
			kept = append(kept, i)
			if len(kept) == maxDetections {
				break
			}
		}
	}

	results := make([]iface.Result, len(kept))
	for n, i := range kept {
		results[n] = candidates[i]
	}
	return results
}

// overlap is the intersection over union of two boxes.
func overlap(a, b iface.Box) float32 {
	ix := min(a.RB.X, b.RB.X) - max(a.LT.X, b.LT.X)
	iy := min(a.RB.Y, b.RB.Y) - max(a.LT.Y, b.LT.Y)
	if ix <= 0 || iy <= 0 {
		return 0
	}
	inter := ix * iy
	union := area(a) + area(b) - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

func area(b iface.Box) float32 {
	return (b.RB.X - b.LT.X) * (b.RB.Y - b.LT.Y)
}

func clip(v, limit float32) float32 {
	return min(max(v, 0), limit)
}

func label(names []string, class int) string {
	if class >= 0 && class < len(names) {
		return names[class]
	}
	return strconv.Itoa(class)
}
