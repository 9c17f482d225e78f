package detect

import "testing"

func TestPadBox(t *testing.T) {
	tests := []struct {
		name     string
		box      Box
		pad      int
		w, h     int
		expected Box
	}{
		{"interior box", Box{40, 40, 60, 60}, 10, 100, 100, Box{30, 30, 70, 70}},
		{"near top-left corner", Box{2, 2, 20, 20}, 10, 100, 100, Box{0, 0, 30, 30}},
		{"near bottom-right corner", Box{85, 90, 99, 98}, 10, 100, 100, Box{75, 80, 100, 100}},
		{"full image", Box{0, 0, 100, 50}, 10, 100, 50, Box{0, 0, 100, 50}},
		{"no padding", Box{5, 6, 7, 8}, 0, 100, 100, Box{5, 6, 7, 8}},
		{"outside to the right", Box{150, 10, 180, 20}, 10, 100, 100, Box{100, 0, 100, 30}},
		{"negative coordinates", Box{-40, -40, -20, -20}, 10, 100, 100, Box{0, 0, 0, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PadBox(tt.box, tt.pad, tt.w, tt.h)
			if got != tt.expected {
				t.Errorf("PadBox(%v, %d, %d, %d) = %v, expected %v", tt.box, tt.pad, tt.w, tt.h, got, tt.expected)
			}
			if got[0] < 0 || got[0] > got[2] || got[2] > tt.w || got[1] < 0 || got[1] > got[3] || got[3] > tt.h {
				t.Errorf("PadBox(%v) = %v escapes the %dx%d image", tt.box, got, tt.w, tt.h)
			}
		})
	}
}

func TestPadBox_AlwaysInsideImage(t *testing.T) {
	for x1 := -30; x1 <= 130; x1 += 7 {
		for x2 := x1; x2 <= 140; x2 += 11 {
			got := PadBox(Box{x1, x1 / 2, x2, x2 / 2}, 10, 100, 60)
			if got[0] < 0 || got[0] > got[2] || got[2] > 100 || got[1] < 0 || got[1] > got[3] || got[3] > 60 {
				t.Fatalf("PadBox(%d..%d) = %v escapes the image", x1, x2, got)
			}
		}
	}
}
