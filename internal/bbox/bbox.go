package bbox

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// ErrMalformed marks a box that failed validation. Malformed boxes are
// discarded by callers, never repaired.
var ErrMalformed = errors.New("malformed bounding box")

// Normalized is a box in (yMin, xMin, yMax, xMax) order with every coordinate
// in [0,1].
type Normalized [4]float64

func (n Normalized) YMin() float64 { return n[0] }
func (n Normalized) XMin() float64 { return n[1] }
func (n Normalized) YMax() float64 { return n[2] }
func (n Normalized) XMax() float64 { return n[3] }

// Area is width times height, or zero when either side is not positive.
func (n Normalized) Area() float64 {
	w, h := n.XMax()-n.XMin(), n.YMax()-n.YMin()
	if !(w > 0) || !(h > 0) {
		return 0
	}
	return w * h
}

// PixelBox is a box in image pixels.
type PixelBox struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Area is width times height; zero for empty boxes.
func (p PixelBox) Area() int {
	if p.Width <= 0 || p.Height <= 0 {
		return 0
	}
	return p.Width * p.Height
}

// Center returns the box centroid in pixels.
func (p PixelBox) Center() (float64, float64) {
	return float64(p.X) + float64(p.Width)/2, float64(p.Y) + float64(p.Height)/2
}

// Validate rejects boxes with values outside [0,1], non-finite values, or
// inverted min/max pairs. Values above 1 usually mean pixel coordinates were
// passed by mistake.
func Validate(n Normalized) error {
	for i, v := range n {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: coordinate %d is not finite", ErrMalformed, i)
		}
		if v > 1 {
			return fmt.Errorf("%w: coordinate %d is %v (>1, pixel coordinates?)", ErrMalformed, i, v)
		}
		if v < 0 {
			return fmt.Errorf("%w: coordinate %d is negative (%v)", ErrMalformed, i, v)
		}
	}
	if n.YMax() <= n.YMin() {
		return fmt.Errorf("%w: yMax %v <= yMin %v", ErrMalformed, n.YMax(), n.YMin())
	}
	if n.XMax() <= n.XMin() {
		return fmt.Errorf("%w: xMax %v <= xMin %v", ErrMalformed, n.XMax(), n.XMin())
	}
	return nil
}

// Parse accepts an untyped value (as decoded from JSON) and returns a
// validated box. Four numbers in (yMin, xMin, yMax, xMax) order or an object
// with those keys are accepted; anything else is rejected.
func Parse(raw any) (Normalized, error) {
	var out Normalized
	switch v := raw.(type) {
	case Normalized:
		out = v
	case []float64:
		if len(v) != 4 {
			return Normalized{}, fmt.Errorf("%w: expected 4 values, got %d", ErrMalformed, len(v))
		}
		copy(out[:], v)
	case []any:
		if len(v) != 4 {
			return Normalized{}, fmt.Errorf("%w: expected 4 values, got %d", ErrMalformed, len(v))
		}
		for i, item := range v {
			f, ok := toFloat(item)
			if !ok {
				return Normalized{}, fmt.Errorf("%w: coordinate %d is %T, not a number", ErrMalformed, i, item)
			}
			out[i] = f
		}
	case map[string]any:
		for i, key := range [4]string{"yMin", "xMin", "yMax", "xMax"} {
			item, ok := v[key]
			if !ok {
				return Normalized{}, fmt.Errorf("%w: missing key %q", ErrMalformed, key)
			}
			f, ok := toFloat(item)
			if !ok {
				return Normalized{}, fmt.Errorf("%w: %s is %T, not a number", ErrMalformed, key, item)
			}
			out[i] = f
		}
	case nil:
		return Normalized{}, fmt.Errorf("%w: missing", ErrMalformed)
	default:
		return Normalized{}, fmt.Errorf("%w: unsupported shape %T", ErrMalformed, raw)
	}
	if err := Validate(out); err != nil {
		return Normalized{}, err
	}
	return out, nil
}

// ParseJSON decodes and validates a raw JSON box. Empty input and JSON null
// report ErrMalformed as well; callers that treat absence as normal should
// check IsAbsent first.
func ParseJSON(raw json.RawMessage) (Normalized, error) {
	if IsAbsent(raw) {
		return Normalized{}, fmt.Errorf("%w: missing", ErrMalformed)
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return Normalized{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return Parse(decoded)
}

// IsAbsent reports whether a raw JSON box was omitted or null.
func IsAbsent(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// ToPixelBox converts a normalized box to pixels for an image of the given size.
func ToPixelBox(n Normalized, width, height int) PixelBox {
	x := int(math.Round(n.XMin() * float64(width)))
	y := int(math.Round(n.YMin() * float64(height)))
	return PixelBox{
		X:      x,
		Y:      y,
		Width:  int(math.Round(n.XMax()*float64(width))) - x,
		Height: int(math.Round(n.YMax()*float64(height))) - y,
	}
}

// FromPixelBox converts a pixel box back to normalized coordinates.
func FromPixelBox(p PixelBox, width, height int) Normalized {
	if width <= 0 || height <= 0 {
		return Normalized{}
	}
	w, h := float64(width), float64(height)
	return Normalized{
		float64(p.Y) / h,
		float64(p.X) / w,
		float64(p.Y+p.Height) / h,
		float64(p.X+p.Width) / w,
	}
}

// IoU returns intersection-over-union in [0,1]. Boxes with non-positive area
// never overlap anything.
func IoU(a, b Normalized) float64 {
	areaA, areaB := a.Area(), b.Area()
	if !(areaA > 0) || !(areaB > 0) {
		return 0
	}
	ix := math.Min(a.XMax(), b.XMax()) - math.Max(a.XMin(), b.XMin())
	iy := math.Min(a.YMax(), b.YMax()) - math.Max(a.YMin(), b.YMin())
	if ix <= 0 || iy <= 0 {
		return 0
	}
	inter := ix * iy
	union := areaA + areaB - inter
	if !(union > 0) {
		return 0
	}
	return clamp01(inter / union)
}

// PixelIoU is IoU for pixel boxes.
func PixelIoU(a, b PixelBox) float64 {
	if a.Area() == 0 || b.Area() == 0 {
		return 0
	}
	ix := min(a.X+a.Width, b.X+b.Width) - max(a.X, b.X)
	iy := min(a.Y+a.Height, b.Y+b.Height) - max(a.Y, b.Y)
	if ix <= 0 || iy <= 0 {
		return 0
	}
	inter := float64(ix * iy)
	return clamp01(inter / (float64(a.Area()+b.Area()) - inter))
}

// Coverage is the fraction of inner covered by outer.
func Coverage(inner, outer Normalized) float64 {
	area := inner.Area()
	if !(area > 0) || !(outer.Area() > 0) {
		return 0
	}
	ix := math.Min(inner.XMax(), outer.XMax()) - math.Max(inner.XMin(), outer.XMin())
	iy := math.Min(inner.YMax(), outer.YMax()) - math.Max(inner.YMin(), outer.YMin())
	if ix <= 0 || iy <= 0 {
		return 0
	}
	return clamp01(ix * iy / area)
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
