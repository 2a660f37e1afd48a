package bbox

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
)

func TestValidateRejectsMalformedBoxes(t *testing.T) {
	cases := map[string]Normalized{
		"pixel coordinates": {10, 10, 40, 40},
		"negative min":      {-0.1, 0.1, 0.3, 0.3},
		"inverted y":        {0.5, 0.1, 0.4, 0.3},
		"inverted x":        {0.1, 0.5, 0.3, 0.4},
		"zero height":       {0.2, 0.1, 0.2, 0.3},
		"nan":               {math.NaN(), 0.1, 0.3, 0.3},
	}
	for name, box := range cases {
		if err := Validate(box); !errors.Is(err, ErrMalformed) {
			t.Fatalf("%s: expected ErrMalformed, got %v", name, err)
		}
	}
	if err := Validate(Normalized{0, 0, 1, 1}); err != nil {
		t.Fatalf("full-frame box should validate: %v", err)
	}
}

func TestParseJSONShapes(t *testing.T) {
	bad := []string{`[0.1,0.1,0.3]`, `[0.1,"a",0.3,0.4]`, `{"x":1}`, `"box"`, `[0.1,0.1,0.3,0.3,0.5]`}
	for _, raw := range bad {
		if _, err := ParseJSON(json.RawMessage(raw)); !errors.Is(err, ErrMalformed) {
			t.Fatalf("ParseJSON(%s) = %v, want ErrMalformed", raw, err)
		}
	}
	box, err := ParseJSON(json.RawMessage(`[0.1, 0.2, 0.3, 0.4]`))
	if err != nil {
		t.Fatalf("ParseJSON returned error: %v", err)
	}
	if box != (Normalized{0.1, 0.2, 0.3, 0.4}) {
		t.Fatalf("unexpected box %v", box)
	}
	keyed, err := ParseJSON(json.RawMessage(`{"xMin":0.2,"yMin":0.1,"xMax":0.4,"yMax":0.3}`))
	if err != nil || keyed != (Normalized{0.1, 0.2, 0.3, 0.4}) {
		t.Fatalf("keyed box = %v, %v", keyed, err)
	}
	if !IsAbsent(nil) || !IsAbsent(json.RawMessage(" null ")) || IsAbsent(json.RawMessage("[]")) {
		t.Fatal("IsAbsent misclassified input")
	}
}

func TestPixelRoundTripWithinOnePixel(t *testing.T) {
	dims := [][2]int{{1000, 1000}, {1024, 768}, {333, 517}}
	boxes := []Normalized{
		{0.1, 0.1, 0.3, 0.3},
		{0.123, 0.456, 0.789, 0.987},
		{0, 0, 1, 1},
		{0.5001, 0.2499, 0.5002, 0.7501},
	}
	for _, d := range dims {
		w, h := d[0], d[1]
		for _, box := range boxes {
			got := FromPixelBox(ToPixelBox(box, w, h), w, h)
			for i := range box {
				tol := 1.0 / float64(w)
				if i%2 == 0 {
					tol = 1.0 / float64(h)
				}
				if math.Abs(got[i]-box[i]) > tol {
					t.Fatalf("round trip %v at %dx%d gave %v (coord %d off by %v)", box, w, h, got, i, math.Abs(got[i]-box[i]))
				}
			}
		}
	}
}

func TestToPixelBox(t *testing.T) {
	got := ToPixelBox(Normalized{0.1, 0.2, 0.3, 0.5}, 1000, 500)
	want := PixelBox{X: 200, Y: 50, Width: 300, Height: 100}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestIoU(t *testing.T) {
	a := Normalized{0.1, 0.1, 0.3, 0.3}
	b := Normalized{0.12, 0.11, 0.31, 0.29}
	if iou := IoU(a, b); iou <= 0.5 || iou > 1 {
		t.Fatalf("expected overlapping boxes above 0.5, got %v", iou)
	}
	if iou := IoU(a, a); math.Abs(iou-1) > 1e-9 {
		t.Fatalf("identical boxes should have IoU 1, got %v", iou)
	}
	if iou := IoU(a, Normalized{0.5, 0.5, 0.9, 0.9}); iou != 0 {
		t.Fatalf("disjoint boxes should have IoU 0, got %v", iou)
	}
}

func TestIoUDegenerateBoxesAreZero(t *testing.T) {
	degenerate := []Normalized{
		{0.2, 0.2, 0.2, 0.4},
		{0.4, 0.4, 0.2, 0.2},
		{0, 0, 0, 0},
		{math.NaN(), 0, 1, 1},
	}
	ok := Normalized{0, 0, 1, 1}
	for _, d := range degenerate {
		for _, pair := range [][2]Normalized{{d, ok}, {ok, d}, {d, d}} {
			got := IoU(pair[0], pair[1])
			if got != 0 || math.IsNaN(got) {
				t.Fatalf("IoU(%v, %v) = %v, want 0", pair[0], pair[1], got)
			}
		}
	}
	if got := PixelIoU(PixelBox{Width: 0, Height: 10}, PixelBox{Width: 10, Height: 10}); got != 0 {
		t.Fatalf("PixelIoU with empty box = %v", got)
	}
}

func TestCoverage(t *testing.T) {
	face := Normalized{0.1, 0.4, 0.2, 0.5}
	body := Normalized{0.05, 0.3, 0.9, 0.6}
	if got := Coverage(face, body); math.Abs(got-1) > 1e-9 {
		t.Fatalf("face inside body should be fully covered, got %v", got)
	}
}

func TestMatchByIoUOneToOneBestFirst(t *testing.T) {
	type det struct {
		id  string
		box *Normalized
	}
	ptr := func(n Normalized) *Normalized { return &n }
	left := []det{
		{"a", ptr(Normalized{0.1, 0.1, 0.5, 0.3})},
		{"b", ptr(Normalized{0.1, 0.6, 0.5, 0.8})},
		{"c", nil},
	}
	right := []det{
		{"1", ptr(Normalized{0.1, 0.62, 0.52, 0.8})},
		{"2", ptr(Normalized{0.12, 0.1, 0.5, 0.31})},
		{"3", ptr(Normalized{0.7, 0.7, 0.9, 0.9})},
	}
	key := func(d det) (Normalized, bool) {
		if d.box == nil {
			return Normalized{}, false
		}
		return *d.box, true
	}
	matches := MatchByIoU(left, right, key, key, 0.3)
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %+v", matches)
	}
	if matches[0].Left != 0 || matches[0].Right != 1 {
		t.Fatalf("expected a to match 2, got %+v", matches[0])
	}
	if matches[1].Left != 1 || matches[1].Right != 0 {
		t.Fatalf("expected b to match 1, got %+v", matches[1])
	}
}

func TestMatchByIoUBelowThreshold(t *testing.T) {
	left := []Normalized{{0.1, 0.1, 0.5, 0.5}}
	right := []Normalized{{0.4, 0.4, 0.9, 0.9}}
	key := func(n Normalized) (Normalized, bool) { return n, true }
	if matches := MatchByIoU(left, right, key, key, 0.3); len(matches) != 0 {
		t.Fatalf("expected no matches, got %+v", matches)
	}
}
