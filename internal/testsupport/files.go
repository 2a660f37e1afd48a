package testsupport

import (
	"bytes"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
)

var pageFill = color.NRGBA{R: 200, G: 180, B: 150, A: 255}

// PageImage returns a flat PNG page of the requested size.
func PageImage(t testing.TB, width, height int) []byte {
	t.Helper()

	img := imaging.New(width, height, pageFill)
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode page image: %v", err)
	}
	return buf.Bytes()
}

// WritePageImage writes PageImage to path, creating parent directories.
func WritePageImage(t testing.TB, path string, width, height int) {
	t.Helper()
	WriteFile(t, path, PageImage(t, width, height))
}

// WriteFile writes data to path, creating parent directories.
func WriteFile(t testing.TB, path string, data []byte) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
