package extract

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"math"
	"strings"

	"github.com/disintegration/imaging"

	"storyqa/internal/bbox"
	"storyqa/internal/issues"
)

// ErrNoPixelBox is returned when an issue has no pixel region to crop.
var ErrNoPixelBox = errors.New("issue has no pixel box")

const (
	defaultThumbnailSize    = 256
	defaultMinWidthFraction = 0.10
	defaultJPEGQuality      = 90
	defaultPadding          = 0.30
)

// Options tune the crop geometry. Zero values take the built-in defaults.
type Options struct {
	ThumbnailSize    int
	MinWidthFraction float64
	JPEGQuality      int
	DefaultPadding   float64
	// Padding maps lower-case issue types to a fraction of the box's own size
	// added on each side.
	Padding map[string]float64
}

// Result is one extracted thumbnail.
type Result struct {
	Thumbnail []byte
	PaddedBox bbox.PixelBox
}

// Extractor crops padded issue regions out of page images.
type Extractor struct {
	opts Options
}

// New returns an extractor with defaults applied to unset options.
func New(opts Options) *Extractor {
	if opts.ThumbnailSize <= 0 {
		opts.ThumbnailSize = defaultThumbnailSize
	}
	if opts.MinWidthFraction <= 0 {
		opts.MinWidthFraction = defaultMinWidthFraction
	}
	if opts.JPEGQuality <= 0 || opts.JPEGQuality > 100 {
		opts.JPEGQuality = defaultJPEGQuality
	}
	if opts.DefaultPadding <= 0 {
		opts.DefaultPadding = defaultPadding
	}
	padding := make(map[string]float64, len(opts.Padding))
	for key, value := range opts.Padding {
		padding[strings.ToLower(strings.TrimSpace(key))] = value
	}
	opts.Padding = padding
	return &Extractor{opts: opts}
}

// PaddingFor returns the padding fraction applied to an issue type.
func (e *Extractor) PaddingFor(issueType issues.Type) float64 {
	if value, ok := e.opts.Padding[string(issueType)]; ok {
		return value
	}
	return e.opts.DefaultPadding
}

// PaddedBox computes the crop for box on an image of the given size. The box
// is padded by type, grown around its centroid to the context floor when
// still too small, then moved inside the image. It is clamped only where it
// exceeds the image itself.
func (e *Extractor) PaddedBox(box bbox.PixelBox, issueType issues.Type, imageWidth, imageHeight int) bbox.PixelBox {
	pad := e.PaddingFor(issueType)
	padX := int(math.Round(float64(box.Width) * pad))
	padY := int(math.Round(float64(box.Height) * pad))
	x, width := box.X-padX, box.Width+2*padX
	y, height := box.Y-padY, box.Height+2*padY

	floor := e.contextFloor(imageWidth)
	cx, cy := box.Center()
	if width < floor {
		width = floor
		x = int(math.Round(cx - float64(floor)/2))
	}
	if height < floor {
		height = floor
		y = int(math.Round(cy - float64(floor)/2))
	}

	x, width = fitAxis(x, width, imageWidth)
	y, height = fitAxis(y, height, imageHeight)
	return bbox.PixelBox{X: x, Y: y, Width: width, Height: height}
}

func (e *Extractor) contextFloor(imageWidth int) int {
	floor := e.opts.ThumbnailSize
	if relative := int(math.Round(float64(imageWidth) * e.opts.MinWidthFraction)); relative > floor {
		floor = relative
	}
	return floor
}

func fitAxis(start, length, limit int) (int, int) {
	if length >= limit {
		return 0, limit
	}
	if start < 0 {
		return 0, length
	}
	if start+length > limit {
		return limit - length, length
	}
	return start, length
}

// Extract decodes a page image and crops the issue's region.
func (e *Extractor) Extract(data []byte, issue issues.UnifiedIssue) (Result, error) {
	if issue.Region.PixelBox == nil {
		return Result{}, fmt.Errorf("extract %s: %w", issue.ID, ErrNoPixelBox)
	}
	img, err := Decode(data)
	if err != nil {
		return Result{}, err
	}
	return e.ExtractImage(img, issue)
}

// ExtractImage crops and thumbnails the issue's region from a decoded image.
func (e *Extractor) ExtractImage(img image.Image, issue issues.UnifiedIssue) (Result, error) {
	if issue.Region.PixelBox == nil {
		return Result{}, fmt.Errorf("extract %s: %w", issue.ID, ErrNoPixelBox)
	}
	bounds := img.Bounds()
	padded := e.PaddedBox(*issue.Region.PixelBox, issue.Type, bounds.Dx(), bounds.Dy())
	if padded.Width <= 0 || padded.Height <= 0 {
		return Result{}, fmt.Errorf("extract %s: empty crop %+v", issue.ID, padded)
	}
	rect := image.Rect(padded.X, padded.Y, padded.X+padded.Width, padded.Y+padded.Height).Add(bounds.Min)
	cropped := imaging.Crop(img, rect)
	thumb := imaging.Fill(cropped, e.opts.ThumbnailSize, e.opts.ThumbnailSize, imaging.Center, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.JPEG, imaging.JPEGQuality(e.opts.JPEGQuality)); err != nil {
		return Result{}, fmt.Errorf("encode thumbnail %s: %w", issue.ID, err)
	}
	return Result{Thumbnail: buf.Bytes(), PaddedBox: padded}, nil
}

// Decode reads a JPEG, PNG, or GIF page image.
func Decode(data []byte) (image.Image, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode page image: %w", err)
	}
	return img, nil
}

// EncodeJPEG re-encodes a page image for storage next to its thumbnails.
func (e *Extractor) EncodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(e.opts.JPEGQuality)); err != nil {
		return nil, fmt.Errorf("encode page image: %w", err)
	}
	return buf.Bytes(), nil
}
