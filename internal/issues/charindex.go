package issues

import (
	"encoding/json"
	"log/slog"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"storyqa/internal/bbox"
	"storyqa/internal/logging"
)

// minFaceCoverage is how much of a face box a body box must cover to be
// joined when the identification pass supplied no figure box.
const minFaceCoverage = 0.5

// FaceIdentity is one named figure from the face-identification pass.
type FaceIdentity struct {
	Name      string          `json:"name"`
	FaceBox   json.RawMessage `json:"faceBbox,omitempty"`
	FigureBox json.RawMessage `json:"figureBbox,omitempty"`
}

// BodyDetection is one figure from the body-detection pass, numbered
// independently of the face pass.
type BodyDetection struct {
	FigureID string          `json:"figureId"`
	Box      json.RawMessage `json:"bbox"`
}

// PageDetections bundles both detector outputs for a page.
type PageDetections struct {
	PageNumber int             `json:"pageNumber"`
	Faces      []FaceIdentity  `json:"faces"`
	Bodies     []BodyDetection `json:"bodies"`
}

// CharacterBoxes are the boxes known for one named character on a page.
type CharacterBoxes struct {
	FaceBox  *bbox.Normalized `json:"faceBbox,omitempty"`
	BodyBox  *bbox.Normalized `json:"bodyBbox,omitempty"`
	FigureID string           `json:"figureId,omitempty"`
}

// CharacterIndex maps lower-cased character names to their boxes on one page.
type CharacterIndex struct {
	entries map[string]CharacterBoxes
}

var nameFolder = cases.Lower(language.Und)

func characterKey(name string) string {
	return nameFolder.String(strings.Join(strings.Fields(name), " "))
}

// Lookup finds a character case-insensitively.
func (c *CharacterIndex) Lookup(name string) (CharacterBoxes, bool) {
	if c == nil {
		return CharacterBoxes{}, false
	}
	entry, ok := c.entries[characterKey(name)]
	return entry, ok
}

// Len reports how many characters are indexed.
func (c *CharacterIndex) Len() int {
	if c == nil {
		return 0
	}
	return len(c.entries)
}

type parsedFace struct {
	name   string
	face   *bbox.Normalized
	figure *bbox.Normalized
}

type parsedBody struct {
	id  string
	box bbox.Normalized
}

// BuildCharacterIndex joins face identities to body detections. Faces that
// carry a figure box are matched by IoU (at least threshold); the rest fall
// back to the unmatched body box covering most of the face. Malformed boxes
// are logged and dropped.
func BuildCharacterIndex(det PageDetections, threshold float64, logger *slog.Logger) *CharacterIndex {
	logger = logging.NewComponentLogger(logger, "character-index")
	faces := make([]parsedFace, 0, len(det.Faces))
	for _, f := range det.Faces {
		if strings.TrimSpace(f.Name) == "" {
			continue
		}
		pf := parsedFace{name: f.Name}
		pf.face = optionalBox(logger, det.PageNumber, "faceBbox", f.FaceBox)
		pf.figure = optionalBox(logger, det.PageNumber, "figureBbox", f.FigureBox)
		faces = append(faces, pf)
	}
	bodies := make([]parsedBody, 0, len(det.Bodies))
	for _, b := range det.Bodies {
		if box := optionalBox(logger, det.PageNumber, "bodyBbox", b.Box); box != nil {
			bodies = append(bodies, parsedBody{id: b.FigureID, box: *box})
		}
	}

	bodyFor := make(map[int]int, len(faces))
	usedBody := make(map[int]bool, len(bodies))
	matches := bbox.MatchByIoU(faces, bodies,
		func(f parsedFace) (bbox.Normalized, bool) {
			if f.figure == nil {
				return bbox.Normalized{}, false
			}
			return *f.figure, true
		},
		func(b parsedBody) (bbox.Normalized, bool) { return b.box, true },
		threshold,
	)
	for _, m := range matches {
		bodyFor[m.Left] = m.Right
		usedBody[m.Right] = true
	}
	for i, f := range faces {
		if _, ok := bodyFor[i]; ok || f.face == nil {
			continue
		}
		best, bestCoverage := -1, 0.0
		for j, b := range bodies {
			if usedBody[j] {
				continue
			}
			if cov := bbox.Coverage(*f.face, b.box); cov >= minFaceCoverage && cov > bestCoverage {
				best, bestCoverage = j, cov
			}
		}
		if best >= 0 {
			bodyFor[i] = best
			usedBody[best] = true
		}
	}

	index := &CharacterIndex{entries: make(map[string]CharacterBoxes, len(faces))}
	for i, f := range faces {
		key := characterKey(f.name)
		if _, exists := index.entries[key]; exists {
			logger.Debug("duplicate character identity ignored",
				logging.Page(det.PageNumber),
				logging.String("character", f.name),
			)
			continue
		}
		entry := CharacterBoxes{FaceBox: f.face}
		if j, ok := bodyFor[i]; ok {
			body := bodies[j].box
			entry.BodyBox = &body
			entry.FigureID = bodies[j].id
		} else if f.figure != nil {
			entry.BodyBox = f.figure
		}
		if entry.FaceBox == nil && entry.BodyBox == nil {
			continue
		}
		index.entries[key] = entry
	}
	return index
}

func optionalBox(logger *slog.Logger, page int, field string, raw json.RawMessage) *bbox.Normalized {
	if bbox.IsAbsent(raw) {
		return nil
	}
	box, err := bbox.ParseJSON(raw)
	if err != nil {
		logging.WarnWithContext(logger, "detection box discarded", "malformed_bbox",
			logging.Page(page),
			logging.String("field", field),
			logging.Error(err),
			logging.String(logging.FieldImpact, "character box unavailable for backfill"),
			logging.String(logging.FieldErrorHint, "check the detector output for pixel coordinates or inverted boxes"),
		)
		return nil
	}
	return &box
}
