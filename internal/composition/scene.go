package composition

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Scene is the structured description a page illustration must depict.
type Scene struct {
	Description      string           `json:"description,omitempty" yaml:"description,omitempty"`
	Location         string           `json:"location" yaml:"location"`
	PreviousLocation string           `json:"previousLocation,omitempty" yaml:"previous_location,omitempty"`
	Lighting         string           `json:"lighting,omitempty" yaml:"lighting,omitempty"`
	Weather          string           `json:"weather,omitempty" yaml:"weather,omitempty"`
	CameraAngle      string           `json:"cameraAngle,omitempty" yaml:"camera_angle,omitempty"`
	DetailLevel      string           `json:"detailLevel,omitempty" yaml:"detail_level,omitempty"`
	Text             string           `json:"text,omitempty" yaml:"text,omitempty"`
	Characters       []SceneCharacter `json:"characters" yaml:"characters"`
	Objects          []SceneObject    `json:"objects,omitempty" yaml:"objects,omitempty"`
}

// SceneCharacter places one named character in the scene.
type SceneCharacter struct {
	Name       string   `json:"name" yaml:"name"`
	Position   string   `json:"position,omitempty" yaml:"position,omitempty"`
	Pose       string   `json:"pose,omitempty" yaml:"pose,omitempty"`
	Action     string   `json:"action,omitempty" yaml:"action,omitempty"`
	Facing     string   `json:"facing,omitempty" yaml:"facing,omitempty"`
	Expression string   `json:"expression,omitempty" yaml:"expression,omitempty"`
	PointingAt string   `json:"pointingAt,omitempty" yaml:"pointing_at,omitempty"`
	Holding    []string `json:"holding,omitempty" yaml:"holding,omitempty"`
}

// SceneObject places one prop or landmark.
type SceneObject struct {
	Name     string `json:"name" yaml:"name"`
	Position string `json:"position,omitempty" yaml:"position,omitempty"`
	Size     string `json:"size,omitempty" yaml:"size,omitempty"`
}

// Clone returns a deep copy.
func (s Scene) Clone() Scene {
	out := s
	if s.Characters != nil {
		out.Characters = make([]SceneCharacter, len(s.Characters))
		for i, c := range s.Characters {
			if c.Holding != nil {
				c.Holding = append([]string(nil), c.Holding...)
			}
			out.Characters[i] = c
		}
	}
	if s.Objects != nil {
		out.Objects = append([]SceneObject(nil), s.Objects...)
	}
	return out
}

// Character finds a character by case-insensitive name.
func (s Scene) Character(name string) (SceneCharacter, bool) {
	for _, c := range s.Characters {
		if strings.EqualFold(strings.TrimSpace(c.Name), strings.TrimSpace(name)) {
			return c, true
		}
	}
	return SceneCharacter{}, false
}

// Empty reports whether the scene carries nothing to validate.
func (s Scene) Empty() bool {
	return strings.TrimSpace(s.Location) == "" && strings.TrimSpace(s.Description) == "" &&
		len(s.Characters) == 0 && len(s.Objects) == 0
}

// LoadScene reads a scene from a .json, .yaml, or .yml file.
func LoadScene(path string) (Scene, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Scene{}, fmt.Errorf("read scene: %w", err)
	}
	var scene Scene
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &scene)
	default:
		err = json.Unmarshal(data, &scene)
	}
	if err != nil {
		return Scene{}, fmt.Errorf("parse scene %s: %w", path, err)
	}
	return scene, nil
}
