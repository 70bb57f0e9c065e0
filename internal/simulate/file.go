package simulate

import (
	"encoding/json"
	"fmt"
	"os"

	"grismfit/internal/beam"
)

// FileExposure pairs an exposure's pixel data with the disperser that
// renders models for it.
type FileExposure struct {
	Disperser *Disperser     `json:"disperser"`
	Exposure  *beam.Exposure `json:"exposure"`
}

// File is a saved observation group: disperser parameters paired with the
// rendered exposures, plus optional photometry. The projector interface is
// not serializable in general; saved groups always carry the synthetic
// instrument.
type File struct {
	Version    int              `json:"version"`
	Name       string           `json:"name,omitempty"`
	Exposures  []FileExposure   `json:"exposures"`
	Photometry *beam.Photometry `json:"photometry,omitempty"`
}

// NewFile pairs dispersers with their exposures for saving.
func NewFile(name string, dispersers []*Disperser, exposures []*beam.Exposure) (*File, error) {
	if len(dispersers) != len(exposures) {
		return nil, fmt.Errorf("group file: %d dispersers for %d exposures", len(dispersers), len(exposures))
	}
	f := &File{Version: 1, Name: name, Exposures: make([]FileExposure, len(exposures))}
	for i := range exposures {
		f.Exposures[i] = FileExposure{Disperser: dispersers[i], Exposure: exposures[i]}
	}
	return f, nil
}

// Load reads a saved observation group.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("unmarshal group file: %w", err)
	}
	return &f, nil
}

// Save writes the group file.
func (f *File) Save(path string) error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal group file: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// Group reattaches the dispersers as pixel modelers and builds the joint
// fitting group, with photometry appended when present.
func (f *File) Group() (*beam.Group, error) {
	if len(f.Exposures) == 0 {
		return nil, fmt.Errorf("group file: no exposures")
	}
	exposures := make([]*beam.Exposure, len(f.Exposures))
	for i, fe := range f.Exposures {
		if fe.Disperser == nil || fe.Exposure == nil {
			return nil, fmt.Errorf("group file: exposure %d incomplete", i)
		}
		if err := fe.Disperser.Validate(); err != nil {
			return nil, fmt.Errorf("group file: %w", err)
		}
		if fe.Disperser.ShapeY != fe.Exposure.ShapeY || fe.Disperser.ShapeX != fe.Exposure.ShapeX {
			return nil, fmt.Errorf("group file: exposure %d shape %dx%d does not match disperser %dx%d",
				i, fe.Exposure.ShapeY, fe.Exposure.ShapeX, fe.Disperser.ShapeY, fe.Disperser.ShapeX)
		}
		fe.Exposure.Modeler = fe.Disperser
		exposures[i] = fe.Exposure
	}

	g, err := beam.NewGroup(exposures)
	if err != nil {
		return nil, err
	}
	if f.Photometry != nil {
		return g.WithPhotometry(f.Photometry)
	}
	return g, nil
}
