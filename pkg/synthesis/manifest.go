package synthesis

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/stat"
	"gopkg.in/yaml.v3"

	"brainsim/internal/models"
)

// ManifestFile is written next to a persisted collection
const ManifestFile = "manifest.yaml"

// VolumeStats summarizes the in-mask voxels of a volume
type VolumeStats struct {
	Mean   float64 `yaml:"mean"`
	StdDev float64 `yaml:"stdDev"`
	Min    float64 `yaml:"min"`
	Max    float64 `yaml:"max"`
}

// Manifest records how a collection was generated
type Manifest struct {
	RunID   string          `yaml:"runId"`
	Created time.Time       `yaml:"created"`
	Dims    [3]int          `yaml:"dims"`
	Voxels  int             `yaml:"inMaskVoxels"`
	Sigma   float64         `yaml:"sigma"`
	Seed    uint64          `yaml:"seed"`
	Volumes []ManifestEntry `yaml:"volumes"`
}

// ManifestEntry describes one volume of a collection
type ManifestEntry struct {
	Index     int         `yaml:"index"`
	Intensity float64     `yaml:"intensity"`
	File      string      `yaml:"file"`
	Stats     VolumeStats `yaml:"stats"`
}

// Stats computes the mean, standard deviation and range of the in-mask voxels
func (s *Synthesizer) Stats(arr *models.Array) (VolumeStats, error) {
	values, err := s.masker.Transform(arr)
	if err != nil {
		return VolumeStats{}, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	if len(values) == 0 {
		return VolumeStats{}, nil
	}

	var st VolumeStats
	st.Mean, st.StdDev = stat.MeanStdDev(values, nil)
	st.Min, st.Max = values[0], values[0]
	for _, v := range values[1:] {
		if v < st.Min {
			st.Min = v
		}
		if v > st.Max {
			st.Max = v
		}
	}
	return st, nil
}

// NewManifest describes a generated collection
func (s *Synthesizer) NewManifest(c *models.Collection, sigma float64, seed uint64) (*Manifest, error) {
	m := &Manifest{
		RunID:   uuid.New().String(),
		Created: time.Now().UTC(),
		Dims:    s.dims,
		Voxels:  s.masker.Size(),
		Sigma:   sigma,
		Seed:    seed,
	}
	for i, vol := range c.Volumes {
		st, err := s.Stats(vol.Data)
		if err != nil {
			return nil, fmt.Errorf("volume %d: %w", i, err)
		}
		m.Volumes = append(m.Volumes, ManifestEntry{
			Index:     i,
			Intensity: c.Intensities[i],
			File:      filepath.Base(vol.Path),
			Stats:     st,
		})
	}
	return m, nil
}

// LoadManifest reads a manifest written alongside a collection
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading manifest: %w", err)
	}
	m := &Manifest{}
	if err := yaml.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("error parsing manifest: %w", err)
	}
	return m, nil
}

func (s *Synthesizer) writeManifest(dir string, c *models.Collection, sigma float64, seed uint64) error {
	m, err := s.NewManifest(c, sigma, seed)
	if err != nil {
		return err
	}
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("error marshaling manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ManifestFile), data, 0644); err != nil {
		return fmt.Errorf("error writing manifest: %w", err)
	}
	return nil
}
