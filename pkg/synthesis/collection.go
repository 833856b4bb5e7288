package synthesis

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"golang.org/x/exp/rand"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"

	"brainsim/internal/logging"
	"brainsim/internal/models"
	"brainsim/pkg/nifti"
)

// CollectionOptions controls how a collection is generated and stored
type CollectionOptions struct {
	// Intensities scale the pattern, one volume per entry, in order.
	// Nil means a single intensity of sigma/10.
	Intensities []float64

	// OutputDir persists every volume in this directory when set
	OutputDir string

	// Save persists to the synthesizer's output directory when OutputDir is empty
	Save bool

	// Seed derives the independent noise source of every volume. The same
	// seed always yields the same noise, so calls that leave it at zero share
	// their noise fields. Set Source to get fresh noise on every call.
	Seed uint64

	// Source, when set, supplies the seed instead of Seed and is advanced by
	// one draw per call. It must not be shared between concurrent calls.
	Source rand.Source
}

// ToVolume wraps a 3D array matching the mask dimensions into a labeled volume
// with an identity affine. The array is copied.
func (s *Synthesizer) ToVolume(arr *models.Array) (*models.LabeledVolume, error) {
	if arr == nil {
		return nil, fmt.Errorf("%w: need a 3D array to create a volume, got nil", ErrInvalidArgument)
	}
	dims, ok := arr.Dims()
	if !ok {
		return nil, fmt.Errorf("%w: need a 3D array to create a volume, got rank %d", ErrInvalidArgument, arr.Rank())
	}
	if dims != s.dims {
		return nil, fmt.Errorf("%w: array shape %v does not match mask shape %v", ErrInvalidArgument, dims, s.dims)
	}
	if len(arr.Data) != dims.Len() {
		return nil, fmt.Errorf("%w: array holds %d values, shape %v needs %d", ErrInvalidArgument, len(arr.Data), dims, dims.Len())
	}

	return &models.LabeledVolume{
		Data:   arr.Clone(),
		Affine: models.IdentityAffine(),
	}, nil
}

// CollectionFromPattern builds one volume per intensity i as pattern*i plus a
// fresh Normal(0, sigma) noise field. Noise is never shared between volumes.
// Pattern voxels outside the mask are ignored. Volumes are generated
// concurrently, but Volumes[k] always corresponds to Intensities[k] and the
// output only depends on the seed.
//
// When an output directory is set each volume is written as
// centered_sphere_<index>_<intensity>.nii.gz. If any volume fails, the files
// already written by the call are removed.
func (s *Synthesizer) CollectionFromPattern(pattern *models.Array, sigma float64, opts *CollectionOptions) (*models.Collection, error) {
	o := CollectionOptions{}
	if opts != nil {
		o = *opts
	}

	if pattern == nil {
		return nil, fmt.Errorf("collection: %w: pattern is nil", ErrInvalidArgument)
	}
	if dims, ok := pattern.Dims(); !ok || dims != s.dims || len(pattern.Data) != s.dims.Len() {
		return nil, fmt.Errorf("collection: %w: pattern must be a 3D array of shape %v", ErrInvalidArgument, s.dims)
	}
	if !(sigma >= 0) || math.IsInf(sigma, 0) {
		return nil, fmt.Errorf("collection: %w: sigma %g", ErrDistributionParameter, sigma)
	}

	intensities := o.Intensities
	if intensities == nil {
		intensities = []float64{sigma / 10}
	}
	intensities = append([]float64{}, intensities...)

	masked := pattern.Clone()
	if err := s.masker.Apply(masked); err != nil {
		return nil, fmt.Errorf("collection: %w: %v", ErrInvalidArgument, err)
	}

	outputDir := o.OutputDir
	if outputDir == "" && o.Save {
		outputDir = s.params.OutputDir
	}
	if outputDir != "" {
		if err := prepareOutputDir(outputDir); err != nil {
			return nil, fmt.Errorf("collection: %w", err)
		}
	}

	seed := o.Seed
	if o.Source != nil {
		seed = o.Source.Uint64()
	}

	// Seeds are drawn up front so each volume's noise is independent of
	// the order the workers run in.
	master := rand.New(rand.NewSource(seed))
	seeds := make([]uint64, len(intensities))
	for i := range seeds {
		seeds[i] = master.Uint64()
	}

	volumes := make([]*models.LabeledVolume, len(intensities))
	written := make([]string, len(intensities))
	var g errgroup.Group
	g.SetLimit(s.params.NumCores)
	for i, intensity := range intensities {
		g.Go(func() error {
			noise, err := s.NormalNoise(0, sigma, rand.NewSource(seeds[i]))
			if err != nil {
				return err
			}
			floats.AddScaled(noise.Data, intensity, masked.Data)

			vol := &models.LabeledVolume{
				Data:   noise,
				Affine: models.IdentityAffine(),
			}
			if outputDir != "" {
				path := filepath.Join(outputDir, s.volumeFileName(i, intensity))
				descrip := fmt.Sprintf("brainsim intensity=%s sigma=%s", formatIntensity(intensity), formatIntensity(sigma))
				if err := saveVolume(vol, path, descrip); err != nil {
					return fmt.Errorf("volume %d: %w", i, err)
				}
				written[i] = path
			}
			volumes[i] = vol
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		removeWritten(written)
		return nil, fmt.Errorf("collection: %w", err)
	}

	c := &models.Collection{Volumes: volumes, Intensities: intensities}
	logging.Debugf("Generated %d volumes with sigma %g\n", c.Len(), sigma)

	if outputDir != "" && s.params.Manifest {
		if err := s.writeManifest(outputDir, c, sigma, seed); err != nil {
			removeWritten(written)
			return nil, fmt.Errorf("collection: %w", err)
		}
	}
	return c, nil
}

// removeWritten deletes the volume files of a failed collection
func removeWritten(paths []string) {
	for _, path := range paths {
		if path == "" {
			continue
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			logging.Warningf("Failed to remove %s: %v\n", path, err)
		}
	}
}

// CollectionOfCenteredSpheres builds a sphere of the given radius at the grid
// center (each dimension integer-divided by 2) and passes it to
// CollectionFromPattern.
func (s *Synthesizer) CollectionOfCenteredSpheres(radius, sigma float64, opts *CollectionOptions) (*models.Collection, error) {
	sphere, err := s.Sphere(radius, s.dims.Center())
	if err != nil {
		return nil, err
	}
	return s.CollectionFromPattern(sphere, sigma, opts)
}

// SaveVolume writes vol to path as NIfTI-1 and records the path on vol
func SaveVolume(vol *models.LabeledVolume, path string) error {
	return saveVolume(vol, path, "brainsim")
}

func saveVolume(vol *models.LabeledVolume, path, descrip string) error {
	img, err := nifti.NewImage(vol.Data, vol.Affine)
	if err != nil {
		return err
	}
	img.Header.SetDescription(descrip)
	if err := nifti.Save(path, img); err != nil {
		return err
	}
	vol.Path = path

	if info, err := os.Stat(path); err == nil {
		logging.Debugf("Wrote %s (%s)\n", path, humanize.Bytes(uint64(info.Size())))
	}
	return nil
}

// volumeFileName returns centered_sphere_<index>_<intensity>.<ext>
func (s *Synthesizer) volumeFileName(index int, intensity float64) string {
	return fmt.Sprintf("centered_sphere_%d_%s%s", index, formatIntensity(intensity), s.extension())
}

func (s *Synthesizer) extension() string {
	if s.params.Uncompressed {
		return ".nii"
	}
	return ".nii.gz"
}

// formatIntensity renders the shortest decimal that round-trips, e.g. 0.1 or 2
func formatIntensity(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// prepareOutputDir creates dir if needed and rejects paths that are not directories
func prepareOutputDir(dir string) error {
	if strings.ContainsRune(dir, 0) {
		return fmt.Errorf("%w: output dir %q is not a valid path", ErrInvalidArgument, dir)
	}
	info, err := os.Stat(dir)
	switch {
	case os.IsNotExist(err):
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	case err != nil:
		return fmt.Errorf("%w: output dir %s: %v", ErrInvalidArgument, dir, err)
	case !info.IsDir():
		return fmt.Errorf("%w: output dir %s is not a directory", ErrInvalidArgument, dir)
	}
	return nil
}
