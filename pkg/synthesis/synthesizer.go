// Package synthesis generates artificial brain-imaging volumes with a known
// signal location and strength.
//
// A Synthesizer is bound to a binary mask. Signal patterns (gaussian blobs,
// spheres, sums of spheres) and noise fields are 3D arrays of the mask's
// dimensions that are zero outside the mask. Collections combine one pattern
// at several intensities with independent noise draws, optionally persisting
// each volume as NIfTI-1.
package synthesis

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"brainsim/internal/logging"
	"brainsim/internal/models"
	"brainsim/pkg/masking"
	"brainsim/pkg/nifti"
)

// DefaultMaskFile is the bundled 2mm dilated MNI152 brain mask, looked up in
// Params.ResourceDir when no mask is given.
const DefaultMaskFile = "MNI152_T1_2mm_brain_mask_dil.nii.gz"

// MaskSource selects where the mask comes from: MaskPath, MaskImage or DefaultMask.
type MaskSource interface {
	maskSource()
}

// MaskPath loads the mask from a NIfTI file
type MaskPath string

// MaskImage uses an already loaded volume as the mask
type MaskImage struct {
	Image *nifti.Image
}

// DefaultMask loads DefaultMaskFile from the resource directory
type DefaultMask struct{}

func (MaskPath) maskSource()    {}
func (MaskImage) maskSource()   {}
func (DefaultMask) maskSource() {}

// Params holds the synthesizer configuration
type Params struct {
	// Mask selects the mask volume; nil means DefaultMask
	Mask MaskSource

	// ResourceDir holds DefaultMaskFile. Empty means <cwd>/resources.
	ResourceDir string

	// OutputDir is where collections are saved when CollectionOptions.Save
	// is set. Empty means the working directory.
	OutputDir string

	// NumCores bounds how many collection volumes are generated at once.
	// Zero means runtime.NumCPU().
	NumCores int

	// Uncompressed writes .nii files instead of .nii.gz
	Uncompressed bool

	// Manifest writes manifest.yaml next to each persisted collection
	Manifest bool
}

// Synthesizer generates signal patterns, noise and volume collections over a
// fixed mask. It holds no mutable state after construction, so its methods may
// be called from several goroutines.
type Synthesizer struct {
	params Params

	// masker maps between full volumes and in-mask vectors
	masker *masking.Masker

	dims models.Dims
}

// NewSynthesizer loads the mask selected by params and builds its masking
// transform. A nil params uses the default mask and the working directory.
func NewSynthesizer(params *Params) (*Synthesizer, error) {
	p := Params{}
	if params != nil {
		p = *params
	}

	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}
	if p.ResourceDir == "" {
		p.ResourceDir = filepath.Join(wd, "resources")
	}
	if p.OutputDir == "" {
		p.OutputDir = wd
	}
	if p.NumCores <= 0 {
		p.NumCores = runtime.NumCPU()
	}

	mask, err := loadMask(p.Mask, p.ResourceDir)
	if err != nil {
		return nil, err
	}

	arr, err := mask.Array()
	if err != nil {
		return nil, fmt.Errorf("%w: mask: %v", ErrInvalidArgument, err)
	}
	masker, err := masking.NewMasker(arr)
	if err != nil {
		return nil, fmt.Errorf("%w: mask: %v", ErrInvalidArgument, err)
	}

	logging.Infof("Loaded mask %v with %d in-mask voxels\n", masker.Dims(), masker.Size())
	if d := mask.Header.Description(); d != "" {
		logging.Debugf("Mask description: %s\n", d)
	}
	if a := mask.Affine(); a != models.IdentityAffine() {
		logging.Debugf("Mask affine %v is not carried over, volumes use the identity transform\n", a)
	}

	return &Synthesizer{
		params: p,
		masker: masker,
		dims:   masker.Dims(),
	}, nil
}

// loadMask resolves a mask source to a volume
func loadMask(src MaskSource, resourceDir string) (*nifti.Image, error) {
	switch m := src.(type) {
	case nil, DefaultMask:
		path := filepath.Join(resourceDir, DefaultMaskFile)
		img, err := nifti.Load(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load default mask: %w", err)
		}
		return img, nil
	case MaskPath:
		img, err := nifti.Load(string(m))
		if err != nil {
			return nil, fmt.Errorf("failed to load mask: %w", err)
		}
		return img, nil
	case MaskImage:
		if m.Image == nil {
			return nil, fmt.Errorf("%w: mask image is nil", ErrInvalidArgument)
		}
		return m.Image, nil
	default:
		return nil, fmt.Errorf("%w: mask is not a path or a nifti image, got %T", ErrInvalidArgument, src)
	}
}

// Dims returns the grid dimensions shared by every generated volume
func (s *Synthesizer) Dims() models.Dims {
	return s.dims
}

// Masker returns the masking transform bound to the mask
func (s *Synthesizer) Masker() *masking.Masker {
	return s.masker
}

// OutputDir returns the directory collections are saved to by default
func (s *Synthesizer) OutputDir() string {
	return s.params.OutputDir
}
