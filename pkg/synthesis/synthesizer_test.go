package synthesis

import (
	"bytes"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"brainsim/internal/models"
	"brainsim/pkg/nifti"
)

func allVoxels(x, y, z int) bool { return true }

// maskImage builds an in-memory mask volume from a predicate
func maskImage(t *testing.T, dims models.Dims, inMask func(x, y, z int) bool) *nifti.Image {
	t.Helper()
	arr := models.NewVolumeArray(dims)
	for z := 0; z < dims[2]; z++ {
		for y := 0; y < dims[1]; y++ {
			for x := 0; x < dims[0]; x++ {
				if inMask(x, y, z) {
					arr.Set(x, y, z, 1)
				}
			}
		}
	}
	img, err := nifti.NewImage(arr, models.IdentityAffine())
	require.NoError(t, err)
	return img
}

// newTestSynthesizer returns a synthesizer over an in-memory mask writing to a temp dir
func newTestSynthesizer(t *testing.T, dims models.Dims, inMask func(x, y, z int) bool, params *Params) *Synthesizer {
	t.Helper()
	p := Params{}
	if params != nil {
		p = *params
	}
	p.Mask = MaskImage{Image: maskImage(t, dims, inMask)}
	if p.OutputDir == "" {
		p.OutputDir = t.TempDir()
	}
	if p.ResourceDir == "" {
		p.ResourceDir = t.TempDir()
	}
	s, err := NewSynthesizer(&p)
	require.NoError(t, err)
	return s
}

func TestNewSynthesizerMaskSources(t *testing.T) {
	dims := models.Dims{4, 5, 6}
	half := func(x, y, z int) bool { return x < 2 }

	t.Run("in-memory image", func(t *testing.T) {
		s := newTestSynthesizer(t, dims, half, nil)
		assert.Equal(t, dims, s.Dims())
		assert.Equal(t, 2*5*6, s.Masker().Size())
	})

	t.Run("path", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "mask.nii.gz")
		require.NoError(t, nifti.Save(path, maskImage(t, dims, half)))

		s, err := NewSynthesizer(&Params{Mask: MaskPath(path), OutputDir: t.TempDir()})
		require.NoError(t, err)
		assert.Equal(t, dims, s.Dims())
		assert.Equal(t, 2*5*6, s.Masker().Size())
	})

	t.Run("default resource", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, nifti.Save(filepath.Join(dir, DefaultMaskFile), maskImage(t, dims, allVoxels)))

		s, err := NewSynthesizer(&Params{ResourceDir: dir, OutputDir: t.TempDir()})
		require.NoError(t, err)
		assert.Equal(t, dims.Len(), s.Masker().Size())

		s, err = NewSynthesizer(&Params{Mask: DefaultMask{}, ResourceDir: dir, OutputDir: t.TempDir()})
		require.NoError(t, err)
		assert.Equal(t, dims.Len(), s.Masker().Size())
	})

	t.Run("missing default resource", func(t *testing.T) {
		_, err := NewSynthesizer(&Params{ResourceDir: t.TempDir()})
		require.Error(t, err)
		assert.True(t, errors.Is(err, os.ErrNotExist))
	})

	t.Run("missing path", func(t *testing.T) {
		_, err := NewSynthesizer(&Params{Mask: MaskPath(filepath.Join(t.TempDir(), "nope.nii"))})
		require.Error(t, err)
		assert.True(t, errors.Is(err, os.ErrNotExist))
	})

	t.Run("corrupt header", func(t *testing.T) {
		h := nifti.Header{
			SizeofHdr: 348,
			Dim:       [8]int16{7, 32767, 32767, 32767, 32767, 32767, 32767, 32767},
			Datatype:  nifti.DatatypeFloat32,
			Bitpix:    32,
			VoxOffset: 352,
			Magic:     [4]uint8{'n', '+', '1', 0},
		}
		var buf bytes.Buffer
		require.NoError(t, binary.Write(&buf, binary.LittleEndian, &h))
		buf.Write(make([]byte, 4))
		path := filepath.Join(t.TempDir(), "corrupt.nii")
		require.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))

		_, err := NewSynthesizer(&Params{Mask: MaskPath(path)})
		assert.ErrorIs(t, err, nifti.ErrBadHeader)
	})

	t.Run("nil image", func(t *testing.T) {
		_, err := NewSynthesizer(&Params{Mask: MaskImage{}})
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})

	t.Run("2D image", func(t *testing.T) {
		img := maskImage(t, dims, allVoxels)
		img.Header.Dim[0] = 2
		img.Header.Dim[3] = 1
		img.Data = img.Data[:dims[0]*dims[1]]
		_, err := NewSynthesizer(&Params{Mask: MaskImage{Image: img}})
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})
}

func TestNewSynthesizerDefaults(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)

	s, err := NewSynthesizer(&Params{Mask: MaskImage{Image: maskImage(t, models.Dims{2, 2, 2}, allVoxels)}})
	require.NoError(t, err)
	assert.Equal(t, wd, s.OutputDir())
	assert.Greater(t, s.params.NumCores, 0)
	assert.Equal(t, filepath.Join(wd, "resources"), s.params.ResourceDir)
}
