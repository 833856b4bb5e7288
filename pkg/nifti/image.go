package nifti

import (
	"fmt"
	"math"

	"brainsim/internal/models"
)

// Image is a decoded NIfTI-1 volume held in memory
type Image struct {
	// Header is the on-disk header; Dim and Datatype describe Data as stored
	Header Header

	// Data holds the scaled voxel values in x-fastest order
	Data []float64
}

// NewImage builds a float32 NIfTI-1 image from a 3D array and affine transform.
func NewImage(arr *models.Array, affine models.Affine) (*Image, error) {
	dims, ok := arr.Dims()
	if !ok {
		return nil, fmt.Errorf("need a 3D array to build a nifti image, got rank %d", arr.Rank())
	}
	if len(arr.Data) != dims.Len() {
		return nil, fmt.Errorf("array holds %d values, shape %v needs %d", len(arr.Data), dims, dims.Len())
	}
	for i, d := range dims {
		if d > math.MaxInt16 {
			return nil, fmt.Errorf("%w: axis %d has %d voxels, nifti-1 allows at most %d", ErrBadHeader, i, d, math.MaxInt16)
		}
	}

	h := Header{
		SizeofHdr: headerSize,
		Datatype:  DatatypeFloat32,
		Bitpix:    32,
		VoxOffset: minVoxOffset,
		SclSlope:  1,
		SformCode: XformAligned,
		Magic:     singleFileMagic,
	}
	h.Dim[0] = 3
	for i := 0; i < 3; i++ {
		h.Dim[i+1] = int16(dims[i])
	}
	for i := 4; i < 8; i++ {
		h.Dim[i] = 1
	}
	h.Pixdim[0] = 1
	for i := 0; i < 3; i++ {
		h.Pixdim[i+1] = float32(affine[i][i])
		if h.Pixdim[i+1] == 0 {
			h.Pixdim[i+1] = 1
		}
	}
	for j := 0; j < 4; j++ {
		h.SrowX[j] = float32(affine[0][j])
		h.SrowY[j] = float32(affine[1][j])
		h.SrowZ[j] = float32(affine[2][j])
	}

	return &Image{
		Header: h,
		Data:   append([]float64(nil), arr.Data...),
	}, nil
}

// Dims returns the spatial dimensions of a 3D image. A 4D image with a single
// time point is accepted as 3D.
func (img *Image) Dims() (models.Dims, error) {
	shape := img.Header.Shape()
	for len(shape) > 3 && shape[len(shape)-1] == 1 {
		shape = shape[:len(shape)-1]
	}
	if len(shape) != 3 {
		return models.Dims{}, fmt.Errorf("expected a 3D volume, got shape %v", img.Header.Shape())
	}
	return models.Dims{shape[0], shape[1], shape[2]}, nil
}

// Array returns the voxel data as a 3D array. The data slice is shared.
func (img *Image) Array() (*models.Array, error) {
	dims, err := img.Dims()
	if err != nil {
		return nil, err
	}
	return &models.Array{Shape: []int{dims[0], dims[1], dims[2]}, Data: img.Data}, nil
}

// Affine returns the sform rows when an sform is set, and the identity otherwise.
func (img *Image) Affine() models.Affine {
	if img.Header.SformCode <= 0 {
		return models.IdentityAffine()
	}
	a := models.IdentityAffine()
	for j := 0; j < 4; j++ {
		a[0][j] = float64(img.Header.SrowX[j])
		a[1][j] = float64(img.Header.SrowY[j])
		a[2][j] = float64(img.Header.SrowZ[j])
	}
	return a
}
