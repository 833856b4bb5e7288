// Package masking maps between full 3D volumes and the vector of their
// in-mask voxels.
package masking

import (
	"fmt"

	"brainsim/internal/models"
)

// Masker holds the index map of a binary mask. It is built once and is
// read-only afterwards, so one Masker can be shared between goroutines.
type Masker struct {
	dims models.Dims

	// indices lists the flat offsets of in-mask voxels in ascending order
	indices []int

	// inMask[i] is true when flat offset i is inside the mask
	inMask []bool
}

// NewMasker builds a masker from a 3D array. Any nonzero voxel is in the mask.
func NewMasker(mask *models.Array) (*Masker, error) {
	dims, ok := mask.Dims()
	if !ok {
		return nil, fmt.Errorf("mask must be a 3D array, got rank %d", mask.Rank())
	}
	if len(mask.Data) != dims.Len() {
		return nil, fmt.Errorf("mask holds %d values, shape %v needs %d", len(mask.Data), dims, dims.Len())
	}

	m := &Masker{
		dims:   dims,
		inMask: make([]bool, dims.Len()),
	}
	for i, v := range mask.Data {
		if v != 0 {
			m.indices = append(m.indices, i)
			m.inMask[i] = true
		}
	}
	return m, nil
}

// Dims returns the grid dimensions shared by every volume the masker handles
func (m *Masker) Dims() models.Dims {
	return m.dims
}

// Size returns the number of in-mask voxels
func (m *Masker) Size() int {
	return len(m.indices)
}

// Indices returns the flat offsets of the in-mask voxels. Callers must not modify it.
func (m *Masker) Indices() []int {
	return m.indices
}

// Contains reports whether flat offset idx is inside the mask
func (m *Masker) Contains(idx int) bool {
	return idx >= 0 && idx < len(m.inMask) && m.inMask[idx]
}

// Transform extracts the in-mask values of a 3D array into a vector
func (m *Masker) Transform(arr *models.Array) ([]float64, error) {
	if err := m.check(arr); err != nil {
		return nil, err
	}
	out := make([]float64, len(m.indices))
	for i, idx := range m.indices {
		out[i] = arr.Data[idx]
	}
	return out, nil
}

// InverseTransform scatters a vector of in-mask values into a new 3D array.
// Voxels outside the mask are zero.
func (m *Masker) InverseTransform(values []float64) (*models.Array, error) {
	if len(values) != len(m.indices) {
		return nil, fmt.Errorf("expected %d in-mask values, got %d", len(m.indices), len(values))
	}
	arr := models.NewVolumeArray(m.dims)
	for i, idx := range m.indices {
		arr.Data[idx] = values[i]
	}
	return arr, nil
}

// Apply zeroes every voxel of arr outside the mask, in place
func (m *Masker) Apply(arr *models.Array) error {
	if err := m.check(arr); err != nil {
		return err
	}
	for i := range arr.Data {
		if !m.Contains(i) {
			arr.Data[i] = 0
		}
	}
	return nil
}

func (m *Masker) check(arr *models.Array) error {
	dims, ok := arr.Dims()
	if !ok {
		return fmt.Errorf("expected a 3D array, got rank %d", arr.Rank())
	}
	if dims != m.dims {
		return fmt.Errorf("array shape %v does not match mask shape %v", dims, m.dims)
	}
	if len(arr.Data) != dims.Len() {
		return fmt.Errorf("array holds %d values, shape %v needs %d", len(arr.Data), dims, dims.Len())
	}
	return nil
}
