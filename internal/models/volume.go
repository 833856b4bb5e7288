package models

import (
	"fmt"
)

// Dims holds the voxel dimensions (X, Y, Z) of a volume
type Dims [3]int

// Len returns the total number of voxels in the grid
func (d Dims) Len() int {
	return d[0] * d[1] * d[2]
}

// Index converts a voxel coordinate to its offset in a flat array.
// Voxels are stored x-fastest, which is the on-disk NIfTI order.
func (d Dims) Index(x, y, z int) int {
	return x + d[0]*(y+d[1]*z)
}

// Coord converts a flat offset back into a voxel coordinate
func (d Dims) Coord(idx int) Coordinate {
	x := idx % d[0]
	y := (idx / d[0]) % d[1]
	z := idx / (d[0] * d[1])
	return Coordinate{x, y, z}
}

// Center returns the integer center of the bounding grid (each axis integer-divided by 2)
func (d Dims) Center() Coordinate {
	return Coordinate{d[0] / 2, d[1] / 2, d[2] / 2}
}

// Contains reports whether c lies inside the grid
func (d Dims) Contains(c Coordinate) bool {
	for i := 0; i < 3; i++ {
		if c[i] < 0 || c[i] >= d[i] {
			return false
		}
	}
	return true
}

func (d Dims) String() string {
	return fmt.Sprintf("%dx%dx%d", d[0], d[1], d[2])
}

// Coordinate is a voxel index triple (x, y, z)
type Coordinate [3]int

// Array is an N-dimensional real-valued array stored flat in x-fastest order.
// Signal patterns and noise fields are 3D arrays sharing the mask's Dims.
type Array struct {
	// Shape is the extent along each axis
	Shape []int

	// Data holds the voxel values, len(Data) == product of Shape
	Data []float64
}

// NewArray allocates a zero-filled array with the given shape
func NewArray(shape ...int) *Array {
	n := 1
	for _, s := range shape {
		n *= s
	}
	if len(shape) == 0 {
		n = 0
	}
	return &Array{
		Shape: append([]int(nil), shape...),
		Data:  make([]float64, n),
	}
}

// NewVolumeArray allocates a zero-filled 3D array with dims d
func NewVolumeArray(d Dims) *Array {
	return NewArray(d[0], d[1], d[2])
}

// Rank returns the number of axes
func (a *Array) Rank() int {
	if a == nil {
		return 0
	}
	return len(a.Shape)
}

// Dims returns the 3D dimensions and true if the array is 3D
func (a *Array) Dims() (Dims, bool) {
	if a == nil || len(a.Shape) != 3 {
		return Dims{}, false
	}
	return Dims{a.Shape[0], a.Shape[1], a.Shape[2]}, true
}

// At returns the value at voxel (x, y, z). The array must be 3D.
func (a *Array) At(x, y, z int) float64 {
	return a.Data[Dims{a.Shape[0], a.Shape[1], a.Shape[2]}.Index(x, y, z)]
}

// Set stores v at voxel (x, y, z). The array must be 3D.
func (a *Array) Set(x, y, z int, v float64) {
	a.Data[Dims{a.Shape[0], a.Shape[1], a.Shape[2]}.Index(x, y, z)] = v
}

// Clone returns a deep copy of the array
func (a *Array) Clone() *Array {
	return &Array{
		Shape: append([]int(nil), a.Shape...),
		Data:  append([]float64(nil), a.Data...),
	}
}

// Affine is a 4x4 matrix mapping voxel indices to physical space
type Affine [4][4]float64

// IdentityAffine returns the 4x4 identity transform
func IdentityAffine() Affine {
	return Affine{
		{1, 0, 0, 0},
		{0, 1, 0, 0},
		{0, 0, 1, 0},
		{0, 0, 0, 1},
	}
}

// LabeledVolume pairs a 3D array of signal+noise with its affine transform
type LabeledVolume struct {
	// Data is the 3D voxel array
	Data *Array

	// Affine maps voxel indices to physical space (identity by convention)
	Affine Affine

	// Path is where the volume was persisted, empty if it was not saved
	Path string
}

// Collection is an ordered batch of generated volumes. Intensities[i] is the
// signal intensity used to produce Volumes[i].
type Collection struct {
	Volumes     []*LabeledVolume
	Intensities []float64
}

// Len returns the number of volumes in the collection
func (c *Collection) Len() int {
	return len(c.Volumes)
}
