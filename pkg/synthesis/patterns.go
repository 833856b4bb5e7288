package synthesis

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"

	"brainsim/internal/logging"
	"brainsim/internal/models"
)

// Gaussian evaluates a trivariate normal density with mean mu and per-axis
// standard deviations sigma at every voxel, zeroes it outside the mask and
// rescales it so the in-mask values sum to total.
//
// The covariance is diagonal. If the density vanishes everywhere inside the
// mask the field cannot be rescaled and ErrDivisionByZero is returned.
func (s *Synthesizer) Gaussian(mu, sigma [3]float64, total float64) (*models.Array, error) {
	variances := make([]float64, 3)
	for i, sd := range sigma {
		if !(sd > 0) || math.IsInf(sd, 0) {
			return nil, fmt.Errorf("gaussian: %w: sigma[%d] = %g", ErrDistributionParameter, i, sd)
		}
		variances[i] = sd * sd
	}
	for i, m := range mu {
		if math.IsNaN(m) || math.IsInf(m, 0) {
			return nil, fmt.Errorf("gaussian: %w: mu[%d] = %g", ErrInvalidArgument, i, m)
		}
	}
	if math.IsNaN(total) || math.IsInf(total, 0) {
		return nil, fmt.Errorf("gaussian: %w: total intensity %g", ErrInvalidArgument, total)
	}

	normal, ok := distmv.NewNormal(mu[:], mat.NewDiagDense(3, variances), nil)
	if !ok {
		return nil, fmt.Errorf("gaussian: %w: covariance is not positive definite", ErrDistributionParameter)
	}

	// Only in-mask voxels are evaluated, the rest are zero after masking anyway.
	values := make([]float64, s.masker.Size())
	x := make([]float64, 3)
	for i, idx := range s.masker.Indices() {
		c := s.dims.Coord(idx)
		x[0], x[1], x[2] = float64(c[0]), float64(c[1]), float64(c[2])
		values[i] = normal.Prob(x)
	}

	sum := floats.Sum(values)
	if sum == 0 || math.IsNaN(sum) || math.IsInf(sum, 0) {
		return nil, fmt.Errorf("gaussian: %w: density sums to %g inside the mask", ErrDivisionByZero, sum)
	}
	floats.Scale(total/sum, values)

	return s.masker.InverseTransform(values)
}

// CenteredGaussian is Gaussian with the mean at the geometric center of the
// grid (each dimension halved, not truncated).
func (s *Synthesizer) CenteredGaussian(sigma [3]float64, total float64) (*models.Array, error) {
	mu := [3]float64{
		float64(s.dims[0]) / 2,
		float64(s.dims[1]) / 2,
		float64(s.dims[2]) / 2,
	}
	return s.Gaussian(mu, sigma, total)
}

// Sphere marks with 1 every in-mask voxel whose squared distance to center is
// at most radius². The center may lie outside the grid.
func (s *Synthesizer) Sphere(radius float64, center models.Coordinate) (*models.Array, error) {
	if !(radius >= 0) || math.IsInf(radius, 0) {
		return nil, fmt.Errorf("sphere: %w: radius %g", ErrDistributionParameter, radius)
	}
	if !s.dims.Contains(center) {
		logging.Debugf("Sphere center %v lies outside the %v grid\n", center, s.dims)
	}

	r2 := radius * radius
	arr := models.NewVolumeArray(s.dims)
	for _, idx := range s.masker.Indices() {
		c := s.dims.Coord(idx)
		dx := float64(c[0] - center[0])
		dy := float64(c[1] - center[1])
		dz := float64(c[2] - center[2])
		if dx*dx+dy*dy+dz*dz <= r2 {
			arr.Data[idx] = 1
		}
	}
	return arr, nil
}

// NSpheres sums Sphere(radius, c) over centers. Overlapping spheres add up,
// so voxels covered by k spheres hold k.
func (s *Synthesizer) NSpheres(radius float64, centers []models.Coordinate) (*models.Array, error) {
	sum := models.NewVolumeArray(s.dims)
	for i, c := range centers {
		sphere, err := s.Sphere(radius, c)
		if err != nil {
			return nil, fmt.Errorf("sphere %d: %w", i, err)
		}
		floats.Add(sum.Data, sphere.Data)
	}
	return sum, nil
}
