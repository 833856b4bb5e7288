package synthesis

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"

	"brainsim/internal/models"
)

// NormalNoise draws one independent Normal(mu, sigma) sample per in-mask
// voxel from src. Voxels outside the mask are zero. The same source state
// always yields the same field, and sigma == 0 yields mu at every in-mask voxel.
func (s *Synthesizer) NormalNoise(mu, sigma float64, src rand.Source) (*models.Array, error) {
	if !(sigma >= 0) || math.IsInf(sigma, 0) {
		return nil, fmt.Errorf("normal noise: %w: sigma %g", ErrDistributionParameter, sigma)
	}
	if math.IsNaN(mu) || math.IsInf(mu, 0) {
		return nil, fmt.Errorf("normal noise: %w: mu %g", ErrInvalidArgument, mu)
	}
	if src == nil {
		return nil, fmt.Errorf("normal noise: %w: nil random source", ErrInvalidArgument)
	}

	dist := distuv.Normal{Mu: mu, Sigma: sigma, Src: src}
	values := make([]float64, s.masker.Size())
	for i := range values {
		values[i] = dist.Rand()
	}
	return s.masker.InverseTransform(values)
}
