package align

import (
	"fmt"
	"math"
)

// AngleStep returns the angular step for the rotation search:
// asin(1 / (oversampling * radius)), the rotation that moves a point on the
// bounding radius by one pixel. When oversampling*radius <= 1 the argument is
// clamped to 1, giving a quarter-turn step.
func AngleStep(oversampling, radius float64) (float64, error) {
	if math.IsNaN(oversampling) || math.IsInf(oversampling, 0) || oversampling < 1 {
		return 0, fmt.Errorf("%w: oversampling %g", ErrInvalidGrid, oversampling)
	}
	if math.IsNaN(radius) || radius < 0 {
		return 0, fmt.Errorf("%w: radius %g", ErrInvalidGrid, radius)
	}
	arg := 1 / (oversampling * radius)
	if arg > 1 || math.IsInf(arg, 0) {
		arg = 1
	}
	return math.Asin(arg), nil
}

// AngleGrid returns the candidate angles k*step for k = 0, 1, ... while the
// angle stays below 2π. The grid is strictly increasing and starts at 0.
func AngleGrid(oversampling, radius float64) ([]float64, error) {
	step, err := AngleStep(oversampling, radius)
	if err != nil {
		return nil, err
	}
	n := int(math.Ceil(2 * math.Pi / step))
	angles := make([]float64, 0, n)
	for k := 0; ; k++ {
		a := float64(k) * step
		if a >= 2*math.Pi {
			break
		}
		angles = append(angles, a)
	}
	return angles, nil
}
