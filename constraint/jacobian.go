package constraint

import (
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// JacobianChannel returns the c×m Jacobian J for one spatial channel
// (0=x, 1=y, 2=z): row k is Rows[k].Coeffs scaled by that row's
// GradWeight component for this channel.
func (s *Set) JacobianChannel(channel int) *mat.Dense {
	c := len(s.Rows)
	if c == 0 {
		return mat.NewDense(0, 0, nil)
	}
	m := len(s.Rows[0].Coeffs)
	j := mat.NewDense(c, m, nil)
	for k, row := range s.Rows {
		w := component(row.GradWeight, channel)
		if w == 0 {
			continue
		}
		for i, coeff := range row.Coeffs {
			if coeff != 0 {
				j.Set(k, i, w*coeff)
			}
		}
	}
	return j
}

func component(v r3.Vec, channel int) float64 {
	switch channel {
	case 0:
		return v.X
	case 1:
		return v.Y
	default:
		return v.Z
	}
}
