// Package color is the numeric core of the colour pipeline: 3x3 matrix
// algebra, gamut conversion matrices, PQ and sRGB transfer functions, lookup
// table generation, and the byte layouts the kernel expects for colour
// property blobs.
//
// Everything here is a pure function of its inputs except Tables, which
// caches generated lookup tables.
package color

import (
	"errors"
	"math"
)

// Vec3 is a column vector.
type Vec3 [3]float64

// Mat3 is a row-major 3x3 matrix.
type Mat3 [3][3]float64

// Identity is the 3x3 identity matrix.
var Identity = Mat3{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}

// errSingular is returned when inverting a matrix with a zero determinant.
var errSingular = errors.New("color: matrix is singular and cannot be inverted")

// Diag returns the diagonal matrix with v on its diagonal.
func Diag(v Vec3) Mat3 {
	return Mat3{{v[0], 0, 0}, {0, v[1], 0}, {0, 0, v[2]}}
}

// Mul returns m·n.
func (m Mat3) Mul(n Mat3) Mat3 {
	var r Mat3
	for i := range 3 {
		for j := range 3 {
			r[i][j] = m[i][0]*n[0][j] + m[i][1]*n[1][j] + m[i][2]*n[2][j]
		}
	}
	return r
}

// MulVec returns m·v.
func (m Mat3) MulVec(v Vec3) Vec3 {
	return Vec3{
		m[0][0]*v[0] + m[0][1]*v[1] + m[0][2]*v[2],
		m[1][0]*v[0] + m[1][1]*v[1] + m[1][2]*v[2],
		m[2][0]*v[0] + m[2][1]*v[1] + m[2][2]*v[2],
	}
}

// Det returns the determinant of m.
func (m Mat3) Det() float64 {
	return m[0][0]*(m[1][1]*m[2][2]-m[1][2]*m[2][1]) -
		m[0][1]*(m[1][0]*m[2][2]-m[1][2]*m[2][0]) +
		m[0][2]*(m[1][0]*m[2][1]-m[1][1]*m[2][0])
}

// Inverse returns the inverse of m using the adjugate.
func (m Mat3) Inverse() (Mat3, error) {
	det := m.Det()
	if math.Abs(det) < 1e-12 {
		return Mat3{}, errSingular
	}
	inv := 1 / det
	return Mat3{
		{
			(m[1][1]*m[2][2] - m[1][2]*m[2][1]) * inv,
			(m[0][2]*m[2][1] - m[0][1]*m[2][2]) * inv,
			(m[0][1]*m[1][2] - m[0][2]*m[1][1]) * inv,
		},
		{
			(m[1][2]*m[2][0] - m[1][0]*m[2][2]) * inv,
			(m[0][0]*m[2][2] - m[0][2]*m[2][0]) * inv,
			(m[0][2]*m[1][0] - m[0][0]*m[1][2]) * inv,
		},
		{
			(m[1][0]*m[2][1] - m[1][1]*m[2][0]) * inv,
			(m[0][1]*m[2][0] - m[0][0]*m[2][1]) * inv,
			(m[0][0]*m[1][1] - m[0][1]*m[1][0]) * inv,
		},
	}, nil
}

// ApproxEqual reports whether every element of m and n differs by at most
// eps.
func (m Mat3) ApproxEqual(n Mat3, eps float64) bool {
	for i := range 3 {
		for j := range 3 {
			if math.Abs(m[i][j]-n[i][j]) > eps {
				return false
			}
		}
	}
	return true
}
