package assign

import "gonum.org/v1/gonum/mat"

// Evaluate returns the total value of an assignment: the sum of the
// element-wise product of the assignment and value matrices.
func Evaluate(assignment, values mat.Matrix) float64 {
	var prod mat.Dense
	prod.MulElem(assignment, values)
	return mat.Sum(&prod)
}
