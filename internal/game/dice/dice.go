// Package dice provides the randomness abstraction behind turn resolution.
package dice

// D20 is the number of faces on the die rolled for every action.
const D20 = 20

// Source is the randomness provider for dice rolls.
//
// Implementations MUST be safe for concurrent use.
type Source interface {
	// Intn returns a non-negative random int in [0, n).
	//
	// Precondition: n > 0.
	Intn(n int) int
}

// Roll returns one face of a die with the given number of sides.
//
// Precondition: sides > 0; src must be non-nil.
// Postcondition: 1 <= result <= sides.
func Roll(src Source, sides int) int {
	return src.Intn(sides) + 1
}
