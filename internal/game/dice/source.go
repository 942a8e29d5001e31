package dice

import (
	"crypto/rand"
	"math/big"
	"sync"
)

// cryptoSource implements Source using crypto/rand.
//
// Invariant: All values produced are uniformly distributed in [0, n) for any n > 0.
type cryptoSource struct{}

// NewCryptoSource returns a Source backed by crypto/rand.
//
// Postcondition: Every value returned by Intn is in [0, n).
func NewCryptoSource() Source {
	return &cryptoSource{}
}

// Intn returns a cryptographically secure random int in [0, n).
//
// Precondition: n > 0. Panics with "dice: Intn called with n <= 0" if n <= 0.
// Panics with "dice: crypto/rand failure: <err>" if crypto/rand fails.
func (c *cryptoSource) Intn(n int) int {
	if n <= 0 {
		panic("dice: Intn called with n <= 0")
	}
	val, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		panic("dice: crypto/rand failure: " + err.Error())
	}
	return int(val.Int64())
}

// Sequence is a Source that replays fixed die faces in order, cycling when
// exhausted. It lets tests inject exact rolls.
type Sequence struct {
	mu    sync.Mutex
	faces []int
	next  int
}

// NewSequence returns a Source yielding faces, each in [1, sides], in order.
//
// Precondition: len(faces) > 0.
func NewSequence(faces ...int) *Sequence {
	if len(faces) == 0 {
		panic("dice: NewSequence requires at least one face")
	}
	return &Sequence{faces: faces}
}

// Intn returns the next face minus one, clamped to [0, n).
func (s *Sequence) Intn(n int) int {
	if n <= 0 {
		panic("dice: Intn called with n <= 0")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.faces[s.next%len(s.faces)] - 1
	s.next++
	switch {
	case v < 0:
		return 0
	case v >= n:
		return n - 1
	}
	return v
}
