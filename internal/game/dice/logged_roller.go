package dice

import "go.uber.org/zap"

// Roller wraps a Source and logger to provide logged d20 rolls.
type Roller struct {
	src    Source
	logger *zap.Logger
}

// NewLoggedRoller creates a Roller that rolls with src and logs each roll to logger.
//
// Precondition: src and logger must be non-nil.
func NewLoggedRoller(src Source, logger *zap.Logger) *Roller {
	return &Roller{src: src, logger: logger}
}

// D20 rolls one twenty-sided die and logs the face at debug level.
//
// Postcondition: 1 <= result <= 20.
func (r *Roller) D20() int {
	v := Roll(r.src, D20)
	r.logger.Debug("dice roll", zap.Int("sides", D20), zap.Int("roll", v))
	return v
}
