package optim

import "math"

// Scheduler advances the learning rate. The trainer calls Step on the
// evaluation cadence, not on every batch.
type Scheduler interface {
	// Step advances the schedule by one tick.
	Step()

	// Ticks returns how many times Step has been called.
	Ticks() int
}

// ============================================================================
// Step decay
// ============================================================================

// StepDecay multiplies the learning rate by gamma on every tick.
type StepDecay struct {
	opt   Optimizer
	gamma float64
	ticks int
}

// NewStepDecay creates a step-decay schedule.
func NewStepDecay(opt Optimizer, gamma float64) *StepDecay {
	return &StepDecay{opt: opt, gamma: gamma}
}

// Step decays the learning rate once.
func (s *StepDecay) Step() {
	s.ticks++
	s.opt.SetLR(s.opt.LR() * s.gamma)
}

// Ticks returns the number of decays applied.
func (s *StepDecay) Ticks() int { return s.ticks }

// ============================================================================
// Cosine annealing
// ============================================================================

// CosineAnnealing anneals the learning rate from its initial value down to
// minLR over horizon ticks, then holds minLR.
type CosineAnnealing struct {
	opt     Optimizer
	baseLR  float64
	minLR   float64
	horizon int
	ticks   int
}

// NewCosineAnnealing creates a cosine annealing schedule over horizon ticks.
func NewCosineAnnealing(opt Optimizer, minLR float64, horizon int) *CosineAnnealing {
	if horizon < 1 {
		horizon = 1
	}
	return &CosineAnnealing{
		opt:     opt,
		baseLR:  opt.LR(),
		minLR:   minLR,
		horizon: horizon,
	}
}

// Step advances the annealing curve by one tick.
func (s *CosineAnnealing) Step() {
	s.ticks++
	t := s.ticks
	if t > s.horizon {
		t = s.horizon
	}
	frac := float64(t) / float64(s.horizon)
	lr := s.minLR + 0.5*(s.baseLR-s.minLR)*(1+math.Cos(math.Pi*frac))
	s.opt.SetLR(lr)
}

// Ticks returns the number of ticks applied.
func (s *CosineAnnealing) Ticks() int { return s.ticks }
