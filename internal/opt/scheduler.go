package opt

// Scheduler adjusts an optimizer's learning rate over training.
type Scheduler interface {
	// Step advances the schedule by one epoch.
	Step()

	// LR returns the current learning rate.
	LR() float64
}

// StepLR decays the learning rate by Gamma every StepSize epochs.
type StepLR struct {
	SGD      *SGD
	Adam     *Adam
	StepSize int
	Gamma    float64

	epoch int
}

// NewStepLR creates a StepLR schedule for the given optimizer. Exactly one of
// sgd or adam should be non-nil.
func NewStepLR(sgd *SGD, adam *Adam, stepSize int, gamma float64) *StepLR {
	return &StepLR{SGD: sgd, Adam: adam, StepSize: stepSize, Gamma: gamma}
}

// Step advances one epoch and decays the learning rate on the boundary.
func (s *StepLR) Step() {
	s.epoch++
	if s.StepSize <= 0 || s.epoch%s.StepSize != 0 {
		return
	}
	if s.SGD != nil {
		s.SGD.LearningRate *= s.Gamma
	}
	if s.Adam != nil {
		s.Adam.LearningRate *= s.Gamma
	}
}

// LR returns the current learning rate.
func (s *StepLR) LR() float64 {
	if s.SGD != nil {
		return s.SGD.LearningRate
	}
	if s.Adam != nil {
		return s.Adam.LearningRate
	}
	return 0
}
