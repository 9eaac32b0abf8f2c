package dsp

// AdaptiveFloor tracks a noise floor that falls quickly toward low energy
// and rises slowly toward high energy, shared by the tick, marker and
// BCD detectors.
type AdaptiveFloor struct {
	Value   float64
	AdaptUp float64 // alpha used when energy is above the floor
	AdaptDown float64 // alpha used when energy is below the floor
}

func NewAdaptiveFloor(adaptDown, adaptUp float64) *AdaptiveFloor {
	return &AdaptiveFloor{AdaptDown: adaptDown, AdaptUp: adaptUp}
}

// Update folds one new energy sample into the floor estimate.
func (f *AdaptiveFloor) Update(energy float64) {
	if energy < f.Value {
		f.Value += (energy - f.Value) * f.AdaptDown
	} else {
		f.Value += (energy - f.Value) * f.AdaptUp
	}
}

func (f *AdaptiveFloor) Reset() {
	f.Value = 0
}
