package dsp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAdaptiveFloorTracksDownFasterThanUp(t *testing.T) {
	f := NewAdaptiveFloor(0.5, 0.01)
	f.Value = 10
	f.Update(0) // below floor: fast AdaptDown alpha
	down := f.Value

	f2 := NewAdaptiveFloor(0.5, 0.01)
	f2.Value = 10
	f2.Update(20) // above floor: slow AdaptUp alpha
	up := f2.Value

	assert.Less(t, down, 10.0)
	assert.Greater(t, up, 10.0)
	assert.Greater(t, 10.0-down, up-10.0, "a large AdaptDown paired with a small AdaptUp should move the floor further in one downward step than one upward step")
}

func TestAdaptiveFloorReset(t *testing.T) {
	f := NewAdaptiveFloor(0.5, 0.01)
	f.Update(5)
	assert.NotZero(t, f.Value)
	f.Reset()
	assert.Zero(t, f.Value)
}
