package clock

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFakeClockAdvance(t *testing.T) {
	f := NewFake()
	assert.Equal(t, float64(0), f.Now())

	f.Advance(1.5)
	assert.Equal(t, 1.5, f.Now())

	f.Advance(0.5)
	assert.Equal(t, 2.0, f.Now())
}

func TestFakeClockSet(t *testing.T) {
	f := NewFake()
	f.Set(10)
	assert.Equal(t, float64(10), f.Now())
}

func TestSystemClockMonotonic(t *testing.T) {
	s := NewSystem()
	a := s.Now()
	b := s.Now()
	assert.GreaterOrEqual(t, b, a)
}

func TestDefaultClockOverride(t *testing.T) {
	orig := Default()
	defer SetDefault(orig)

	f := NewFake()
	f.Set(42)
	SetDefault(f)
	assert.Equal(t, float64(42), Default().Now())

	SetDefault(nil)
	assert.NotNil(t, Default())
}
