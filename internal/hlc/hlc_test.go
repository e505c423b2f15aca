// Unless explicitly stated otherwise all files in this repository are
// licensed under the Apache License Version 2.0.
// Copyright 2026 PromptGrimoire contributors.

package hlc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLessTotalOrder(t *testing.T) {
	a := Stamp{Counter: 1, Origin: "a"}
	b := Stamp{Counter: 1, Origin: "b"}
	c := Stamp{Counter: 2, Origin: "a"}

	assert.True(t, a.Less(b))
	assert.False(t, b.Less(a))
	assert.True(t, b.Less(c))
}

func TestClockTicksMonotonic(t *testing.T) {
	clk := New("r1")
	s1 := clk.Tick()
	s2 := clk.Tick()
	assert.True(t, s1.Less(s2))
}

func TestClockObserveAdvances(t *testing.T) {
	clk := New("r1")
	clk.Tick() // counter = 1
	clk.Observe(Stamp{Counter: 10, Origin: "r2"})
	next := clk.Tick()
	assert.Equal(t, uint64(11), next.Counter)
}
