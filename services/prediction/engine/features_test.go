// Copyright (C) 2025 EduTwin Analytics (dev@edutwin.app)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func twoByTwoStructure() *Structure {
	return &Structure{
		ID:         1,
		Name:       "demo",
		TimePoints: []string{"T1", "T2"},
		Subjects:   []string{"A", "B"},
		ScaleType:  "0-10",
	}
}

func TestFeatureKeys_Ordering(t *testing.T) {
	st := twoByTwoStructure()
	assert.Equal(t, []string{"A_T1", "B_T1", "A_T2", "B_T2"}, st.FeatureKeys())
}

func TestTimePointIndex(t *testing.T) {
	st := twoByTwoStructure()

	idx, err := st.TimePointIndex("T2")
	require.NoError(t, err)
	assert.Equal(t, 1, idx)

	_, err = st.TimePointIndex("T9")
	assert.ErrorIs(t, err, ErrUnknownTimePoint)
}

func TestInputTargetKeys(t *testing.T) {
	st := &Structure{
		TimePoints: []string{"T1", "T2", "T3"},
		Subjects:   []string{"A", "B"},
	}

	inputs, targets := st.InputTargetKeys(1)
	assert.ElementsMatch(t, []string{"A_T1", "B_T1", "A_T2", "B_T2"}, inputs)
	assert.ElementsMatch(t, []string{"A_T3", "B_T3"}, targets)

	// Last time point: everything is an input.
	inputs, targets = st.InputTargetKeys(2)
	assert.Len(t, inputs, 6)
	assert.Empty(t, targets)
}

func TestSplitFeatureKey(t *testing.T) {
	subject, tp, err := SplitFeatureKey("A_T1")
	require.NoError(t, err)
	assert.Equal(t, "A", subject)
	assert.Equal(t, "T1", tp)

	// Subjects may contain the delimiter; the split is at the last one.
	subject, tp, err = SplitFeatureKey("computer_science_T3")
	require.NoError(t, err)
	assert.Equal(t, "computer_science", subject)
	assert.Equal(t, "T3", tp)

	_, _, err = SplitFeatureKey("nodelimiter")
	assert.Error(t, err)
}

func TestScaleMax(t *testing.T) {
	cases := map[string]float64{
		"0-10":    10,
		"0-100":   100,
		"0-10000": 10000,
		"GPA":     4,
		"A-F":     10,
		"bogus":   10, // unknown types fall back to 0-10
	}
	for scaleType, want := range cases {
		assert.Equal(t, want, ScaleMax(scaleType), scaleType)
	}
}
