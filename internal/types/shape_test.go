package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestShapeAlternativesYAML(t *testing.T) {
	var single ShapeAlternatives
	require.NoError(t, yaml.Unmarshal([]byte("[null, 3]"), &single))
	require.Len(t, single, 1)
	assert.True(t, single.Matches([]int{10, 3}))
	assert.False(t, single.Matches([]int{10, 4}))
	assert.False(t, single.Matches([]int{10}))
	assert.Equal(t, "[(None, 3)]", single.String())

	var alts ShapeAlternatives
	require.NoError(t, yaml.Unmarshal([]byte("[[null], [null, null]]"), &alts))
	require.Len(t, alts, 2)
	assert.True(t, alts.Matches([]int{4}))
	assert.True(t, alts.Matches([]int{4, 5}))
	assert.False(t, alts.Matches([]int{1, 1, 1}))
	assert.Equal(t, "[(None,) | (None, None)]", alts.String())

	out, err := yaml.Marshal(single)
	require.NoError(t, err)
	var again ShapeAlternatives
	require.NoError(t, yaml.Unmarshal(out, &again))
	assert.Equal(t, single.String(), again.String())

	var bad ShapeAlternatives
	require.Error(t, yaml.Unmarshal([]byte("3"), &bad))
}

func TestShapeMatchesUnconstrained(t *testing.T) {
	var none ShapeAlternatives
	assert.True(t, none.Matches([]int{1, 2, 3, 4, 5}))
	assert.True(t, none.Matches(nil))
}

func TestFormatShape(t *testing.T) {
	assert.Equal(t, "(1, 1, 1, 1, 1)", FormatShape([]int{1, 1, 1, 1, 1}))
	assert.Equal(t, "(7,)", FormatShape([]int{7}))
	assert.Equal(t, "()", FormatShape([]int{}))
}

func TestQuantity(t *testing.T) {
	tests := []struct {
		q        Quantity
		required bool
		many     bool
		max      int
		valid    bool
	}{
		{"", true, false, 1, true},
		{QuantityOptional, false, false, 1, true},
		{QuantityZeroOrMore, false, true, -1, true},
		{QuantityOneOrMore, true, true, -1, true},
		{"3", true, true, 3, true},
		{"0", true, false, 0, false},
		{"lots", true, false, 1, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.required, tt.q.Required(), "required %q", tt.q)
		assert.Equal(t, tt.many, tt.q.Many(), "many %q", tt.q)
		assert.Equal(t, tt.max, tt.q.Max(), "max %q", tt.q)
		assert.Equal(t, tt.valid, tt.q.Valid(), "valid %q", tt.q)
	}

	var q Quantity
	require.NoError(t, yaml.Unmarshal([]byte("2"), &q))
	assert.Equal(t, Quantity("2"), q)
}
