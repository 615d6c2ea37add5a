package verification

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNumericGenerator(t *testing.T) {
	t.Parallel()

	g := NumericGenerator{Length: 6}

	for i := 0; i < 200; i++ {
		code, err := g.Generate()
		require.NoError(t, err)
		require.Len(t, code, 6)
		for _, c := range code {
			assert.True(t, c >= '0' && c <= '9', "non digit in %q", code)
		}
	}
}

func TestRoundedGenerator(t *testing.T) {
	t.Parallel()

	g := RoundedGenerator{}

	for i := 0; i < 500; i++ {
		code, err := g.Generate()
		require.NoError(t, err)
		require.Len(t, code, 2)

		d1, d2 := code[0], code[1]
		assert.True(t, d1 >= '1' && d1 <= '9', "first digit %q", code)
		assert.True(t, d2 == '0' || d2 == '5' || d2 == d1, "second digit %q", code)
	}
}

func TestRoundedGenerator_Deterministic(t *testing.T) {
	t.Parallel()

	draws := []int{6, 2}
	g := RoundedGenerator{IntN: func(n int) int {
		v := draws[0]
		draws = draws[1:]
		return v
	}}

	code, err := g.Generate()
	require.NoError(t, err)
	assert.Equal(t, "77", code)
}

func TestNewGenerator(t *testing.T) {
	t.Parallel()

	g, err := NewGenerator("", 0)
	require.NoError(t, err)
	assert.Equal(t, NumericGenerator{Length: DefaultCodeLength}, g)

	g, err = NewGenerator(GeneratorRounded, 0)
	require.NoError(t, err)
	assert.IsType(t, RoundedGenerator{}, g)

	_, err = NewGenerator("hex", 6)
	require.ErrorIs(t, err, ErrUnknownGenerator)
}
