package ops

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yanun0323/decimal"

	"main/internal/schema"
)

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	var d decimal.Decimal
	require.NoError(t, json.Unmarshal([]byte(`"`+s+`"`), &d))
	return d
}

func TestParseScaled(t *testing.T) {
	cases := []struct {
		in    string
		scale schema.Scale
		want  int64
	}{
		{"0", 2, 0},
		{"1", 2, 100},
		{"65000.01", 2, 6500001},
		{"0.25", 4, 2500},
		{"-1.5", 2, -150},
		{"10", 0, 10},
		{"0.2500", 2, 25}, // trailing zeros beyond the scale are harmless
	}
	for _, c := range cases {
		got, err := ParseScaled(dec(t, c.in), c.scale)
		require.NoError(t, err, "input %s", c.in)
		assert.Equal(t, c.want, got, "input %s scale %d", c.in, c.scale)
	}
}

func TestParseScaledRejectsExcessPrecision(t *testing.T) {
	_, err := ParseScaled(dec(t, "0.001"), 2)
	assert.Error(t, err)

	_, err = ParseScaled(dec(t, "1.5"), 0)
	assert.Error(t, err)
}
