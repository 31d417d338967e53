package chain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWeiToEther(t *testing.T) {
	tests := []struct {
		value string
		want  float64
		ok    bool
	}{
		{"1000000000000000000", 1, true},
		{"1500000000000000000", 1.5, true},
		{"0", 0, true},
		{"not-a-number", 0, false},
	}
	for _, tt := range tests {
		got, ok := weiToEther(tt.value)
		require.Equal(t, tt.ok, ok, tt.value)
		if ok {
			assert.InDelta(t, tt.want, got, 1e-9, tt.value)
		}
	}
}
