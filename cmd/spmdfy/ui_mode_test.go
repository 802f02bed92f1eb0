package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadUIMode(t *testing.T) {
	tests := []struct {
		in   string
		want uiMode
	}{
		{"", uiModeAuto},
		{"auto", uiModeAuto},
		{" ON ", uiModeOn},
		{"off", uiModeOff},
	}
	for _, tt := range tests {
		got, err := readUIMode(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
	_, err := readUIMode("sometimes")
	assert.Error(t, err)
}

func TestShouldUseTUI(t *testing.T) {
	assert.True(t, shouldUseTUI(uiModeOn, true))
	assert.False(t, shouldUseTUI(uiModeOff, false))
	assert.False(t, shouldUseTUI(uiModeAuto, true))
}
