package util

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapError(t *testing.T) {
	assert.Nil(t, WrapError("open device", nil))

	base := errors.New("no such device")
	err := WrapError("open device", base)
	require.Error(t, err)
	assert.Equal(t, "failed to open device: no such device", err.Error())
	assert.ErrorIs(t, err, base)
}

func TestExtractLastError(t *testing.T) {
	tests := []struct {
		name   string
		stderr string
		want   string
	}{
		{name: "empty", stderr: "", want: ""},
		{name: "whitespace only", stderr: "  \n\t\n", want: ""},
		{name: "single line", stderr: "arecord: main:830: audio open error", want: "arecord: main:830: audio open error"},
		{
			name:   "last meaningful line wins",
			stderr: "ffmpeg version 6.0\nbuilt with clang\n[avfoundation] audio access denied\n\n",
			want:   "[avfoundation] audio access denied",
		},
		{name: "trailing blank lines skipped", stderr: "real error\n\n\n", want: "real error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractLastError(tt.stderr))
		})
	}
}

func TestExtractLastError_TruncatesLongLines(t *testing.T) {
	got := ExtractLastError(strings.Repeat("x", 400))
	assert.Len(t, got, 203)
	assert.True(t, strings.HasSuffix(got, "..."))
}
