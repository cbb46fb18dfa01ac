package duration

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/genaforvena/ghost-writers-ghost-video-editor/internal/clip"
)

func TestEstimateReadingSeconds(t *testing.T) {
	tests := []struct {
		text string
		want float64
	}{
		{"one two three four five", 2.0},
		{"", 0},
		{"  spaced   out\twords\n", 1.2},
		{"A dog ran", 1.2},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, EstimateReadingSeconds(tt.text), 1e-9, tt.text)
	}
}

func TestFallbackTarget(t *testing.T) {
	clips := []clip.ResolvedClip{
		clip.Matched("v1", 2, 5, "/c.mp4"),
		clip.Fallback("A dog ran"),
		clip.Fallback("one two three four five"),
	}
	assert.InDelta(t, 3.2, FallbackTarget(clips), 1e-9)
	assert.Zero(t, FallbackTarget(nil))
}

func TestVerify(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	v := Verify(logger, 122, 120)
	assert.False(t, v.Mismatch)
	assert.Equal(t, 2.0, v.Delta)
	assert.Empty(t, buf.String())

	v = Verify(logger, 40, 120)
	assert.True(t, v.Mismatch)
	assert.Equal(t, -80.0, v.Delta)
	assert.Contains(t, buf.String(), "duration mismatch")
	assert.Contains(t, buf.String(), "level=WARN")
}

func TestVerify_ExactToleranceIsNotMismatch(t *testing.T) {
	assert.False(t, Verify(nil, 15, 10).Mismatch)
	assert.True(t, Verify(nil, 15.5, 10).Mismatch)
}
