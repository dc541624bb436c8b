package video_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/webflix/webflix/internal/video"
)

func Test_StatusTransitions_FollowLifecycle(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		from    video.Status
		to      video.Status
		allowed bool
	}{
		{"pending can be submitted", video.StatusPending, video.StatusSubmitted, true},
		{"submitted can become ready", video.StatusSubmitted, video.StatusReady, true},
		{"submitted can become errored", video.StatusSubmitted, video.StatusErrored, true},
		{"pending cannot skip to ready", video.StatusPending, video.StatusReady, false},
		{"pending cannot skip to errored", video.StatusPending, video.StatusErrored, false},
		{"ready is absorbing", video.StatusReady, video.StatusSubmitted, false},
		{"ready cannot become errored", video.StatusReady, video.StatusErrored, false},
		{"errored is absorbing", video.StatusErrored, video.StatusSubmitted, false},
		{"errored cannot become ready", video.StatusErrored, video.StatusReady, false},
		{"no self transition for pending", video.StatusPending, video.StatusPending, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.allowed, video.CanTransition(tt.from, tt.to))

			err := video.ValidateTransition(tt.from, tt.to)
			if tt.allowed {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, video.ErrInvalidTransition)
			}
		})
	}
}

func Test_StatusIsTerminal(t *testing.T) {
	t.Parallel()

	assert.False(t, video.StatusPending.IsTerminal())
	assert.False(t, video.StatusSubmitted.IsTerminal())
	assert.True(t, video.StatusReady.IsTerminal())
	assert.True(t, video.StatusErrored.IsTerminal())
}
