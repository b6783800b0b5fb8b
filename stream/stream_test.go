package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordSentFrameTrimsToMaxRecentFrames(t *testing.T) {
	s := New(1, Audio, 0xDEADBEEF, 20, true)

	for i := 0; i < maxRecentFrames+2; i++ {
		s.RecordSentFrame([]byte{byte(i)})
	}

	require.Len(t, s.RecentFrames, maxRecentFrames)
	assert.Equal(t, uint32(maxRecentFrames+2), s.OutFrameSeq)
	// Oldest two frames (0, 1) should have been evicted.
	assert.Equal(t, byte(2), s.RecentFrames[0][0])
}

func TestSetEnabledToggles(t *testing.T) {
	s := New(2, Video, 1, 20, false)
	assert.False(t, s.Enabled)

	s.SetEnabled(true)
	assert.True(t, s.Enabled)
}
