package core

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetLogLevel(t *testing.T) {
	var buf bytes.Buffer
	SetLogOutput(&buf)
	t.Cleanup(func() {
		SetLogOutput(os.Stderr)
		_ = SetLogLevel("debug")
	})

	require.NoError(t, SetLogLevel("warn"))
	LogInfo("hidden %d", 1)
	LogWarn("shown %d", 2)
	assert.NotContains(t, buf.String(), "hidden 1")
	assert.Contains(t, buf.String(), "shown 2")

	assert.Error(t, SetLogLevel("loud"))
}

func TestErrorsKeepSentinels(t *testing.T) {
	err := Wrapf(ErrFenceTimeout, "frame %d", 7)
	assert.True(t, Is(err, ErrFenceTimeout))
	assert.Contains(t, err.Error(), "frame 7")

	marked := Mark(Newf("acquire failed"), ErrSurfaceOutOfDate)
	assert.True(t, Is(marked, ErrSurfaceOutOfDate))
	assert.False(t, Is(marked, ErrDeviceLost))
}
