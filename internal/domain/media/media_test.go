package media

import (
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCode
	}{
		{"nil", nil, CodeOK},
		{"sentinel", ErrInvalidState, CodeInvalidState},
		{"wrapped", errors.Wrap(ErrNoResource, "pool full"), CodeNoResource},
		{"index out of range", ErrIndexOutOfRange, CodeInvalidArguments},
		{"not found", errors.Wrap(ErrNotFound, "unload"), CodeURLNotFound},
		{"invalid transition", ErrInvalidTransition, CodeInvalidState},
		{"token expired", ErrTokenExpired, CodeTokenExpired},
		{"unknown", errors.New("boom"), CodeFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CodeOf(tt.err))
		})
	}
}

func TestErrorOf_RoundTrip(t *testing.T) {
	for code := range codeNames {
		err := ErrorOf(code)
		assert.Equal(t, code, CodeOf(err), code.String())
	}
}

func TestPlaybackSpeed_Valid(t *testing.T) {
	assert.True(t, SpeedOriginal.Valid())
	assert.True(t, Speed200.Valid())
	assert.False(t, PlaybackSpeed(90).Valid())
	assert.InDelta(t, 1.25, Speed125.Multiplier(), 0.0001)
}

func TestStreamInfo_Normalize(t *testing.T) {
	info := StreamInfo{Codec: strings.Repeat("x", 80), Language: "en"}.Normalize()
	assert.Len(t, info.Codec, MaxCharBufferLength)
	assert.Equal(t, "en", info.Language)
}

func TestNewAudioPcmFrame(t *testing.T) {
	f, err := NewAudioPcmFrame(10, 480, 48000, 2, make([]int16, 960))
	require.NoError(t, err)
	assert.Equal(t, 2, f.BytesPerSample)
	assert.Len(t, f.Data, 960)

	_, err = NewAudioPcmFrame(10, 2000, 48000, 2, make([]int16, 4000))
	assert.Equal(t, CodeInvalidArguments, CodeOf(err))
}

func TestAudioPcmFrame_CloneClamps(t *testing.T) {
	f := &AudioPcmFrame{Data: make([]int16, MaxDataSizeSamples+10)}
	c := f.Clone()
	assert.Len(t, c.Data, MaxDataSizeSamples)

	var nilFrame *AudioPcmFrame
	assert.Nil(t, nilFrame.Clone())
}

func TestPlayerEvent_String(t *testing.T) {
	assert.Equal(t, "seek_complete", EventSeekComplete.String())
	assert.Equal(t, "first_displayed", EventFirstDisplayed.String())
	assert.Equal(t, "unknown", PlayerEvent(99).String())
}
