package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/mpcore/internal/domain/media"
)

func TestDecodeOptions(t *testing.T) {
	tests := []struct {
		name    string
		raw     map[string]any
		want    Options
		wantErr bool
	}{
		{
			name: "defaults",
			raw:  nil,
			want: Options{EnableAudio: 1, EnableVideo: 1, EnableSearchMetadata: 1},
		},
		{
			name: "overrides and weak typing",
			raw: map[string]any{
				OptAnalyzeDuration: "500",
				OptEnableVideo:     0,
				OptSEIFilterType:   "5",
			},
			want: Options{AnalyzeDuration: 500, EnableAudio: 1, EnableVideo: 0, EnableSearchMetadata: 1, SEIFilterType: "5"},
		},
		{
			name: "unknown keys kept",
			raw:  map[string]any{"probe_size": 1024},
			want: Options{EnableAudio: 1, EnableVideo: 1, EnableSearchMetadata: 1, Extra: map[string]any{"probe_size": 1024}},
		},
		{
			name:    "flag out of range",
			raw:     map[string]any{OptEnableAudio: 3},
			wantErr: true,
		},
		{
			name:    "negative analyze duration",
			raw:     map[string]any{OptAnalyzeDuration: -1},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeOptions(tt.raw)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, media.CodeInvalidArguments, media.CodeOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want.AnalyzeDuration, got.AnalyzeDuration)
			assert.Equal(t, tt.want.EnableAudio, got.EnableAudio)
			assert.Equal(t, tt.want.EnableVideo, got.EnableVideo)
			assert.Equal(t, tt.want.EnableSearchMetadata, got.EnableSearchMetadata)
			assert.Equal(t, tt.want.SEIFilterType, got.SEIFilterType)
			for k, v := range tt.want.Extra {
				assert.Equal(t, v, got.Extra[k])
			}
		})
	}
}

func TestOptions_Map(t *testing.T) {
	opts, err := DecodeOptions(map[string]any{"probe_size": 1, OptSEIFilterType: "x"})
	require.NoError(t, err)
	m := opts.Map()
	assert.Equal(t, 1, m[OptEnableAudio])
	assert.Equal(t, "x", m[OptSEIFilterType])
	assert.Equal(t, 1, m["probe_size"])
}
