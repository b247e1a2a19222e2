package session

import (
	"maps"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"

	"github.com/osa030/mpcore/internal/domain/media"
)

// Known player option keys.
const (
	OptAnalyzeDuration      = "analyze_duration"
	OptEnableAudio          = "enable_audio"
	OptEnableVideo          = "enable_video"
	OptEnableSearchMetadata = "enable_search_metadata"
	OptSEIFilterType        = "set_sei_filter_type"
)

// Options are the advisory settings consulted when a source is opened.
type Options struct {
	AnalyzeDuration      int            `mapstructure:"analyze_duration" default:"0" validate:"gte=0"`
	EnableAudio          int            `mapstructure:"enable_audio" default:"1" validate:"oneof=0 1"`
	EnableVideo          int            `mapstructure:"enable_video" default:"1" validate:"oneof=0 1"`
	EnableSearchMetadata int            `mapstructure:"enable_search_metadata" default:"1" validate:"oneof=0 1"`
	SEIFilterType        string         `mapstructure:"set_sei_filter_type"`
	Extra                map[string]any `mapstructure:",remain"`
}

// DecodeOptions builds Options from raw overrides. Unknown keys are kept in Extra and
// passed through to the engine.
func DecodeOptions(raw map[string]any) (Options, error) {
	var opts Options
	if err := defaults.Set(&opts); err != nil {
		return Options{}, errors.Wrap(err, "failed to set defaults")
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &opts,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return Options{}, errors.Wrap(err, "failed to create decoder")
	}
	if err := decoder.Decode(raw); err != nil {
		return Options{}, errors.Mark(errors.Wrap(err, "failed to decode options"), media.ErrInvalidArguments)
	}

	if err := validator.New().Struct(&opts); err != nil {
		return Options{}, errors.Mark(errors.Wrap(err, "invalid options"), media.ErrInvalidArguments)
	}
	return opts, nil
}

// Map returns the options in the form handed to the engine.
func (o Options) Map() map[string]any {
	m := make(map[string]any, len(o.Extra)+5)
	maps.Copy(m, o.Extra)
	m[OptAnalyzeDuration] = o.AnalyzeDuration
	m[OptEnableAudio] = o.EnableAudio
	m[OptEnableVideo] = o.EnableVideo
	m[OptEnableSearchMetadata] = o.EnableSearchMetadata
	if o.SEIFilterType != "" {
		m[OptSEIFilterType] = o.SEIFilterType
	}
	return m
}
