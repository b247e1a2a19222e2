package media

import (
	"github.com/cockroachdb/errors"
	"github.com/samber/mo"
)

// MaxDataSizeSamples is the capacity of an AudioPcmFrame in samples.
const MaxDataSizeSamples = 3840

// AudioPcmFrame is one block of interleaved 16-bit PCM.
type AudioPcmFrame struct {
	CaptureTimestamp  int64
	SamplesPerChannel int
	SampleRateHz      int
	NumChannels       int
	BytesPerSample    int
	Data              []int16
}

// NewAudioPcmFrame builds a frame, rejecting payloads larger than MaxDataSizeSamples.
func NewAudioPcmFrame(ts int64, samplesPerChannel, sampleRate, channels int, data []int16) (*AudioPcmFrame, error) {
	if samplesPerChannel < 0 || channels < 0 {
		return nil, errors.Wrap(ErrInvalidArguments, "negative frame geometry")
	}
	if samplesPerChannel*channels > MaxDataSizeSamples || len(data) > MaxDataSizeSamples {
		return nil, errors.Wrapf(ErrInvalidArguments, "frame exceeds %d samples", MaxDataSizeSamples)
	}
	buf := make([]int16, len(data))
	copy(buf, data)
	return &AudioPcmFrame{
		CaptureTimestamp:  ts,
		SamplesPerChannel: samplesPerChannel,
		SampleRateHz:      sampleRate,
		NumChannels:       channels,
		BytesPerSample:    2,
		Data:              buf,
	}, nil
}

// Clone returns a deep copy; the copied payload never exceeds MaxDataSizeSamples.
func (f *AudioPcmFrame) Clone() *AudioPcmFrame {
	if f == nil {
		return nil
	}
	n := min(len(f.Data), MaxDataSizeSamples)
	c := *f
	c.Data = make([]int16, n)
	copy(c.Data, f.Data[:n])
	return &c
}

// Plane is one image plane of a VideoFrame.
type Plane struct {
	Stride int
	Data   []byte
}

// VideoFrame is a decoded picture handed to video frame observers.
type VideoFrame struct {
	Format       PixelFormat
	Width        int
	Height       int
	Planes       [3]Plane
	Rotation     int
	RenderTimeMs int64
	AVSyncType   int
	Metadata     []byte
}

// PlayerUpdatedInfo carries identifiers that became known after creation.
type PlayerUpdatedInfo struct {
	PlayerID mo.Option[string]
	DeviceID mo.Option[string]
}
