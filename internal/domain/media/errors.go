package media

import (
	"strconv"

	"github.com/cockroachdb/errors"
)

// ErrorCode is the integer status reported to observers and remote callers.
type ErrorCode int

const (
	CodeOK                     ErrorCode = 0
	CodeInvalidArguments       ErrorCode = -1
	CodeFailed                 ErrorCode = -2
	CodeNoResource             ErrorCode = -3
	CodeInvalidMediaSource     ErrorCode = -4
	CodeUnknownStreamType      ErrorCode = -5
	CodeNotInitialized         ErrorCode = -6
	CodeCodecNotSupported      ErrorCode = -7
	CodeVideoRenderFailed      ErrorCode = -8
	CodeInvalidState           ErrorCode = -9
	CodeURLNotFound            ErrorCode = -10
	CodeInvalidConnectionState ErrorCode = -11
	CodeBufferUnderflow        ErrorCode = -12
	CodeInterrupted            ErrorCode = -13
	CodeNotSupported           ErrorCode = -14
	CodeTokenExpired           ErrorCode = -15
	CodeIPExpired              ErrorCode = -16
)

var codeNames = map[ErrorCode]string{
	CodeOK:                     "ok",
	CodeInvalidArguments:       "invalid_arguments",
	CodeFailed:                 "failed",
	CodeNoResource:             "no_resource",
	CodeInvalidMediaSource:     "invalid_media_source",
	CodeUnknownStreamType:      "unknown_stream_type",
	CodeNotInitialized:         "not_initialized",
	CodeCodecNotSupported:      "codec_not_supported",
	CodeVideoRenderFailed:      "video_render_failed",
	CodeInvalidState:           "invalid_state",
	CodeURLNotFound:            "url_not_found",
	CodeInvalidConnectionState: "invalid_connection_state",
	CodeBufferUnderflow:        "buffer_underflow",
	CodeInterrupted:            "interrupted",
	CodeNotSupported:           "not_supported",
	CodeTokenExpired:           "token_expired",
	CodeIPExpired:              "ip_expired",
}

// String returns the string representation of the code.
func (c ErrorCode) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return "code(" + strconv.Itoa(int(c)) + ")"
}

// Sentinel errors, one per status code.
var (
	ErrInvalidArguments       = errors.New("invalid arguments")
	ErrFailed                 = errors.New("failed")
	ErrNoResource             = errors.New("no resource")
	ErrInvalidMediaSource     = errors.New("invalid media source")
	ErrUnknownStreamType      = errors.New("unknown stream type")
	ErrNotInitialized         = errors.New("not initialized")
	ErrCodecNotSupported      = errors.New("codec not supported")
	ErrVideoRenderFailed      = errors.New("video render failed")
	ErrInvalidState           = errors.New("invalid state")
	ErrURLNotFound            = errors.New("url not found")
	ErrInvalidConnectionState = errors.New("invalid connection state")
	ErrBufferUnderflow        = errors.New("buffer underflow")
	ErrInterrupted            = errors.New("interrupted")
	ErrNotSupported           = errors.New("not supported")
	ErrTokenExpired           = errors.New("token expired")
	ErrIPExpired              = errors.New("ip expired")
)

// Derived errors keep their own identity but report the code of the class they are marked with.
var (
	ErrIndexOutOfRange   = errors.Mark(errors.New("index out of range"), ErrInvalidArguments)
	ErrNotFound          = errors.Mark(errors.New("not found"), ErrURLNotFound)
	ErrInvalidTransition = errors.Mark(errors.New("invalid state transition"), ErrInvalidState)
)

var codeTable = []struct {
	err  error
	code ErrorCode
}{
	{ErrInvalidArguments, CodeInvalidArguments},
	{ErrNoResource, CodeNoResource},
	{ErrInvalidMediaSource, CodeInvalidMediaSource},
	{ErrUnknownStreamType, CodeUnknownStreamType},
	{ErrNotInitialized, CodeNotInitialized},
	{ErrCodecNotSupported, CodeCodecNotSupported},
	{ErrVideoRenderFailed, CodeVideoRenderFailed},
	{ErrInvalidState, CodeInvalidState},
	{ErrURLNotFound, CodeURLNotFound},
	{ErrInvalidConnectionState, CodeInvalidConnectionState},
	{ErrBufferUnderflow, CodeBufferUnderflow},
	{ErrInterrupted, CodeInterrupted},
	{ErrNotSupported, CodeNotSupported},
	{ErrTokenExpired, CodeTokenExpired},
	{ErrIPExpired, CodeIPExpired},
	{ErrFailed, CodeFailed},
}

// CodeOf maps an error to its status code. Errors outside the known classes map to CodeFailed.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return CodeOK
	}
	for _, entry := range codeTable {
		if errors.Is(err, entry.err) {
			return entry.code
		}
	}
	return CodeFailed
}

// ErrorOf returns the sentinel error of a status code, nil for CodeOK.
func ErrorOf(code ErrorCode) error {
	if code == CodeOK {
		return nil
	}
	for _, entry := range codeTable {
		if entry.code == code {
			return entry.err
		}
	}
	return ErrFailed
}
