package connect

import "github.com/osa030/mpcore/internal/domain/media"

// ServiceName is the fully qualified name of the player service.
const ServiceName = "mpcore.v1.PlayerService"

// Procedures of the player service.
const (
	ProcedureCreatePlayer        = "/" + ServiceName + "/CreatePlayer"
	ProcedureReleasePlayer       = "/" + ServiceName + "/ReleasePlayer"
	ProcedureListPlayers         = "/" + ServiceName + "/ListPlayers"
	ProcedureGetStatus           = "/" + ServiceName + "/GetStatus"
	ProcedureOpen                = "/" + ServiceName + "/Open"
	ProcedureOpenData            = "/" + ServiceName + "/OpenData"
	ProcedurePlay                = "/" + ServiceName + "/Play"
	ProcedurePause               = "/" + ServiceName + "/Pause"
	ProcedureResume              = "/" + ServiceName + "/Resume"
	ProcedureStop                = "/" + ServiceName + "/Stop"
	ProcedureSeek                = "/" + ServiceName + "/Seek"
	ProcedureSetLoopCount        = "/" + ServiceName + "/SetLoopCount"
	ProcedureSetPlaybackSpeed    = "/" + ServiceName + "/SetPlaybackSpeed"
	ProcedureSelectAudioTrack    = "/" + ServiceName + "/SelectAudioTrack"
	ProcedureSetOption           = "/" + ServiceName + "/SetOption"
	ProcedureTakeScreenshot      = "/" + ServiceName + "/TakeScreenshot"
	ProcedureSelectSubtitle      = "/" + ServiceName + "/SelectSubtitle"
	ProcedureSetExternalSubtitle = "/" + ServiceName + "/SetExternalSubtitle"
	ProcedureMute                = "/" + ServiceName + "/Mute"
	ProcedureSetVolume           = "/" + ServiceName + "/SetVolume"
	ProcedureSetRenderMode       = "/" + ServiceName + "/SetRenderMode"
	ProcedureSwitchSrc           = "/" + ServiceName + "/SwitchSrc"
	ProcedurePreload             = "/" + ServiceName + "/Preload"
	ProcedureUnload              = "/" + ServiceName + "/Unload"
	ProcedurePlayPreloaded       = "/" + ServiceName + "/PlayPreloaded"
	ProcedureOpenCDN             = "/" + ServiceName + "/OpenCDN"
	ProcedureSwitchCDNLine       = "/" + ServiceName + "/SwitchCDNLine"
	ProcedureEnableCDNAutoSwitch = "/" + ServiceName + "/EnableCDNAutoSwitch"
	ProcedureRenewCDNToken       = "/" + ServiceName + "/RenewCDNToken"
	ProcedureSwitchCDNSrc        = "/" + ServiceName + "/SwitchCDNSrc"
	ProcedureSubscribe           = "/" + ServiceName + "/Subscribe"
)

// Result is the outcome of a player command. Command failures are reported here
// rather than as RPC errors, with the player status code.
type Result struct {
	Success bool   `json:"success"`
	Code    int    `json:"code"`
	Message string `json:"message,omitempty"`
}

// Empty is the request of procedures without arguments.
type Empty struct{}

// PlayerRequest addresses a player without further arguments.
type PlayerRequest struct {
	PlayerID string `json:"player_id"`
}

// CreatePlayerResponse carries the id of a new player.
type CreatePlayerResponse struct {
	PlayerID string `json:"player_id"`
}

// PlayerSummary is one entry of ListPlayersResponse.
type PlayerSummary struct {
	PlayerID string `json:"player_id"`
	State    string `json:"state"`
}

// ListPlayersResponse lists the live players.
type ListPlayersResponse struct {
	Players []PlayerSummary `json:"players"`
}

// StatusResponse is a snapshot of one player.
type StatusResponse struct {
	PlayerID     string             `json:"player_id"`
	Version      string             `json:"version"`
	State        string             `json:"state"`
	StateCode    int                `json:"state_code"`
	PositionMs   int64              `json:"position_ms"`
	DurationMs   int64              `json:"duration_ms"`
	Muted        bool               `json:"muted"`
	Volume       int                `json:"volume"`
	Streams      []media.StreamInfo `json:"streams,omitempty"`
	CDNLineCount int                `json:"cdn_line_count,omitempty"`
	CDNLineIndex int                `json:"cdn_line_index,omitempty"`
}

// OpenRequest opens a URL, or a CDN source for OpenCDN.
type OpenRequest struct {
	PlayerID   string `json:"player_id"`
	URL        string `json:"url"`
	StartPosMs int64  `json:"start_pos_ms"`
}

// OpenDataRequest opens an in-memory source.
type OpenDataRequest struct {
	PlayerID   string `json:"player_id"`
	Data       []byte `json:"data"`
	StartPosMs int64  `json:"start_pos_ms"`
}

// SeekRequest seeks the open source.
type SeekRequest struct {
	PlayerID string `json:"player_id"`
	PosMs    int64  `json:"pos_ms"`
}

// IntRequest carries one integer argument: a loop count, speed, volume, index or mode.
type IntRequest struct {
	PlayerID string `json:"player_id"`
	Value    int    `json:"value"`
}

// BoolRequest carries one boolean argument.
type BoolRequest struct {
	PlayerID string `json:"player_id"`
	Value    bool   `json:"value"`
}

// StringRequest carries one string argument: a file name or URL.
type StringRequest struct {
	PlayerID string `json:"player_id"`
	Value    string `json:"value"`
}

// OptionRequest sets a player option. Exactly one of IntValue and StringValue is set.
type OptionRequest struct {
	PlayerID    string  `json:"player_id"`
	Key         string  `json:"key"`
	IntValue    *int    `json:"int_value,omitempty"`
	StringValue *string `json:"string_value,omitempty"`
}

// SwitchRequest swaps the source under the running session.
type SwitchRequest struct {
	PlayerID string `json:"player_id"`
	URL      string `json:"url"`
	SyncPts  bool   `json:"sync_pts"`
}

// TokenRequest renews the CDN access token. TS is the expiry in Unix seconds.
type TokenRequest struct {
	PlayerID string `json:"player_id"`
	Token    string `json:"token"`
	TS       int64  `json:"ts"`
}

// Notification kinds.
const (
	KindState           = "state"
	KindPosition        = "position"
	KindEvent           = "event"
	KindMetadata        = "metadata"
	KindBuffer          = "buffer"
	KindPreload         = "preload"
	KindCompleted       = "completed"
	KindTokenWillExpire = "token_will_expire"
	KindBitrate         = "bitrate"
	KindInfo            = "info"
)

// Notification is one observer callback delivered over Subscribe.
type Notification struct {
	Seq        int64                `json:"seq"`
	Kind       string               `json:"kind"`
	State      string               `json:"state,omitempty"`
	Code       int                  `json:"code,omitempty"`
	PositionMs int64                `json:"position_ms,omitempty"`
	Event      string               `json:"event,omitempty"`
	ElapsedMs  int64                `json:"elapsed_ms,omitempty"`
	Message    string               `json:"message,omitempty"`
	Src        string               `json:"src,omitempty"`
	Preload    string               `json:"preload,omitempty"`
	CachedMs   int64                `json:"cached_ms,omitempty"`
	Metadata   []byte               `json:"metadata,omitempty"`
	Bitrate    *media.BitrateChange `json:"bitrate,omitempty"`
	DeviceID   string               `json:"device_id,omitempty"`
}
