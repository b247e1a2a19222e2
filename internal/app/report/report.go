// Package report defines the telemetry sender the player reports lifecycle events to.
package report

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// ItemType identifies a reported event.
type ItemType int

const (
	ItemCdnConnectState ItemType = 9082
	ItemDestroy         ItemType = 9083
	ItemInitialize      ItemType = 9084
	ItemOpen            ItemType = 9085
	ItemOpenResponse    ItemType = 9086
	ItemPause           ItemType = 9087
	ItemPlay            ItemType = 9088
	ItemPlayState       ItemType = 9091
	ItemSeek            ItemType = 9092
	ItemSeekResponse    ItemType = 9093
	ItemStop            ItemType = 9094
	ItemStopResponse    ItemType = 9095
	ItemSwitch          ItemType = 9096
	ItemNetworkState    ItemType = 9098
	ItemSwitchResponse  ItemType = 9331
	ItemLasSwitch       ItemType = 9396
)

// String returns the string representation of the item type.
func (t ItemType) String() string {
	switch t {
	case ItemCdnConnectState:
		return "cdn_connect_state"
	case ItemDestroy:
		return "destroy"
	case ItemInitialize:
		return "initialize"
	case ItemOpen:
		return "open"
	case ItemOpenResponse:
		return "open_response"
	case ItemPause:
		return "pause"
	case ItemPlay:
		return "play"
	case ItemPlayState:
		return "play_state"
	case ItemSeek:
		return "seek"
	case ItemSeekResponse:
		return "seek_response"
	case ItemStop:
		return "stop"
	case ItemStopResponse:
		return "stop_response"
	case ItemSwitch:
		return "switch"
	case ItemNetworkState:
		return "network_state"
	case ItemSwitchResponse:
		return "switch_response"
	case ItemLasSwitch:
		return "las_switch"
	default:
		return "unknown"
	}
}

// Event is one report item.
type Event struct {
	ID         ItemType
	Sid        uuid.UUID // player id
	Vid        int64
	Cid        int64
	Uid        int64
	Lts        int64 // local timestamp in ms
	Elapse     int64 // ms since the player was created
	Peer       int64
	EventSpace int64
	Fields     map[string]any
}

// NewEvent creates an event stamped with the current time.
func NewEvent(id ItemType, sid uuid.UUID, created time.Time, fields map[string]any) Event {
	now := time.Now()
	return Event{
		ID:     id,
		Sid:    sid,
		Lts:    now.UnixMilli(),
		Elapse: now.Sub(created).Milliseconds(),
		Fields: fields,
	}
}

// Stats are playback quality counters.
type Stats struct {
	Freeze200ms   int64 // freezes longer than 200ms
	Freeze500ms   int64
	Freeze600ms   int64
	FreezeTotalMs int64
	VideoBitrate  int64 // average kbps
	AudioBitrate  int64 // average kbps
}

// Reporter is what a sender is initialised with.
type Reporter interface {
	Stats() Stats
	OnNetworkChanged(networkType int)
}

// Sender receives report events from the player.
type Sender interface {
	InitializeReporter(r Reporter) error
	UninitializeReporter()
	SDKVersion() string
	InstallID() string
	NetworkInfo() int
	DeviceID() string
	Vid() int64
	ReportEvent(ev Event)
	StartCounterStats()
	StopCounterStats()
}

// Collector accumulates Stats from freeze and bitrate observations. It implements Reporter.
type Collector struct {
	mu          sync.Mutex
	stats       Stats
	network     int
	freezeStart time.Time
	videoSum    int64
	videoN      int64
}

// FreezeStarted records the start of a freeze.
func (c *Collector) FreezeStarted(at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.freezeStart = at
}

// FreezeStopped closes the running freeze.
func (c *Collector) FreezeStopped(at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.freezeStart.IsZero() {
		return
	}
	d := at.Sub(c.freezeStart).Milliseconds()
	c.freezeStart = time.Time{}
	c.stats.FreezeTotalMs += d
	if d > 200 {
		c.stats.Freeze200ms++
	}
	if d > 500 {
		c.stats.Freeze500ms++
	}
	if d > 600 {
		c.stats.Freeze600ms++
	}
}

// BitrateObserved adds a video bitrate sample in kbps.
func (c *Collector) BitrateObserved(kbps int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.videoSum += int64(kbps)
	c.videoN++
	c.stats.VideoBitrate = c.videoSum / c.videoN
}

// Stats implements Reporter.
func (c *Collector) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// OnNetworkChanged implements Reporter.
func (c *Collector) OnNetworkChanged(networkType int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.network = networkType
}

// Network returns the last network type reported.
func (c *Collector) Network() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.network
}
