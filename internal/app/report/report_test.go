package report

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_Freeze(t *testing.T) {
	c := &Collector{}
	base := time.Now()

	c.FreezeStarted(base)
	c.FreezeStopped(base.Add(300 * time.Millisecond))
	c.FreezeStarted(base.Add(time.Second))
	c.FreezeStopped(base.Add(time.Second + 700*time.Millisecond))
	c.FreezeStopped(base.Add(2 * time.Second))

	st := c.Stats()
	assert.Equal(t, int64(2), st.Freeze200ms)
	assert.Equal(t, int64(1), st.Freeze500ms)
	assert.Equal(t, int64(1), st.Freeze600ms)
	assert.Equal(t, int64(1000), st.FreezeTotalMs)
}

func TestCollector_Bitrate(t *testing.T) {
	c := &Collector{}
	c.BitrateObserved(1000)
	c.BitrateObserved(2000)
	assert.Equal(t, int64(1500), c.Stats().VideoBitrate)

	c.OnNetworkChanged(2)
	assert.Equal(t, 2, c.Network())
}

func TestNewEvent(t *testing.T) {
	sid := uuid.New()
	ev := NewEvent(ItemOpen, sid, time.Now().Add(-time.Second), map[string]any{"url": "a.mp4"})
	assert.Equal(t, ItemOpen, ev.ID)
	assert.Equal(t, sid, ev.Sid)
	assert.GreaterOrEqual(t, ev.Elapse, int64(1000))
	assert.Equal(t, "open", ev.ID.String())
}

func TestLogSender(t *testing.T) {
	s := NewLogSender("1.0.0")
	require.NoError(t, s.InitializeReporter(&Collector{}))
	assert.Equal(t, "1.0.0", s.SDKVersion())
	assert.NotEmpty(t, s.InstallID())

	s.StartCounterStats()
	s.ReportEvent(NewEvent(ItemPlay, uuid.New(), time.Now(), nil))
	s.StopCounterStats()
	s.UninitializeReporter()
}
