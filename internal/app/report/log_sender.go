package report

import (
	"sync"

	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"
)

// LogSender writes report events to the log. It is the default sender.
type LogSender struct {
	Version string

	mu        sync.Mutex
	reporter  Reporter
	installID string
	counting  bool
}

// NewLogSender creates a sender with a fresh install id.
func NewLogSender(version string) *LogSender {
	return &LogSender{Version: version, installID: uuid.NewString()}
}

func (s *LogSender) InitializeReporter(r Reporter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reporter = r
	return nil
}

func (s *LogSender) UninitializeReporter() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reporter = nil
	s.counting = false
}

func (s *LogSender) SDKVersion() string { return s.Version }
func (s *LogSender) InstallID() string  { return s.installID }
func (s *LogSender) NetworkInfo() int   { return 0 }
func (s *LogSender) DeviceID() string   { return "" }
func (s *LogSender) Vid() int64         { return 0 }

func (s *LogSender) ReportEvent(ev Event) {
	zlog.Debug().
		Int("id", int(ev.ID)).
		Str("sid", ev.Sid.String()).
		Int64("elapse", ev.Elapse).
		Fields(ev.Fields).
		Msgf("report: %s", ev.ID)
}

func (s *LogSender) StartCounterStats() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counting = true
}

func (s *LogSender) StopCounterStats() {
	s.mu.Lock()
	r, counting := s.reporter, s.counting
	s.counting = false
	s.mu.Unlock()
	if counting && r != nil {
		st := r.Stats()
		zlog.Debug().Msgf("report stats: freeze_total_ms=%d video_bitrate=%d", st.FreezeTotalMs, st.VideoBitrate)
	}
}
