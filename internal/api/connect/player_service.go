package connect

import (
	"context"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/osa030/mpcore/internal/app/player"
	"github.com/osa030/mpcore/internal/app/report"
	"github.com/osa030/mpcore/internal/app/session"
	"github.com/osa030/mpcore/internal/domain/media"
)

// PlayerService exposes the players of a runtime over RPC.
type PlayerService struct {
	runtime *player.Runtime
	reports bool

	mu     sync.Mutex
	closed bool
	subs   map[uuid.UUID][]*subscription
}

// NewPlayerService creates a new PlayerService. With reports set, every created player
// logs its report events.
func NewPlayerService(runtime *player.Runtime, reports bool) *PlayerService {
	return &PlayerService{
		runtime: runtime,
		reports: reports,
		subs:    make(map[uuid.UUID][]*subscription),
	}
}

// NewPlayerServiceHandler builds the HTTP handler serving svc and returns the path
// prefix to mount it on.
func NewPlayerServiceHandler(svc *PlayerService, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(jsonCodec{})}, opts...)
	mux := http.NewServeMux()

	unary(mux, ProcedureCreatePlayer, svc.CreatePlayer, opts)
	unary(mux, ProcedureReleasePlayer, svc.ReleasePlayer, opts)
	unary(mux, ProcedureListPlayers, svc.ListPlayers, opts)
	unary(mux, ProcedureGetStatus, svc.GetStatus, opts)
	unary(mux, ProcedureOpen, svc.Open, opts)
	unary(mux, ProcedureOpenData, svc.OpenData, opts)
	unary(mux, ProcedurePlay, svc.Play, opts)
	unary(mux, ProcedurePause, svc.Pause, opts)
	unary(mux, ProcedureResume, svc.Resume, opts)
	unary(mux, ProcedureStop, svc.Stop, opts)
	unary(mux, ProcedureSeek, svc.Seek, opts)
	unary(mux, ProcedureSetLoopCount, svc.SetLoopCount, opts)
	unary(mux, ProcedureSetPlaybackSpeed, svc.SetPlaybackSpeed, opts)
	unary(mux, ProcedureSelectAudioTrack, svc.SelectAudioTrack, opts)
	unary(mux, ProcedureSetOption, svc.SetOption, opts)
	unary(mux, ProcedureTakeScreenshot, svc.TakeScreenshot, opts)
	unary(mux, ProcedureSelectSubtitle, svc.SelectSubtitle, opts)
	unary(mux, ProcedureSetExternalSubtitle, svc.SetExternalSubtitle, opts)
	unary(mux, ProcedureMute, svc.Mute, opts)
	unary(mux, ProcedureSetVolume, svc.SetVolume, opts)
	unary(mux, ProcedureSetRenderMode, svc.SetRenderMode, opts)
	unary(mux, ProcedureSwitchSrc, svc.SwitchSrc, opts)
	unary(mux, ProcedurePreload, svc.Preload, opts)
	unary(mux, ProcedureUnload, svc.Unload, opts)
	unary(mux, ProcedurePlayPreloaded, svc.PlayPreloaded, opts)
	unary(mux, ProcedureOpenCDN, svc.OpenCDN, opts)
	unary(mux, ProcedureSwitchCDNLine, svc.SwitchCDNLine, opts)
	unary(mux, ProcedureEnableCDNAutoSwitch, svc.EnableCDNAutoSwitch, opts)
	unary(mux, ProcedureRenewCDNToken, svc.RenewCDNToken, opts)
	unary(mux, ProcedureSwitchCDNSrc, svc.SwitchCDNSrc, opts)
	mux.Handle(ProcedureSubscribe, connect.NewServerStreamHandler(ProcedureSubscribe, svc.Subscribe, opts...))

	return "/" + ServiceName + "/", mux
}

func unary[Req, Res any](
	mux *http.ServeMux,
	procedure string,
	fn func(context.Context, *connect.Request[Req]) (*connect.Response[Res], error),
	opts []connect.HandlerOption,
) {
	mux.Handle(procedure, connect.NewUnaryHandler(procedure, fn, opts...))
}

// Close ends every open Subscribe stream and refuses new ones.
func (s *PlayerService) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for id, subs := range s.subs {
		for _, sub := range subs {
			sub.close()
		}
		delete(s.subs, id)
	}
}

// CreatePlayer creates a player.
func (s *PlayerService) CreatePlayer(
	ctx context.Context,
	req *connect.Request[Empty],
) (*connect.Response[CreatePlayerResponse], error) {
	p, err := s.runtime.NewPlayer()
	if err != nil {
		return nil, connectError(err)
	}
	if s.reports {
		if err := p.SetReportSender(report.NewLogSender(player.Version)); err != nil {
			zlog.Warn().Msgf("failed to attach report sender: player_id=%s err=%v", p.ID(), err)
		}
	}
	zlog.Info().Msgf("player created: player_id=%s", p.ID())
	return connect.NewResponse(&CreatePlayerResponse{PlayerID: p.ID().String()}), nil
}

// ReleasePlayer releases a player and ends its subscriptions.
func (s *PlayerService) ReleasePlayer(
	ctx context.Context,
	req *connect.Request[PlayerRequest],
) (*connect.Response[Result], error) {
	p, err := s.lookup(req.Msg.PlayerID)
	if err != nil {
		return nil, err
	}
	s.closeSubscriptions(p.ID())
	zlog.Info().Msgf("player released: player_id=%s", p.ID())
	return result(p.Release(ctx)), nil
}

// ListPlayers lists the live players.
func (s *PlayerService) ListPlayers(
	ctx context.Context,
	req *connect.Request[Empty],
) (*connect.Response[ListPlayersResponse], error) {
	players := lo.Map(s.runtime.Players(), func(p *player.Player, _ int) PlayerSummary {
		return PlayerSummary{PlayerID: p.ID().String(), State: p.State().String()}
	})
	slices.SortFunc(players, func(a, b PlayerSummary) int { return strings.Compare(a.PlayerID, b.PlayerID) })
	return connect.NewResponse(&ListPlayersResponse{Players: players}), nil
}

// GetStatus returns a snapshot of a player.
func (s *PlayerService) GetStatus(
	ctx context.Context,
	req *connect.Request[PlayerRequest],
) (*connect.Response[StatusResponse], error) {
	p, err := s.lookup(req.Msg.PlayerID)
	if err != nil {
		return nil, err
	}

	state := p.State()
	resp := &StatusResponse{
		PlayerID:  p.ID().String(),
		Version:   p.SDKVersion(),
		State:     state.String(),
		StateCode: int(state),
		Muted:     p.IsMuted(),
		Volume:    p.PlayoutVolume(),
	}
	if pos, err := p.PlayPosition(); err == nil {
		resp.PositionMs = pos.Milliseconds()
	}
	if d, err := p.Duration(); err == nil {
		resp.DurationMs = d.Milliseconds()
	}
	if n, err := p.StreamCount(); err == nil {
		for i := range n {
			if info, err := p.StreamInfo(i); err == nil {
				resp.Streams = append(resp.Streams, info)
			}
		}
	}
	if n, err := p.AgoraCDNLineCount(); err == nil {
		resp.CDNLineCount = n
		resp.CDNLineIndex, _ = p.CurrentAgoraCDNIndex()
	}
	return connect.NewResponse(resp), nil
}

// Open opens a URL.
func (s *PlayerService) Open(ctx context.Context, req *connect.Request[OpenRequest]) (*connect.Response[Result], error) {
	return s.command(req.Msg.PlayerID, func(p *player.Player) error {
		return p.Open(req.Msg.URL, time.Duration(req.Msg.StartPosMs)*time.Millisecond)
	})
}

// OpenData opens the bytes carried by the request.
func (s *PlayerService) OpenData(ctx context.Context, req *connect.Request[OpenDataRequest]) (*connect.Response[Result], error) {
	return s.command(req.Msg.PlayerID, func(p *player.Player) error {
		if len(req.Msg.Data) == 0 {
			return errors.Wrap(media.ErrInvalidArguments, "data is empty")
		}
		return p.OpenWithCustomSource(session.NewBytesProvider(req.Msg.Data), time.Duration(req.Msg.StartPosMs)*time.Millisecond)
	})
}

// Play starts or restarts playback.
func (s *PlayerService) Play(ctx context.Context, req *connect.Request[PlayerRequest]) (*connect.Response[Result], error) {
	return s.command(req.Msg.PlayerID, (*player.Player).Play)
}

// Pause pauses playback.
func (s *PlayerService) Pause(ctx context.Context, req *connect.Request[PlayerRequest]) (*connect.Response[Result], error) {
	return s.command(req.Msg.PlayerID, (*player.Player).Pause)
}

// Resume resumes paused playback.
func (s *PlayerService) Resume(ctx context.Context, req *connect.Request[PlayerRequest]) (*connect.Response[Result], error) {
	return s.command(req.Msg.PlayerID, (*player.Player).Resume)
}

// Stop stops playback and closes the source.
func (s *PlayerService) Stop(ctx context.Context, req *connect.Request[PlayerRequest]) (*connect.Response[Result], error) {
	return s.command(req.Msg.PlayerID, (*player.Player).Stop)
}

// Seek seeks the open source.
func (s *PlayerService) Seek(ctx context.Context, req *connect.Request[SeekRequest]) (*connect.Response[Result], error) {
	return s.command(req.Msg.PlayerID, func(p *player.Player) error {
		return p.Seek(time.Duration(req.Msg.PosMs) * time.Millisecond)
	})
}

// SetLoopCount sets the loop count.
func (s *PlayerService) SetLoopCount(ctx context.Context, req *connect.Request[IntRequest]) (*connect.Response[Result], error) {
	return s.command(req.Msg.PlayerID, func(p *player.Player) error { return p.SetLoopCount(req.Msg.Value) })
}

// SetPlaybackSpeed sets the playback speed in percent.
func (s *PlayerService) SetPlaybackSpeed(ctx context.Context, req *connect.Request[IntRequest]) (*connect.Response[Result], error) {
	return s.command(req.Msg.PlayerID, func(p *player.Player) error {
		return p.SetPlaybackSpeed(media.PlaybackSpeed(req.Msg.Value))
	})
}

// SelectAudioTrack selects an audio track.
func (s *PlayerService) SelectAudioTrack(ctx context.Context, req *connect.Request[IntRequest]) (*connect.Response[Result], error) {
	return s.command(req.Msg.PlayerID, func(p *player.Player) error { return p.SelectAudioTrack(req.Msg.Value) })
}

// SetOption sets a player option.
func (s *PlayerService) SetOption(ctx context.Context, req *connect.Request[OptionRequest]) (*connect.Response[Result], error) {
	return s.command(req.Msg.PlayerID, func(p *player.Player) error {
		switch {
		case req.Msg.IntValue != nil && req.Msg.StringValue == nil:
			return p.SetPlayerOptionInt(req.Msg.Key, *req.Msg.IntValue)
		case req.Msg.StringValue != nil && req.Msg.IntValue == nil:
			return p.SetPlayerOptionString(req.Msg.Key, *req.Msg.StringValue)
		default:
			return errors.Wrap(media.ErrInvalidArguments, "exactly one option value is required")
		}
	})
}

// TakeScreenshot snapshots the current video frame.
func (s *PlayerService) TakeScreenshot(ctx context.Context, req *connect.Request[StringRequest]) (*connect.Response[Result], error) {
	return s.command(req.Msg.PlayerID, func(p *player.Player) error { return p.TakeScreenshot(req.Msg.Value) })
}

// SelectSubtitle selects an embedded subtitle track.
func (s *PlayerService) SelectSubtitle(ctx context.Context, req *connect.Request[IntRequest]) (*connect.Response[Result], error) {
	return s.command(req.Msg.PlayerID, func(p *player.Player) error { return p.SelectInternalSubtitle(req.Msg.Value) })
}

// SetExternalSubtitle loads a subtitle file.
func (s *PlayerService) SetExternalSubtitle(ctx context.Context, req *connect.Request[StringRequest]) (*connect.Response[Result], error) {
	return s.command(req.Msg.PlayerID, func(p *player.Player) error { return p.SetExternalSubtitle(req.Msg.Value) })
}

// Mute mutes or unmutes playback.
func (s *PlayerService) Mute(ctx context.Context, req *connect.Request[BoolRequest]) (*connect.Response[Result], error) {
	return s.command(req.Msg.PlayerID, func(p *player.Player) error { return p.Mute(req.Msg.Value) })
}

// SetVolume sets the playout volume.
func (s *PlayerService) SetVolume(ctx context.Context, req *connect.Request[IntRequest]) (*connect.Response[Result], error) {
	return s.command(req.Msg.PlayerID, func(p *player.Player) error { return p.AdjustPlayoutVolume(req.Msg.Value) })
}

// SetRenderMode sets the video render mode.
func (s *PlayerService) SetRenderMode(ctx context.Context, req *connect.Request[IntRequest]) (*connect.Response[Result], error) {
	return s.command(req.Msg.PlayerID, func(p *player.Player) error {
		return p.SetRenderMode(media.RenderMode(req.Msg.Value))
	})
}

// SwitchSrc swaps the source under the running session.
func (s *PlayerService) SwitchSrc(ctx context.Context, req *connect.Request[SwitchRequest]) (*connect.Response[Result], error) {
	return s.command(req.Msg.PlayerID, func(p *player.Player) error { return p.SwitchSrc(req.Msg.URL, req.Msg.SyncPts) })
}

// Preload opens a source in the background.
func (s *PlayerService) Preload(ctx context.Context, req *connect.Request[OpenRequest]) (*connect.Response[Result], error) {
	return s.command(req.Msg.PlayerID, func(p *player.Player) error {
		return p.PreloadSrc(req.Msg.URL, time.Duration(req.Msg.StartPosMs)*time.Millisecond)
	})
}

// Unload discards a preloaded source.
func (s *PlayerService) Unload(ctx context.Context, req *connect.Request[StringRequest]) (*connect.Response[Result], error) {
	return s.command(req.Msg.PlayerID, func(p *player.Player) error { return p.UnloadSrc(req.Msg.Value) })
}

// PlayPreloaded promotes a preloaded source and plays it.
func (s *PlayerService) PlayPreloaded(ctx context.Context, req *connect.Request[StringRequest]) (*connect.Response[Result], error) {
	return s.command(req.Msg.PlayerID, func(p *player.Player) error { return p.PlayPreloadedSrc(req.Msg.Value) })
}

// OpenCDN opens a multi-line CDN source.
func (s *PlayerService) OpenCDN(ctx context.Context, req *connect.Request[OpenRequest]) (*connect.Response[Result], error) {
	return s.command(req.Msg.PlayerID, func(p *player.Player) error {
		return p.OpenWithAgoraCDNSrc(req.Msg.URL, time.Duration(req.Msg.StartPosMs)*time.Millisecond)
	})
}

// SwitchCDNLine moves playback to another line.
func (s *PlayerService) SwitchCDNLine(ctx context.Context, req *connect.Request[IntRequest]) (*connect.Response[Result], error) {
	return s.command(req.Msg.PlayerID, func(p *player.Player) error { return p.SwitchAgoraCDNLineByIndex(req.Msg.Value) })
}

// EnableCDNAutoSwitch turns line failover on or off.
func (s *PlayerService) EnableCDNAutoSwitch(ctx context.Context, req *connect.Request[BoolRequest]) (*connect.Response[Result], error) {
	return s.command(req.Msg.PlayerID, func(p *player.Player) error { return p.EnableAutoSwitchAgoraCDN(req.Msg.Value) })
}

// RenewCDNToken replaces the CDN access token.
func (s *PlayerService) RenewCDNToken(ctx context.Context, req *connect.Request[TokenRequest]) (*connect.Response[Result], error) {
	return s.command(req.Msg.PlayerID, func(p *player.Player) error { return p.RenewAgoraCDNSrcToken(req.Msg.Token, req.Msg.TS) })
}

// SwitchCDNSrc swaps the CDN source.
func (s *PlayerService) SwitchCDNSrc(ctx context.Context, req *connect.Request[SwitchRequest]) (*connect.Response[Result], error) {
	return s.command(req.Msg.PlayerID, func(p *player.Player) error { return p.SwitchAgoraCDNSrc(req.Msg.URL, req.Msg.SyncPts) })
}

// Subscribe streams the notifications of a player, starting with its current state.
func (s *PlayerService) Subscribe(
	ctx context.Context,
	req *connect.Request[PlayerRequest],
	stream *connect.ServerStream[Notification],
) error {
	p, err := s.lookup(req.Msg.PlayerID)
	if err != nil {
		return err
	}

	sub := newSubscription()
	sub.send(&Notification{Kind: KindState, State: p.State().String()})
	if err := s.track(p.ID(), sub); err != nil {
		return err
	}
	if err := p.RegisterPlayerObserver(sub); err != nil {
		s.untrack(p.ID(), sub)
		return connectError(err)
	}
	defer func() {
		p.UnregisterPlayerObserver(sub)
		s.untrack(p.ID(), sub)
		if n := sub.dropped.Load(); n > 0 {
			zlog.Warn().Msgf("subscriber fell behind: player_id=%s dropped=%d", p.ID(), n)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-sub.done:
			return nil
		case n := <-sub.ch:
			if err := stream.Send(n); err != nil {
				return err
			}
		}
	}
}

func (s *PlayerService) track(id uuid.UUID, sub *subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return connect.NewError(connect.CodeUnavailable, errors.New("service is shutting down"))
	}
	s.subs[id] = append(s.subs[id], sub)
	return nil
}

func (s *PlayerService) untrack(id uuid.UUID, sub *subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rest := lo.Without(s.subs[id], sub)
	if len(rest) == 0 {
		delete(s.subs, id)
		return
	}
	s.subs[id] = rest
}

func (s *PlayerService) closeSubscriptions(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sub := range s.subs[id] {
		sub.close()
	}
	delete(s.subs, id)
}

func (s *PlayerService) lookup(id string) (*player.Player, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.Wrapf(err, "invalid player id %q", id))
	}
	p, ok := s.runtime.Player(uid)
	if !ok {
		return nil, connect.NewError(connect.CodeNotFound, errors.Newf("player %s not found", id))
	}
	return p, nil
}

func (s *PlayerService) command(id string, fn func(p *player.Player) error) (*connect.Response[Result], error) {
	p, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	err = fn(p)
	if err != nil {
		zlog.Debug().Msgf("command rejected: player_id=%s err=%v", id, err)
	}
	return result(err), nil
}

func result(err error) *connect.Response[Result] {
	if err != nil {
		return connect.NewResponse(&Result{
			Success: false,
			Code:    int(media.CodeOf(err)),
			Message: err.Error(),
		})
	}
	return connect.NewResponse(&Result{Success: true})
}

// connectError maps errors that are not command outcomes to RPC status codes.
func connectError(err error) error {
	switch media.CodeOf(err) {
	case media.CodeInvalidArguments:
		return connect.NewError(connect.CodeInvalidArgument, err)
	case media.CodeNotInitialized:
		return connect.NewError(connect.CodeUnavailable, err)
	default:
		return connect.NewError(connect.CodeInternal, err)
	}
}
