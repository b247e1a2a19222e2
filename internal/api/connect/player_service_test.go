package connect

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"connectrpc.com/connect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/mpcore/internal/app/player"
	"github.com/osa030/mpcore/internal/domain/media"
	"github.com/osa030/mpcore/internal/infra/logger"
	"github.com/osa030/mpcore/internal/pipeline/sim"
)

const (
	testToken = "secret"
	testURL   = "https://media.example.com/vod/a.mp4"
	waitFor   = 2 * time.Second
	tick      = 5 * time.Millisecond
)

type fixture struct {
	engine *sim.Engine
	server *httptest.Server
	client *Client
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	engine := sim.New(sim.Config{
		OpenDelay:   5 * time.Millisecond,
		SeekDelay:   5 * time.Millisecond,
		SwitchDelay: 5 * time.Millisecond,
		Duration:    10 * time.Second,
		Streams:     sim.DefaultStreams,
	})
	rt, err := player.NewRuntime(player.RuntimeConfig{
		Log: logger.Config{Output: "stderr", Level: "error"},
	}, engine)
	require.NoError(t, err)

	svc := NewPlayerService(rt, true)
	server := httptest.NewServer(NewRouter(svc, testToken))
	t.Cleanup(func() {
		svc.Close()
		server.Close()
		_ = rt.Close(context.Background())
	})
	return &fixture{
		engine: engine,
		server: server,
		client: NewClient(server.Client(), server.URL, testToken),
	}
}

func (f *fixture) createPlayer(t *testing.T) string {
	t.Helper()
	resp, err := Call[Empty, CreatePlayerResponse](context.Background(), f.client, ProcedureCreatePlayer, &Empty{})
	require.NoError(t, err)
	require.NotEmpty(t, resp.PlayerID)
	return resp.PlayerID
}

func (f *fixture) command(t *testing.T, procedure string, req any) *Result {
	t.Helper()
	var (
		res *Result
		err error
	)
	ctx := context.Background()
	switch r := req.(type) {
	case *PlayerRequest:
		res, err = Call[PlayerRequest, Result](ctx, f.client, procedure, r)
	case *OpenRequest:
		res, err = Call[OpenRequest, Result](ctx, f.client, procedure, r)
	case *OpenDataRequest:
		res, err = Call[OpenDataRequest, Result](ctx, f.client, procedure, r)
	case *SeekRequest:
		res, err = Call[SeekRequest, Result](ctx, f.client, procedure, r)
	case *IntRequest:
		res, err = Call[IntRequest, Result](ctx, f.client, procedure, r)
	case *BoolRequest:
		res, err = Call[BoolRequest, Result](ctx, f.client, procedure, r)
	case *StringRequest:
		res, err = Call[StringRequest, Result](ctx, f.client, procedure, r)
	case *OptionRequest:
		res, err = Call[OptionRequest, Result](ctx, f.client, procedure, r)
	default:
		t.Fatalf("unsupported request %T", req)
	}
	require.NoError(t, err)
	return res
}

func (f *fixture) status(t *testing.T, id string) *StatusResponse {
	t.Helper()
	resp, err := Call[PlayerRequest, StatusResponse](context.Background(), f.client, ProcedureGetStatus, &PlayerRequest{PlayerID: id})
	require.NoError(t, err)
	return resp
}

func (f *fixture) waitState(t *testing.T, id, state string) {
	t.Helper()
	require.Eventually(t, func() bool { return f.status(t, id).State == state }, waitFor, tick, "state %s", state)
}

func TestRouter_Health(t *testing.T) {
	f := newFixture(t)

	resp, err := http.Get(f.server.URL + HealthPath)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(body))
}

func TestAdminAuth(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name  string
		token string
	}{
		{name: "missing token", token: ""},
		{name: "wrong token", token: "nope"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := NewClient(f.server.Client(), f.server.URL, tt.token)
			_, err := Call[Empty, CreatePlayerResponse](context.Background(), client, ProcedureCreatePlayer, &Empty{})
			require.Error(t, err)
			assert.Equal(t, connect.CodeUnauthenticated, connect.CodeOf(err))

			stream, err := client.Subscribe(context.Background(), "00000000-0000-0000-0000-000000000000")
			if err == nil {
				assert.False(t, stream.Receive())
				err = stream.Err()
				_ = stream.Close()
			}
			assert.Equal(t, connect.CodeUnauthenticated, connect.CodeOf(err))
		})
	}
}

func TestPlayerService_UnknownPlayer(t *testing.T) {
	f := newFixture(t)

	_, err := Call[PlayerRequest, Result](context.Background(), f.client, ProcedurePlay, &PlayerRequest{PlayerID: "not-a-uuid"})
	assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))

	_, err = Call[PlayerRequest, Result](context.Background(), f.client, ProcedurePlay,
		&PlayerRequest{PlayerID: "00000000-0000-0000-0000-000000000000"})
	assert.Equal(t, connect.CodeNotFound, connect.CodeOf(err))
}

func TestPlayerService_Lifecycle(t *testing.T) {
	f := newFixture(t)
	id := f.createPlayer(t)

	st := f.status(t, id)
	assert.Equal(t, "idle", st.State)
	assert.Equal(t, player.Version, st.Version)
	assert.Equal(t, 100, st.Volume)

	res := f.command(t, ProcedureOpen, &OpenRequest{PlayerID: id, URL: testURL})
	require.True(t, res.Success, res.Message)
	f.waitState(t, id, "open_completed")

	st = f.status(t, id)
	assert.Equal(t, int64(10000), st.DurationMs)
	assert.Len(t, st.Streams, len(sim.DefaultStreams))
	assert.Zero(t, st.CDNLineCount)

	require.True(t, f.command(t, ProcedurePlay, &PlayerRequest{PlayerID: id}).Success)
	f.waitState(t, id, "playing")

	require.True(t, f.command(t, ProcedureMute, &BoolRequest{PlayerID: id, Value: true}).Success)
	require.True(t, f.command(t, ProcedureSetVolume, &IntRequest{PlayerID: id, Value: 40}).Success)
	st = f.status(t, id)
	assert.True(t, st.Muted)
	assert.Equal(t, 40, st.Volume)

	require.True(t, f.command(t, ProcedurePause, &PlayerRequest{PlayerID: id}).Success)
	assert.Equal(t, "paused", f.status(t, id).State)

	list, err := Call[Empty, ListPlayersResponse](context.Background(), f.client, ProcedureListPlayers, &Empty{})
	require.NoError(t, err)
	require.Len(t, list.Players, 1)
	assert.Equal(t, PlayerSummary{PlayerID: id, State: "paused"}, list.Players[0])

	require.True(t, f.command(t, ProcedureStop, &PlayerRequest{PlayerID: id}).Success)
	assert.Equal(t, "stopped", f.status(t, id).State)

	require.True(t, f.command(t, ProcedureReleasePlayer, &PlayerRequest{PlayerID: id}).Success)
	_, err = Call[PlayerRequest, StatusResponse](context.Background(), f.client, ProcedureGetStatus, &PlayerRequest{PlayerID: id})
	assert.Equal(t, connect.CodeNotFound, connect.CodeOf(err))
}

func TestPlayerService_CommandFailures(t *testing.T) {
	f := newFixture(t)
	id := f.createPlayer(t)
	one := 1
	text := "x"

	tests := []struct {
		name      string
		procedure string
		req       any
		code      media.ErrorCode
	}{
		{name: "play without source", procedure: ProcedurePlay, req: &PlayerRequest{PlayerID: id}, code: media.CodeInvalidState},
		{name: "open empty url", procedure: ProcedureOpen, req: &OpenRequest{PlayerID: id}, code: media.CodeInvalidArguments},
		{name: "open empty data", procedure: ProcedureOpenData, req: &OpenDataRequest{PlayerID: id}, code: media.CodeInvalidArguments},
		{name: "unsupported speed", procedure: ProcedureSetPlaybackSpeed, req: &IntRequest{PlayerID: id, Value: 42}, code: media.CodeInvalidArguments},
		{name: "volume too loud", procedure: ProcedureSetVolume, req: &IntRequest{PlayerID: id, Value: 101}, code: media.CodeInvalidArguments},
		{name: "unload unknown", procedure: ProcedureUnload, req: &StringRequest{PlayerID: id, Value: testURL}, code: media.CodeURLNotFound},
		{name: "cdn line without cdn source", procedure: ProcedureSwitchCDNLine, req: &IntRequest{PlayerID: id, Value: 0}, code: media.CodeInvalidState},
		{name: "option without value", procedure: ProcedureSetOption, req: &OptionRequest{PlayerID: id, Key: "x"}, code: media.CodeInvalidArguments},
		{
			name:      "option with both values",
			procedure: ProcedureSetOption,
			req:       &OptionRequest{PlayerID: id, Key: "x", IntValue: &one, StringValue: &text},
			code:      media.CodeInvalidArguments,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := f.command(t, tt.procedure, tt.req)
			assert.False(t, res.Success)
			assert.Equal(t, int(tt.code), res.Code)
			assert.NotEmpty(t, res.Message)
		})
	}
}

func TestPlayerService_OpenData(t *testing.T) {
	f := newFixture(t)
	id := f.createPlayer(t)

	res := f.command(t, ProcedureOpenData, &OpenDataRequest{PlayerID: id, Data: []byte("media bytes")})
	require.True(t, res.Success, res.Message)
	f.waitState(t, id, "open_completed")
}

func TestPlayerService_Subscribe(t *testing.T) {
	f := newFixture(t)
	id := f.createPlayer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	stream, err := f.client.Subscribe(ctx, id)
	require.NoError(t, err)
	defer stream.Close()

	require.True(t, stream.Receive(), "initial state: %v", stream.Err())
	first := stream.Msg()
	assert.Equal(t, KindState, first.Kind)
	assert.Equal(t, "idle", first.State)
	assert.Equal(t, int64(1), first.Seq)

	// the observer is registered before the first message is sent
	require.True(t, f.command(t, ProcedureOpen, &OpenRequest{PlayerID: id, URL: testURL}).Success)

	var states []string
	for stream.Receive() {
		n := stream.Msg()
		if n.Kind == KindState {
			states = append(states, n.State)
		}
		if n.State == "open_completed" {
			break
		}
	}
	assert.Equal(t, []string{"opening", "open_completed"}, states)

	require.True(t, f.command(t, ProcedureReleasePlayer, &PlayerRequest{PlayerID: id}).Success)
	for stream.Receive() {
	}
	assert.NoError(t, stream.Err())
}
