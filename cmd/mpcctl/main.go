// Package main provides the player control CLI entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"

	apiconnect "github.com/osa030/mpcore/internal/api/connect"
	"github.com/osa030/mpcore/internal/infra/config"
)

var (
	app    = kingpin.New("mpcctl", "media player control client")
	server = app.Flag("server", "Daemon address").Default("http://localhost:8080").String()
	token  = app.Flag("token", "Admin token (or set "+config.EnvAdminToken+" env)").Envar(config.EnvAdminToken).String()

	createCmd = app.Command("create", "Create a player")

	releaseCmd    = app.Command("release", "Release a player")
	releasePlayer = releaseCmd.Arg("player-id", "Player ID (UUID)").Required().String()

	listCmd = app.Command("list", "List players")

	statusCmd    = app.Command("status", "Show player status")
	statusPlayer = statusCmd.Arg("player-id", "Player ID (UUID)").Required().String()

	openCmd    = app.Command("open", "Open a URL")
	openPlayer = openCmd.Arg("player-id", "Player ID (UUID)").Required().String()
	openURL    = openCmd.Arg("url", "Source URL").Required().String()
	openStart  = openCmd.Flag("start", "Start position").Default("0s").Duration()
	openCDN    = openCmd.Flag("cdn", "Open as a multi-line CDN source").Bool()

	openFileCmd    = app.Command("open-file", "Open a local file through a custom source")
	openFilePlayer = openFileCmd.Arg("player-id", "Player ID (UUID)").Required().String()
	openFilePath   = openFileCmd.Arg("path", "File path").Required().ExistingFile()

	playCmd    = app.Command("play", "Start playback")
	playPlayer = playCmd.Arg("player-id", "Player ID (UUID)").Required().String()

	pauseCmd    = app.Command("pause", "Pause playback")
	pausePlayer = pauseCmd.Arg("player-id", "Player ID (UUID)").Required().String()

	resumeCmd    = app.Command("resume", "Resume playback")
	resumePlayer = resumeCmd.Arg("player-id", "Player ID (UUID)").Required().String()

	stopCmd    = app.Command("stop", "Stop playback")
	stopPlayer = stopCmd.Arg("player-id", "Player ID (UUID)").Required().String()

	seekCmd    = app.Command("seek", "Seek the open source")
	seekPlayer = seekCmd.Arg("player-id", "Player ID (UUID)").Required().String()
	seekPos    = seekCmd.Arg("pos", "Target position").Required().Duration()

	loopCmd    = app.Command("loop", "Set the loop count (-1 loops forever)")
	loopPlayer = loopCmd.Arg("player-id", "Player ID (UUID)").Required().String()
	loopCount  = loopCmd.Arg("count", "Loop count").Required().Int()

	speedCmd    = app.Command("speed", "Set the playback speed in percent")
	speedPlayer = speedCmd.Arg("player-id", "Player ID (UUID)").Required().String()
	speedValue  = speedCmd.Arg("percent", "Speed (50, 75, 100, 125, 150, 200)").Required().Int()

	volumeCmd    = app.Command("volume", "Set the playout volume")
	volumePlayer = volumeCmd.Arg("player-id", "Player ID (UUID)").Required().String()
	volumeValue  = volumeCmd.Arg("volume", "Volume (0-100)").Required().Int()

	muteCmd    = app.Command("mute", "Mute or unmute playback")
	mutePlayer = muteCmd.Arg("player-id", "Player ID (UUID)").Required().String()
	muteOff    = muteCmd.Flag("off", "Unmute").Bool()

	audioCmd    = app.Command("audio-track", "Select an audio track")
	audioPlayer = audioCmd.Arg("player-id", "Player ID (UUID)").Required().String()
	audioIndex  = audioCmd.Arg("index", "Stream index").Required().Int()

	subtitleCmd    = app.Command("subtitle", "Select an embedded subtitle or load an external one")
	subtitlePlayer = subtitleCmd.Arg("player-id", "Player ID (UUID)").Required().String()
	subtitleIndex  = subtitleCmd.Flag("index", "Embedded subtitle stream index").Default("-1").Int()
	subtitleURL    = subtitleCmd.Flag("url", "External subtitle URL").String()

	optionCmd    = app.Command("option", "Set a player option")
	optionPlayer = optionCmd.Arg("player-id", "Player ID (UUID)").Required().String()
	optionKey    = optionCmd.Arg("key", "Option key").Required().String()
	optionInt    = optionCmd.Flag("int", "Integer value").Int()
	optionString = optionCmd.Flag("string", "String value").String()

	renderCmd    = app.Command("render-mode", "Set the render mode (1 hidden, 2 fit)")
	renderPlayer = renderCmd.Arg("player-id", "Player ID (UUID)").Required().String()
	renderMode   = renderCmd.Arg("mode", "Render mode").Required().Int()

	shotCmd    = app.Command("screenshot", "Snapshot the current video frame")
	shotPlayer = shotCmd.Arg("player-id", "Player ID (UUID)").Required().String()
	shotFile   = shotCmd.Arg("filename", "Output file name").Required().String()

	switchCmd    = app.Command("switch", "Switch to another source")
	switchPlayer = switchCmd.Arg("player-id", "Player ID (UUID)").Required().String()
	switchURL    = switchCmd.Arg("url", "Source URL").Required().String()
	switchSync   = switchCmd.Flag("sync", "Keep the playback position").Bool()
	switchCDN    = switchCmd.Flag("cdn", "Switch the CDN source").Bool()

	preloadCmd    = app.Command("preload", "Preload a source")
	preloadPlayer = preloadCmd.Arg("player-id", "Player ID (UUID)").Required().String()
	preloadURL    = preloadCmd.Arg("url", "Source URL").Required().String()
	preloadStart  = preloadCmd.Flag("start", "Start position").Default("0s").Duration()

	unloadCmd    = app.Command("unload", "Discard a preloaded source")
	unloadPlayer = unloadCmd.Arg("player-id", "Player ID (UUID)").Required().String()
	unloadURL    = unloadCmd.Arg("url", "Source URL").Required().String()

	promoteCmd    = app.Command("play-preloaded", "Play a preloaded source")
	promotePlayer = promoteCmd.Arg("player-id", "Player ID (UUID)").Required().String()
	promoteURL    = promoteCmd.Arg("url", "Source URL").Required().String()

	lineCmd    = app.Command("cdn-line", "Switch to a CDN line")
	linePlayer = lineCmd.Arg("player-id", "Player ID (UUID)").Required().String()
	lineIndex  = lineCmd.Arg("index", "Line index").Required().Int()

	autoCmd    = app.Command("cdn-auto", "Turn CDN line failover on or off")
	autoPlayer = autoCmd.Arg("player-id", "Player ID (UUID)").Required().String()
	autoOff    = autoCmd.Flag("off", "Turn failover off").Bool()

	tokenCmd    = app.Command("cdn-token", "Renew the CDN access token")
	tokenPlayer = tokenCmd.Arg("player-id", "Player ID (UUID)").Required().String()
	tokenValue  = tokenCmd.Arg("token", "Access token").Required().String()
	tokenTTL    = tokenCmd.Flag("ttl", "Token lifetime, zero for none").Default("0s").Duration()

	watchCmd    = app.Command("watch", "Print player notifications until interrupted")
	watchPlayer = watchCmd.Arg("player-id", "Player ID (UUID)").Required().String()
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	if *token == "" {
		fmt.Printf("Error: admin token is required (use --token or %s env)\n", config.EnvAdminToken)
		os.Exit(1)
	}

	client := apiconnect.NewClient(nil, *server, *token)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := dispatch(ctx, client, command); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func dispatch(ctx context.Context, c *apiconnect.Client, command string) error {
	switch command {
	case createCmd.FullCommand():
		resp, err := apiconnect.Call[apiconnect.Empty, apiconnect.CreatePlayerResponse](ctx, c, apiconnect.ProcedureCreatePlayer, &apiconnect.Empty{})
		if err != nil {
			return err
		}
		fmt.Println(resp.PlayerID)
		return nil
	case listCmd.FullCommand():
		return list(ctx, c)
	case statusCmd.FullCommand():
		return status(ctx, c, *statusPlayer)
	case watchCmd.FullCommand():
		return watch(ctx, c, *watchPlayer)
	case releaseCmd.FullCommand():
		return run(ctx, c, apiconnect.ProcedureReleasePlayer, &apiconnect.PlayerRequest{PlayerID: *releasePlayer}, "Player released")
	case openCmd.FullCommand():
		procedure := apiconnect.ProcedureOpen
		if *openCDN {
			procedure = apiconnect.ProcedureOpenCDN
		}
		return run(ctx, c, procedure, &apiconnect.OpenRequest{PlayerID: *openPlayer, URL: *openURL, StartPosMs: openStart.Milliseconds()}, "Opening")
	case openFileCmd.FullCommand():
		data, err := os.ReadFile(*openFilePath)
		if err != nil {
			return err
		}
		return run(ctx, c, apiconnect.ProcedureOpenData, &apiconnect.OpenDataRequest{PlayerID: *openFilePlayer, Data: data}, "Opening")
	case playCmd.FullCommand():
		return run(ctx, c, apiconnect.ProcedurePlay, &apiconnect.PlayerRequest{PlayerID: *playPlayer}, "Playing")
	case pauseCmd.FullCommand():
		return run(ctx, c, apiconnect.ProcedurePause, &apiconnect.PlayerRequest{PlayerID: *pausePlayer}, "Paused")
	case resumeCmd.FullCommand():
		return run(ctx, c, apiconnect.ProcedureResume, &apiconnect.PlayerRequest{PlayerID: *resumePlayer}, "Resumed")
	case stopCmd.FullCommand():
		return run(ctx, c, apiconnect.ProcedureStop, &apiconnect.PlayerRequest{PlayerID: *stopPlayer}, "Stopped")
	case seekCmd.FullCommand():
		return run(ctx, c, apiconnect.ProcedureSeek, &apiconnect.SeekRequest{PlayerID: *seekPlayer, PosMs: seekPos.Milliseconds()}, "Seeking")
	case loopCmd.FullCommand():
		return run(ctx, c, apiconnect.ProcedureSetLoopCount, &apiconnect.IntRequest{PlayerID: *loopPlayer, Value: *loopCount}, "Loop count set")
	case speedCmd.FullCommand():
		return run(ctx, c, apiconnect.ProcedureSetPlaybackSpeed, &apiconnect.IntRequest{PlayerID: *speedPlayer, Value: *speedValue}, "Speed set")
	case volumeCmd.FullCommand():
		return run(ctx, c, apiconnect.ProcedureSetVolume, &apiconnect.IntRequest{PlayerID: *volumePlayer, Value: *volumeValue}, "Volume set")
	case muteCmd.FullCommand():
		return run(ctx, c, apiconnect.ProcedureMute, &apiconnect.BoolRequest{PlayerID: *mutePlayer, Value: !*muteOff}, "Mute set")
	case audioCmd.FullCommand():
		return run(ctx, c, apiconnect.ProcedureSelectAudioTrack, &apiconnect.IntRequest{PlayerID: *audioPlayer, Value: *audioIndex}, "Audio track selected")
	case subtitleCmd.FullCommand():
		if *subtitleURL != "" {
			return run(ctx, c, apiconnect.ProcedureSetExternalSubtitle, &apiconnect.StringRequest{PlayerID: *subtitlePlayer, Value: *subtitleURL}, "Subtitle loaded")
		}
		return run(ctx, c, apiconnect.ProcedureSelectSubtitle, &apiconnect.IntRequest{PlayerID: *subtitlePlayer, Value: *subtitleIndex}, "Subtitle selected")
	case optionCmd.FullCommand():
		req := &apiconnect.OptionRequest{PlayerID: *optionPlayer, Key: *optionKey}
		if *optionString != "" {
			req.StringValue = optionString
		} else {
			req.IntValue = optionInt
		}
		return run(ctx, c, apiconnect.ProcedureSetOption, req, "Option set")
	case renderCmd.FullCommand():
		return run(ctx, c, apiconnect.ProcedureSetRenderMode, &apiconnect.IntRequest{PlayerID: *renderPlayer, Value: *renderMode}, "Render mode set")
	case shotCmd.FullCommand():
		return run(ctx, c, apiconnect.ProcedureTakeScreenshot, &apiconnect.StringRequest{PlayerID: *shotPlayer, Value: *shotFile}, "Snapshot requested")
	case switchCmd.FullCommand():
		procedure := apiconnect.ProcedureSwitchSrc
		if *switchCDN {
			procedure = apiconnect.ProcedureSwitchCDNSrc
		}
		return run(ctx, c, procedure, &apiconnect.SwitchRequest{PlayerID: *switchPlayer, URL: *switchURL, SyncPts: *switchSync}, "Switching")
	case preloadCmd.FullCommand():
		return run(ctx, c, apiconnect.ProcedurePreload, &apiconnect.OpenRequest{PlayerID: *preloadPlayer, URL: *preloadURL, StartPosMs: preloadStart.Milliseconds()}, "Preloading")
	case unloadCmd.FullCommand():
		return run(ctx, c, apiconnect.ProcedureUnload, &apiconnect.StringRequest{PlayerID: *unloadPlayer, Value: *unloadURL}, "Unloaded")
	case promoteCmd.FullCommand():
		return run(ctx, c, apiconnect.ProcedurePlayPreloaded, &apiconnect.StringRequest{PlayerID: *promotePlayer, Value: *promoteURL}, "Playing")
	case lineCmd.FullCommand():
		return run(ctx, c, apiconnect.ProcedureSwitchCDNLine, &apiconnect.IntRequest{PlayerID: *linePlayer, Value: *lineIndex}, "Switching line")
	case autoCmd.FullCommand():
		return run(ctx, c, apiconnect.ProcedureEnableCDNAutoSwitch, &apiconnect.BoolRequest{PlayerID: *autoPlayer, Value: !*autoOff}, "Failover set")
	case tokenCmd.FullCommand():
		var ts int64
		if *tokenTTL > 0 {
			ts = time.Now().Add(*tokenTTL).Unix()
		}
		return run(ctx, c, apiconnect.ProcedureRenewCDNToken, &apiconnect.TokenRequest{PlayerID: *tokenPlayer, Token: *tokenValue, TS: ts}, "Token renewed")
	}
	return fmt.Errorf("unknown command %q", command)
}

// run calls a command procedure and prints its outcome.
func run[Req any](ctx context.Context, c *apiconnect.Client, procedure string, req *Req, done string) error {
	res, err := apiconnect.Call[Req, apiconnect.Result](ctx, c, procedure, req)
	if err != nil {
		return err
	}
	if !res.Success {
		return fmt.Errorf("command failed: code=%d message=%s", res.Code, res.Message)
	}
	fmt.Println(done)
	return nil
}

func list(ctx context.Context, c *apiconnect.Client) error {
	resp, err := apiconnect.Call[apiconnect.Empty, apiconnect.ListPlayersResponse](ctx, c, apiconnect.ProcedureListPlayers, &apiconnect.Empty{})
	if err != nil {
		return err
	}
	if len(resp.Players) == 0 {
		fmt.Println("No players")
		return nil
	}
	fmt.Println("\n=== PLAYERS ===")
	for _, p := range resp.Players {
		fmt.Printf("  %s  %s\n", p.PlayerID, p.State)
	}
	fmt.Println()
	return nil
}

func status(ctx context.Context, c *apiconnect.Client, id string) error {
	s, err := apiconnect.Call[apiconnect.PlayerRequest, apiconnect.StatusResponse](ctx, c, apiconnect.ProcedureGetStatus, &apiconnect.PlayerRequest{PlayerID: id})
	if err != nil {
		return err
	}

	fmt.Println("\n=== PLAYER STATUS ===")
	fmt.Printf("Player ID: %s\n", s.PlayerID)
	fmt.Printf("Version: %s\n", s.Version)
	fmt.Printf("State: %s (%d)\n", s.State, s.StateCode)
	fmt.Printf("Position: %s / %s\n",
		time.Duration(s.PositionMs)*time.Millisecond, time.Duration(s.DurationMs)*time.Millisecond)
	fmt.Printf("Volume: %d (muted: %v)\n", s.Volume, s.Muted)
	if s.CDNLineCount > 0 {
		fmt.Printf("CDN Line: %d of %d\n", s.CDNLineIndex+1, s.CDNLineCount)
	}
	if len(s.Streams) > 0 {
		fmt.Println("\nStreams:")
		for _, st := range s.Streams {
			fmt.Printf("  #%d %s codec=%s lang=%s\n", st.Index, st.Type, st.Codec, st.Language)
		}
	}
	fmt.Println()
	return nil
}

func watch(ctx context.Context, c *apiconnect.Client, id string) error {
	stream, err := c.Subscribe(ctx, id)
	if err != nil {
		return err
	}
	defer stream.Close()

	for stream.Receive() {
		n := stream.Msg()
		switch n.Kind {
		case apiconnect.KindState:
			fmt.Printf("[%d] state %s code=%d\n", n.Seq, n.State, n.Code)
		case apiconnect.KindPosition:
			fmt.Printf("[%d] position %s\n", n.Seq, time.Duration(n.PositionMs)*time.Millisecond)
		case apiconnect.KindEvent:
			fmt.Printf("[%d] event %s elapsed=%dms %s\n", n.Seq, n.Event, n.ElapsedMs, n.Message)
		case apiconnect.KindPreload:
			fmt.Printf("[%d] preload %s %s\n", n.Seq, n.Preload, n.Src)
		case apiconnect.KindBuffer:
			fmt.Printf("[%d] buffer %dms\n", n.Seq, n.CachedMs)
		case apiconnect.KindBitrate:
			fmt.Printf("[%d] bitrate %d -> %d\n", n.Seq, n.Bitrate.FromBitrate, n.Bitrate.ToBitrate)
		default:
			fmt.Printf("[%d] %s\n", n.Seq, n.Kind)
		}
	}
	if ctx.Err() != nil {
		return nil
	}
	return stream.Err()
}
