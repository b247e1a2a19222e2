package logger

import (
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"INFO", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"bogus", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, parseLevel(tt.in))
		})
	}
}

func TestFileWriter_UsesDirectory(t *testing.T) {
	fs := afero.NewMemMapFs()
	w, err := NewFileWriter(Config{Dir: "/var/log/mpc", Fs: fs})
	require.NoError(t, err)
	defer w.Close()

	assert.Equal(t, "/var/log/mpc/"+DefaultFileName, w.Path())
	_, err = w.Write([]byte("hello\n"))
	require.NoError(t, err)

	data, err := afero.ReadFile(fs, w.Path())
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(data))
}

func TestFileWriter_RequiresPath(t *testing.T) {
	_, err := NewFileWriter(Config{Fs: afero.NewMemMapFs()})
	assert.Error(t, err)
}

func TestFileWriter_Rotates(t *testing.T) {
	fs := afero.NewMemMapFs()
	w, err := NewFileWriter(Config{File: "/logs/app.log", MaxSizeKB: 1, Fs: fs})
	require.NoError(t, err)
	defer w.Close()

	line := strings.Repeat("a", 600) + "\n"
	_, err = w.Write([]byte(line))
	require.NoError(t, err)
	_, err = w.Write([]byte(line))
	require.NoError(t, err)

	backup, err := afero.ReadFile(fs, "/logs/app.log.1")
	require.NoError(t, err)
	assert.Equal(t, line, string(backup))

	current, err := afero.ReadFile(fs, "/logs/app.log")
	require.NoError(t, err)
	assert.Equal(t, line, string(current))
}

func TestFileWriter_AppendsToExisting(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/logs/app.log", []byte("old\n"), 0o644))

	w, err := NewFileWriter(Config{File: "/logs/app.log", Fs: fs})
	require.NoError(t, err)
	_, err = w.Write([]byte("new\n"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	data, err := afero.ReadFile(fs, "/logs/app.log")
	require.NoError(t, err)
	assert.Equal(t, "old\nnew\n", string(data))
}

func TestFileWriter_ConcurrentWrites(t *testing.T) {
	fs := afero.NewMemMapFs()
	w, err := NewFileWriter(Config{File: "/logs/app.log", MaxSizeKB: 1, Fs: fs})
	require.NoError(t, err)
	log := zerolog.New(w)

	var wg sync.WaitGroup
	for g := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 200 {
				log.Info().Int("goroutine", g).Int("line", i).Msg("concurrent write")
			}
		}()
	}
	wg.Wait()
	require.NoError(t, w.Close())

	for _, path := range []string{"/logs/app.log", "/logs/app.log.1"} {
		data, err := afero.ReadFile(fs, path)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(data), 1024, path)
		for _, line := range strings.Split(strings.TrimSuffix(string(data), "\n"), "\n") {
			assert.True(t, strings.HasPrefix(line, "{") && strings.HasSuffix(line, "}"), "torn line in %s: %q", path, line)
		}
	}

	_, err = w.Write([]byte("late\n"))
	assert.ErrorIs(t, err, os.ErrClosed)
	assert.NoError(t, w.Close())
}

func TestInit_RestoreReinstatesPreviousLogger(t *testing.T) {
	prev := zlog.Logger
	prevLevel := zerolog.GlobalLevel()
	t.Cleanup(func() {
		zlog.Logger = prev
		zerolog.SetGlobalLevel(prevLevel)
	})
	var before strings.Builder
	zlog.Logger = zerolog.New(&before)
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	fs := afero.NewMemMapFs()
	restore, err := Init(Config{Output: "file", File: "/logs/app.log", Level: "error", Fs: fs})
	require.NoError(t, err)
	assert.Equal(t, zerolog.ErrorLevel, zerolog.GlobalLevel())
	zlog.Error().Msg("into file")

	require.NoError(t, restore())
	require.NoError(t, restore())
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
	zlog.Info().Msg("back to previous")

	data, err := afero.ReadFile(fs, "/logs/app.log")
	require.NoError(t, err)
	assert.Contains(t, string(data), "into file")
	assert.NotContains(t, string(data), "back to previous")
	assert.Contains(t, before.String(), "back to previous")
}
