// Package logger provides structured logging using zerolog.
package logger

import (
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"github.com/spf13/afero"
)

// DefaultFileName is the log file created inside Config.Dir.
const DefaultFileName = "mpcore.log"

// Config represents logger configuration.
type Config struct {
	Output    string // "stdout", "stderr", or "file"
	Level     string // "debug", "info", "warn", "error"
	File      string // log file path (used when Output is not stdout/stderr)
	Dir       string // directory for DefaultFileName when File is empty
	MaxSizeKB int    // rotate the file to File+".1" past this size, zero for no rotation
	Fs        afero.Fs
}

// Init initializes the global zerolog logger with the given configuration. The returned
// restore closes the log file, if any, and reinstates the logger that was active before.
func Init(cfg Config) (restore func() error, err error) {
	level := parseLevel(cfg.Level)
	console := isConsole(cfg.Output)

	var (
		writer io.Writer
		file   *FileWriter
	)
	switch strings.ToLower(cfg.Output) {
	case "stdout", "":
		writer = os.Stdout
	case "stderr":
		writer = os.Stderr
	default:
		// File output
		file, err = NewFileWriter(cfg)
		if err != nil {
			return nil, err
		}
		writer = file
	}

	prevLogger := zlog.Logger
	prevContext := zerolog.DefaultContextLogger
	prevLevel := zerolog.GlobalLevel()

	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.TimeOnly
	zerolog.TimestampFieldName = "time"
	zerolog.LevelFieldName = "level"
	zerolog.MessageFieldName = "message"

	zerolog.CallerMarshalFunc = func(pc uintptr, file string, line int) string {
		parts := strings.Split(file, string(filepath.Separator))
		if len(parts) > 1 {
			return filepath.Join(parts[len(parts)-2:]...) + ":" + strconv.Itoa(line)
		}
		return filepath.Base(file) + ":" + strconv.Itoa(line)
	}

	// Use ConsoleWriter for stdout/stderr (color output), JSON for files
	var logger zerolog.Logger
	if console {
		if level == zerolog.DebugLevel {
			// Add Caller only for DEBUG level
			logger = zerolog.New(zerolog.ConsoleWriter{
				Out:        writer,
				TimeFormat: time.TimeOnly,
				PartsOrder: []string{"time", "level", "message", "caller"},
				FormatCaller: func(i interface{}) string {
					return "(" + i.(string) + ")"
				},
			}).With().Timestamp().Caller().Logger()
		} else {
			logger = zerolog.New(zerolog.ConsoleWriter{
				Out:        writer,
				TimeFormat: time.TimeOnly,
			}).With().Timestamp().Logger()
		}
	} else {
		baseLogger := zerolog.New(writer).With().Timestamp()
		if level == zerolog.DebugLevel {
			logger = baseLogger.Caller().Logger()
		} else {
			logger = baseLogger.Logger()
		}
	}
	zerolog.DefaultContextLogger = &logger
	zlog.Logger = logger

	var once sync.Once
	restore = func() error {
		var closeErr error
		once.Do(func() {
			zlog.Logger = prevLogger
			zerolog.DefaultContextLogger = prevContext
			zerolog.SetGlobalLevel(prevLevel)
			if file != nil {
				closeErr = file.Close()
			}
		})
		return closeErr
	}
	return restore, nil
}

func isConsole(output string) bool {
	switch strings.ToLower(output) {
	case "stdout", "stderr", "":
		return true
	}
	return false
}

// FileWriter appends to a log file and rotates it once it grows past a size limit.
// Only one previous generation is kept. It is safe for concurrent use.
type FileWriter struct {
	fs      afero.Fs
	path    string
	maxSize int64

	mu     sync.Mutex
	size   int64
	file   afero.File
	closed bool
}

// NewFileWriter opens the log file described by cfg.
func NewFileWriter(cfg Config) (*FileWriter, error) {
	fs := cfg.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}
	path := cfg.File
	if path == "" {
		if cfg.Dir == "" {
			return nil, errors.New("log file or directory is required for file output")
		}
		path = filepath.Join(cfg.Dir, DefaultFileName)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := fs.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrapf(err, "failed to create log directory: %s", dir)
		}
	}

	w := &FileWriter{fs: fs, path: path, maxSize: int64(cfg.MaxSizeKB) * 1024}
	if err := w.open(); err != nil {
		return nil, err
	}
	return w, nil
}

// Path returns the path of the active log file.
func (w *FileWriter) Path() string { return w.path }

func (w *FileWriter) open() error {
	f, err := w.fs.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return errors.Wrapf(err, "failed to open log file: %s", w.path)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return errors.Wrapf(err, "failed to stat log file: %s", w.path)
	}
	w.file = f
	w.size = info.Size()
	return nil
}

// Write implements io.Writer.
func (w *FileWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return 0, os.ErrClosed
	}
	if w.maxSize > 0 && w.size > 0 && w.size+int64(len(p)) > w.maxSize {
		if err := w.rotate(); err != nil {
			return 0, err
		}
	}
	n, err := w.file.Write(p)
	w.size += int64(n)
	return n, err
}

func (w *FileWriter) rotate() error {
	if err := w.file.Close(); err != nil {
		return errors.Wrap(err, "failed to close log file")
	}
	backup := w.path + ".1"
	_ = w.fs.Remove(backup)
	if err := w.fs.Rename(w.path, backup); err != nil {
		return errors.Wrapf(err, "failed to rotate log file: %s", w.path)
	}
	return w.open()
}

// Close closes the log file. Later writes fail with os.ErrClosed.
func (w *FileWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	return w.file.Close()
}

// parseLevel parses the log level string.
func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "info", "":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
