// Copyright (c) 2020 The JaxNetwork developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package corelog

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	Disabled = zerolog.Nop()

	DefaultLevel   = zerolog.InfoLevel
	DefaultLogFile = "rwallet.log"
)

// Config for logging
type Config struct {
	// Level is one of trace, debug, info, warn, error. Empty means info.
	Level string `yaml:"level"`
	// Disable console logging
	DisableConsoleLog bool `yaml:"disable_console_log"`
	// LogsAsJson makes the log framework log JSON
	LogsAsJson bool `yaml:"logs_as_json"`
	// FileLoggingEnabled makes the framework log to a file
	// the fields below can be skipped if this value is false!
	FileLoggingEnabled bool `yaml:"file_logging_enabled"`
	// Directory to log to to when filelogging is enabled
	Directory string `yaml:"directory"`
	// Filename is the name of the logfile which will be placed inside the directory
	Filename string `yaml:"filename"`
	// MaxSize the max size in MB of the logfile before it's rolled
	MaxSize int `yaml:"max_size"`
	// MaxBackups the max number of rolled files to keep
	MaxBackups int `yaml:"max_backups"`
	// MaxAge the max age in days to keep a logfile
	MaxAge int `yaml:"max_age"`
}

func (Config) Default() Config {
	return Config{
		Level:      DefaultLevel.String(),
		Directory:  "logs",
		Filename:   DefaultLogFile,
		MaxSize:    150,
		MaxBackups: 3,
		MaxAge:     28,
	}
}

// ParseLevel returns DefaultLevel for an empty string.
func (cfg Config) ParseLevel() (zerolog.Level, error) {
	if strings.TrimSpace(cfg.Level) == "" {
		return DefaultLevel, nil
	}
	return zerolog.ParseLevel(strings.ToLower(cfg.Level))
}

// New builds the root logger of the process. The unit is printed in the level
// column of the console output and added as a field to JSON output.
func New(unit string, logLevel zerolog.Level, config Config) zerolog.Logger {
	return NewWithWriter(unit, logLevel, config, os.Stderr)
}

// NewWithWriter is New with an explicit console destination.
func NewWithWriter(unit string, logLevel zerolog.Level, config Config, console io.Writer) zerolog.Logger {
	var writers []io.Writer
	if !config.DisableConsoleLog && !config.LogsAsJson {
		out := zerolog.ConsoleWriter{Out: console, NoColor: false}
		out.TimeFormat = time.RFC3339
		out.FormatLevel = func(i interface{}) string {
			return strings.ToUpper(fmt.Sprintf("| %-6s| %s |", i, unit))
		}
		out.FormatMessage = func(i interface{}) string {
			return fmt.Sprintf("%-6s  ", i)
		}
		writers = append(writers, out)
	}
	if !config.DisableConsoleLog && config.LogsAsJson {
		writers = append(writers, console)
	}
	if config.FileLoggingEnabled {
		if file := newRollingFile(config); file != nil {
			writers = append(writers, file)
		}
	}
	if len(writers) == 0 {
		return Disabled
	}

	logger := zerolog.New(io.MultiWriter(writers...)).
		Level(logLevel).
		With().
		Str("app", "rwallet").
		Str("unit", unit).
		Timestamp().
		Logger()

	logger.Trace().
		Bool("fileLogging", config.FileLoggingEnabled).
		Bool("jsonLogOutput", config.LogsAsJson).
		Str("logDirectory", config.Directory).
		Str("fileName", config.Filename).
		Int("maxSizeMB", config.MaxSize).
		Int("maxBackups", config.MaxBackups).
		Int("maxAgeInDays", config.MaxAge).
		Msg("logging configured")

	return logger
}

// Sub derives a logger for a package or component.
func Sub(root zerolog.Logger, unit string) zerolog.Logger {
	return root.With().Str("unit", unit).Logger()
}

func newRollingFile(config Config) io.Writer {
	if err := os.MkdirAll(config.Directory, 0744); err != nil {
		fmt.Fprintf(os.Stderr, "can't create log directory %s: %v\n", config.Directory, err)
		return nil
	}

	filename := config.Filename
	if filename == "" {
		filename = DefaultLogFile
	}

	return &lumberjack.Logger{
		Filename:   filepath.Join(config.Directory, filename),
		MaxBackups: config.MaxBackups, // files
		MaxSize:    config.MaxSize,    // megabytes
		MaxAge:     config.MaxAge,     // days
	}
}
