// Package logging sets up the process-wide slog logger: JSON records
// to a size-rotated uninstall.log plus stdout, mirroring where
// operators already expect this tool's history to live.
package logging

import (
	"io"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Init builds the logger, installs it as the slog default and returns
// it. path is the log file; rotation keeps it bounded at 10 MB.
func Init(path string) *slog.Logger {
	rotator := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    10, // MB
		MaxBackups: 2,
	}
	log := slog.New(slog.NewJSONHandler(io.MultiWriter(os.Stdout, rotator), nil))
	slog.SetDefault(log)
	return log
}
