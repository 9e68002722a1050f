package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/decred/slog"
	"github.com/jrick/logrotate/rotator"

	"trust-fund-service/controller/handler"
	"trust-fund-service/controller/respond"
	"trust-fund-service/database"
	"trust-fund-service/models/dao"
	"trust-fund-service/node"
	"trust-fund-service/service/dashboard_service"
	"trust-fund-service/service/identity_service"
	"trust-fund-service/service/ledger_service"
	"trust-fund-service/service/mirror_service"
	"trust-fund-service/service/project_service"
	"trust-fund-service/service/storage_service"
)

// logWriter writes to standard output and, once initLogRotator has run, to
// the rotating log file.
type logWriter struct{}

func (logWriter) Write(p []byte) (n int, err error) {
	os.Stdout.Write(p)
	if logRotator == nil {
		return len(p), nil
	}
	return logRotator.Write(p)
}

// Loggers per subsystem. All of them write to backendLog.
var (
	backendLog = slog.NewBackend(logWriter{})

	// logRotator is nil when file logging is off. Closed on shutdown.
	logRotator *rotator.Rotator

	log          = backendLog.Logger("TFND")
	httpLog      = backendLog.Logger("HTTP")
	dataLog      = backendLog.Logger("DATA")
	identityLog  = backendLog.Logger("IDEN")
	ledgerLog    = backendLog.Logger("LEDG")
	projectLog   = backendLog.Logger("PROJ")
	dashboardLog = backendLog.Logger("DASH")
	mirrorLog    = backendLog.Logger("MIRR")
	nodeLog      = backendLog.Logger("NODE")
	storageLog   = backendLog.Logger("STOR")
)

func init() {
	handler.UseLogger(httpLog)
	respond.UseLogger(httpLog)
	database.UseLogger(dataLog)
	dao.UseLogger(dataLog)
	identity_service.UseLogger(identityLog)
	ledger_service.UseLogger(ledgerLog)
	project_service.UseLogger(projectLog)
	dashboard_service.UseLogger(dashboardLog)
	mirror_service.UseLogger(mirrorLog)
	node.UseLogger(nodeLog)
	storage_service.UseLogger(storageLog)
}

var subsystemLoggers = map[string]slog.Logger{
	"TFND": log,
	"HTTP": httpLog,
	"DATA": dataLog,
	"IDEN": identityLog,
	"LEDG": ledgerLog,
	"PROJ": projectLog,
	"DASH": dashboardLog,
	"MIRR": mirrorLog,
	"NODE": nodeLog,
	"STOR": storageLog,
}

// initLogRotator starts writing logs to logFile, rolling over at 10 MiB and
// keeping three old files.
func initLogRotator(logFile string) {
	logDir, _ := filepath.Split(logFile)
	if err := os.MkdirAll(logDir, 0700); err != nil {
		fmt.Fprintf(os.Stderr, "failed to create log directory: %v\n", err)
		os.Exit(1)
	}
	r, err := rotator.New(logFile, 10*1024, false, 3)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create file rotator: %v\n", err)
		os.Exit(1)
	}
	logRotator = r
}

// setLogLevels sets every subsystem to logLevel. An invalid level means info.
func setLogLevels(logLevel string) {
	level, ok := slog.LevelFromString(logLevel)
	if !ok {
		level = slog.LevelInfo
	}
	for _, logger := range subsystemLoggers {
		logger.SetLevel(level)
	}
}
