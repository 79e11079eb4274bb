package log

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync/atomic"
)

var (
	customLog = newLogger(os.Stdout, os.Stderr, 0)
	debugOn   atomic.Bool
)

type logger struct {
	debug *log.Logger
	info  *log.Logger
	err   *log.Logger
	dir   string
}

func newLogger(out, errOut io.Writer, flags int) *logger {
	return &logger{
		debug: log.New(out, "[DEBUG] ", flags),
		info:  log.New(out, "[INFOM] ", flags),
		err:   log.New(errOut, "[ERROR] ", flags),
	}
}

// InitLogger writes debug and info to stdout, errors to stderr.
func InitLogger() {
	customLog = newLogger(os.Stdout, os.Stderr, 0)
}

// ResetLogger redirects every level to <home>/logs/<prog>.<pid>.log.
func ResetLogger(oracleHome string) {
	dir := filepath.Join(oracleHome, "logs")
	if oracleHome == "" {
		osHome, err := os.UserHomeDir()
		if err != nil {
			Fatalf("failed to get user home directory: %v", err)
		}
		dir = filepath.Join(osHome, ".oracled", "logs")
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		Fatalf("failed to create log directory %s: %v", dir, err)
	}

	name := fmt.Sprintf("%s.%d.log", filepath.Base(os.Args[0]), os.Getpid())
	path := filepath.Join(dir, name)
	file, err := os.Create(path)
	if err != nil {
		Fatalf("failed to create log file: %v", err)
	}

	Infof("from now on, all logs will be written to %s", path)

	format := log.Ldate | log.Ltime | log.Lmicroseconds | log.Lshortfile
	customLog = newLogger(file, file, format)
	customLog.dir = dir
}

// SetOutput sends every level to w. Used by tests to capture output.
func SetOutput(w io.Writer) {
	customLog = newLogger(w, w, 0)
}

// SetDebug toggles debug level output.
func SetDebug(on bool) {
	debugOn.Store(on)
}

func Debug(v ...any) {
	if debugOn.Load() {
		_ = customLog.debug.Output(2, fmt.Sprint(v...))
	}
}

func Debugf(format string, v ...any) {
	if debugOn.Load() {
		_ = customLog.debug.Output(2, fmt.Sprintf(format, v...))
	}
}

func Info(v ...any) {
	_ = customLog.info.Output(2, fmt.Sprint(v...))
}

func Infof(format string, v ...any) {
	_ = customLog.info.Output(2, fmt.Sprintf(format, v...))
}

func Error(v ...any) {
	_ = customLog.err.Output(2, fmt.Sprint(v...))
}

func Errorf(format string, v ...any) {
	_ = customLog.err.Output(2, fmt.Sprintf(format, v...))
}

func Fatal(v ...any) {
	_ = customLog.err.Output(2, fmt.Sprint(v...))
	os.Exit(1)
}

func Fatalf(format string, v ...any) {
	_ = customLog.err.Output(2, fmt.Sprintf(format, v...))
	os.Exit(1)
}
