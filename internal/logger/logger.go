package logger

import (
	"encoding/json"
	"fmt"
	"io"
	stdlog "log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var (
	mu           sync.RWMutex
	currentLevel = LevelInfo
	jsonFormat   bool
	logger       = stdlog.New(os.Stdout, "", 0)
	outputFile   *os.File
)

var levelColors = map[Level]*color.Color{
	LevelDebug: color.New(color.FgHiBlack),
	LevelInfo:  color.New(color.FgGreen),
	LevelWarn:  color.New(color.FgYellow),
	LevelError: color.New(color.FgRed, color.Bold),
}

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func SetLevel(level string) {
	mu.Lock()
	defer mu.Unlock()

	switch strings.ToUpper(level) {
	case "DEBUG":
		currentLevel = LevelDebug
	case "INFO":
		currentLevel = LevelInfo
	case "WARN":
		currentLevel = LevelWarn
	case "ERROR":
		currentLevel = LevelError
	}
}

// SetFormat selects "text" (default) or "json" output.
func SetFormat(format string) {
	mu.Lock()
	defer mu.Unlock()
	jsonFormat = strings.EqualFold(format, "json")
}

// SetOutput redirects log output to stdout, stderr or a file path (appended).
func SetOutput(output string) error {
	var w io.Writer
	var f *os.File

	switch strings.ToLower(output) {
	case "", "stdout":
		w = os.Stdout
	case "stderr":
		w = os.Stderr
	default:
		var err error
		f, err = os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("open log output %q: %w", output, err)
		}
		w = f
	}

	mu.Lock()
	defer mu.Unlock()
	if outputFile != nil {
		_ = outputFile.Close()
	}
	outputFile = f
	logger.SetOutput(w)
	return nil
}

// Enabled reports whether messages at level would be written.
func Enabled(level Level) bool {
	mu.RLock()
	defer mu.RUnlock()
	return level >= currentLevel
}

func log(level Level, name string, format string, v ...any) {
	mu.RLock()
	defer mu.RUnlock()

	if level < currentLevel {
		return
	}

	now := time.Now()
	message := fmt.Sprintf(format, v...)

	if jsonFormat {
		entry := struct {
			Time    string `json:"time"`
			Level   string `json:"level"`
			Logger  string `json:"logger,omitempty"`
			Message string `json:"msg"`
		}{now.Format(time.RFC3339Nano), level.String(), name, message}
		line, err := json.Marshal(entry)
		if err != nil {
			return
		}
		logger.Println(string(line))
		return
	}

	timestamp := now.Format("2006-01-02 15:04:05")
	lvl := level.String()
	if c, ok := levelColors[level]; ok {
		lvl = c.Sprint(lvl)
	}
	prefix := fmt.Sprintf("[%s] [%s] ", timestamp, lvl)
	if name != "" {
		prefix += "[" + name + "] "
	}
	logger.Println(prefix + message)
}

func Debug(format string, v ...any) {
	log(LevelDebug, "", format, v...)
}

func Info(format string, v ...any) {
	log(LevelInfo, "", format, v...)
}

func Warn(format string, v ...any) {
	log(LevelWarn, "", format, v...)
}

func Error(format string, v ...any) {
	log(LevelError, "", format, v...)
}

// Logger tags every message with a component name.
// The zero value logs without a name.
type Logger struct {
	name string
}

// Named returns a Logger that prefixes messages with name.
func Named(name string) *Logger {
	return &Logger{name: name}
}

func (l *Logger) Name() string {
	return l.name
}

func (l *Logger) Debug(format string, v ...any) {
	log(LevelDebug, l.name, format, v...)
}

func (l *Logger) Info(format string, v ...any) {
	log(LevelInfo, l.name, format, v...)
}

func (l *Logger) Warn(format string, v ...any) {
	log(LevelWarn, l.name, format, v...)
}

func (l *Logger) Error(format string, v ...any) {
	log(LevelError, l.name, format, v...)
}
