// Package logging provides leveled key=value console logging for the
// gateway and worker processes. Output is for operators watching a running
// fleet; it is not a durable record.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Level represents log severity.
type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// levelPriority maps levels to numeric priority for filtering.
var levelPriority = map[Level]int{
	LevelDebug: 0,
	LevelInfo:  1,
	LevelWarn:  2,
	LevelError: 3,
}

// Logger writes leveled log lines with optional component scoping.
type Logger struct {
	mu        sync.Mutex
	output    io.Writer
	minLevel  Level
	component string
	workerID  string
}

// New creates a new Logger writing to stdout at Info level.
func New() *Logger {
	return &Logger{
		output:   os.Stdout,
		minLevel: LevelInfo,
	}
}

// WithComponent returns a new logger with the given component name.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{
		output:    l.output,
		minLevel:  l.minLevel,
		component: component,
		workerID:  l.workerID,
	}
}

// WithWorkerID returns a new logger that stamps every line with the worker id.
func (l *Logger) WithWorkerID(workerID string) *Logger {
	return &Logger{
		output:    l.output,
		minLevel:  l.minLevel,
		component: l.component,
		workerID:  workerID,
	}
}

// SetLevel sets the minimum log level.
func (l *Logger) SetLevel(level Level) {
	l.minLevel = level
}

// SetOutput sets the output writer (default: stdout).
func (l *Logger) SetOutput(w io.Writer) {
	l.output = w
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string, fields ...map[string]interface{}) {
	l.log(LevelDebug, msg, fields...)
}

// Info logs an info message.
func (l *Logger) Info(msg string, fields ...map[string]interface{}) {
	l.log(LevelInfo, msg, fields...)
}

// Warn logs a warning message.
func (l *Logger) Warn(msg string, fields ...map[string]interface{}) {
	l.log(LevelWarn, msg, fields...)
}

// Error logs an error message.
func (l *Logger) Error(msg string, fields ...map[string]interface{}) {
	l.log(LevelError, msg, fields...)
}

// formatFields formats a map of fields as key=value pairs.
func formatFields(fields map[string]interface{}) string {
	if len(fields) == 0 {
		return ""
	}
	var parts []string
	for k, v := range fields {
		parts = append(parts, fmt.Sprintf("%s=%v", k, v))
	}
	return " " + strings.Join(parts, " ")
}

// log writes a log entry: LEVEL TIMESTAMP [component] message key=value ...
func (l *Logger) log(level Level, msg string, fields ...map[string]interface{}) {
	if levelPriority[level] < levelPriority[l.minLevel] {
		return
	}

	timestamp := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")

	var fieldStr string
	if len(fields) > 0 && fields[0] != nil {
		if l.workerID != "" {
			fields[0]["worker"] = l.workerID
		}
		fieldStr = formatFields(fields[0])
	} else if l.workerID != "" {
		fieldStr = " worker=" + l.workerID
	}

	var line string
	if l.component != "" {
		line = fmt.Sprintf("%-5s %s [%s] %s%s\n", level, timestamp, l.component, msg, fieldStr)
	} else {
		line = fmt.Sprintf("%-5s %s %s%s\n", level, timestamp, msg, fieldStr)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.output.Write([]byte(line))
}

// --- Routing-event helpers ---
// Called by the gateway and runtime at delivery boundaries.

// Placement logs a placement decision.
func (l *Logger) Placement(agentID, workerID string, fresh bool) {
	l.Debug("placement", map[string]interface{}{
		"agent":  agentID,
		"target": workerID,
		"new":    fresh,
	})
}

// PlacementFailure logs a target that could not be placed.
func (l *Logger) PlacementFailure(agentID string) {
	l.Warn("placement_failure", map[string]interface{}{
		"agent": agentID,
	})
}

// Activation logs a lazy agent activation.
func (l *Logger) Activation(agentID string, err error) {
	fields := map[string]interface{}{"agent": agentID}
	if err != nil {
		fields["error"] = err.Error()
		l.Error("activation_failed", fields)
		return
	}
	l.Debug("activation", fields)
}

// RPCTimeout logs a pending RPC broken by the sweep.
func (l *Logger) RPCTimeout(requestID string, age time.Duration) {
	l.Warn("rpc_timeout", map[string]interface{}{
		"request": requestID,
		"age":     age.String(),
	})
}

// LateResponse logs a response that arrived after its caller was gone.
func (l *Logger) LateResponse(requestID string) {
	l.Debug("late_rpc_response_dropped", map[string]interface{}{
		"request": requestID,
	})
}

// WorkerPurged logs a worker removed by the liveness sweep.
func (l *Logger) WorkerPurged(workerID string, lastSeen time.Time) {
	l.Warn("worker_purged", map[string]interface{}{
		"target":    workerID,
		"last_seen": lastSeen.UTC().Format(time.RFC3339),
	})
}
