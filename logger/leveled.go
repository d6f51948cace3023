package logger

import (
	"fmt"
	"strings"
)

// LeveledLogger adapts the package logger to the key/value style used by
// hashicorp/go-retryablehttp.
type LeveledLogger struct {
	prefix string
}

// Leveled returns an adapter whose messages carry a "[component]" prefix.
func Leveled(component string) *LeveledLogger {
	prefix := ""
	if component != "" {
		prefix = "[" + component + "] "
	}
	return &LeveledLogger{prefix: prefix}
}

func (l *LeveledLogger) Error(msg string, keysAndValues ...interface{}) {
	if shouldLog(ErrorLevel) {
		output("ERROR", l.format(msg, keysAndValues))
	}
}

func (l *LeveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	if shouldLog(WarnLevel) {
		output("WARN", l.format(msg, keysAndValues))
	}
}

func (l *LeveledLogger) Info(msg string, keysAndValues ...interface{}) {
	if shouldLog(InfoLevel) {
		output("INFO", l.format(msg, keysAndValues))
	}
}

// Debug is where retryablehttp reports every request attempt.
func (l *LeveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	if shouldLog(DebugLevel) {
		output("DEBUG", l.format(msg, keysAndValues))
	}
}

func (l *LeveledLogger) format(msg string, keysAndValues []interface{}) string {
	var b strings.Builder
	b.WriteString(l.prefix)
	b.WriteString(msg)
	for i := 0; i < len(keysAndValues); i += 2 {
		if i+1 < len(keysAndValues) {
			fmt.Fprintf(&b, " %v=%v", keysAndValues[i], keysAndValues[i+1])
		} else {
			fmt.Fprintf(&b, " %v", keysAndValues[i])
		}
	}
	return b.String()
}
