package relayws

import (
	"fmt"
	"sort"
	"strings"
)

// LogFunc receives one formatted log line.
type LogFunc func(line string)

// funcLogger routes debug and info lines to msgLog, warn and error lines to errLog.
type funcLogger struct {
	msgLog LogFunc
	errLog LogFunc
	fields map[string]any
}

// NewFuncLogger builds a Logger from two callbacks. A nil callback falls back to the
// matching level of fallback.
func NewFuncLogger(msgLog, errLog LogFunc, fallback Logger) Logger {
	if fallback == nil {
		fallback = NewLogrusLogger(nil)
	}
	if msgLog == nil {
		msgLog = func(line string) { fallback.Info(line) }
	}
	if errLog == nil {
		errLog = func(line string) { fallback.Error(line) }
	}
	return &funcLogger{
		msgLog: msgLog,
		errLog: errLog,
		fields: make(map[string]any),
	}
}

func (l *funcLogger) WithField(key string, value any) Logger {
	next := &funcLogger{
		msgLog: l.msgLog,
		errLog: l.errLog,
		fields: make(map[string]any, len(l.fields)+1),
	}
	for k, v := range l.fields {
		next.fields[k] = v
	}
	next.fields[key] = value
	return next
}

func (l *funcLogger) formatFields() string {
	if len(l.fields) == 0 {
		return ""
	}

	keys := make([]string, 0, len(l.fields))
	for k := range l.fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(" [")
	for i, k := range keys {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s=%v", k, l.fields[k])
	}
	b.WriteString("]")
	return b.String()
}

func (l *funcLogger) log(sink LogFunc, level, msg string) {
	sink(fmt.Sprintf("%s%s: %s", level, l.formatFields(), strings.TrimSuffix(msg, "\n")))
}

func (l *funcLogger) Debug(args ...any) { l.log(l.msgLog, "DEBUG", fmt.Sprint(args...)) }
func (l *funcLogger) Debugf(format string, args ...any) {
	l.log(l.msgLog, "DEBUG", fmt.Sprintf(format, args...))
}
func (l *funcLogger) Debugln(args ...any) { l.log(l.msgLog, "DEBUG", fmt.Sprintln(args...)) }

func (l *funcLogger) Info(args ...any) { l.log(l.msgLog, "INFO", fmt.Sprint(args...)) }
func (l *funcLogger) Infof(format string, args ...any) {
	l.log(l.msgLog, "INFO", fmt.Sprintf(format, args...))
}
func (l *funcLogger) Infoln(args ...any) { l.log(l.msgLog, "INFO", fmt.Sprintln(args...)) }

func (l *funcLogger) Warn(args ...any) { l.log(l.errLog, "WARN", fmt.Sprint(args...)) }
func (l *funcLogger) Warnf(format string, args ...any) {
	l.log(l.errLog, "WARN", fmt.Sprintf(format, args...))
}
func (l *funcLogger) Warnln(args ...any) { l.log(l.errLog, "WARN", fmt.Sprintln(args...)) }

func (l *funcLogger) Error(args ...any) { l.log(l.errLog, "ERROR", fmt.Sprint(args...)) }
func (l *funcLogger) Errorf(format string, args ...any) {
	l.log(l.errLog, "ERROR", fmt.Sprintf(format, args...))
}
func (l *funcLogger) Errorln(args ...any) { l.log(l.errLog, "ERROR", fmt.Sprintln(args...)) }
