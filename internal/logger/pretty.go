// internal/logger/pretty.go
package logger

import (
	"fmt"
	"time"

	"go.uber.org/zap/zapcore"
)

// Colors for terminal output
const (
	ColorReset  = "\033[0m"
	ColorRed    = "\033[31m"
	ColorGreen  = "\033[32m"
	ColorYellow = "\033[33m"
	ColorBlue   = "\033[34m"
	ColorPurple = "\033[35m"
	ColorCyan   = "\033[36m"
	ColorBold   = "\033[1m"
)

// PrettyEncoder creates a user-friendly console encoder
func PrettyEncoder() zapcore.Encoder {
	return zapcore.NewConsoleEncoder(zapcore.EncoderConfig{
		MessageKey:     "msg",
		LevelKey:       "level",
		TimeKey:        "time",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    customLevelEncoder,
		EncodeTime:     customTimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
	})
}

// customLevelEncoder formats log levels with colors
func customLevelEncoder(level zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	switch level {
	case zapcore.DebugLevel:
		enc.AppendString(ColorCyan + "[DEBUG]" + ColorReset)
	case zapcore.InfoLevel:
		enc.AppendString(ColorGreen + "[INFO]" + ColorReset)
	case zapcore.WarnLevel:
		enc.AppendString(ColorYellow + "[WARN]" + ColorReset)
	case zapcore.ErrorLevel:
		enc.AppendString(ColorRed + "[ERROR]" + ColorReset)
	case zapcore.FatalLevel:
		enc.AppendString(ColorRed + ColorBold + "[FATAL]" + ColorReset)
	default:
		enc.AppendString(fmt.Sprintf("[%s]", level.CapitalString()))
	}
}

func customTimeEncoder(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(t.Format("15:04:05"))
}

// FormatMessage turns the engine's key log lines into short console
// sentences. Anything it does not recognise is returned unchanged.
func FormatMessage(msg string, fields map[string]interface{}) string {
	switch msg {
	case "🚀 Campaign started":
		return fmt.Sprintf("%s🚀 Campaign %s started on %s at %s%s",
			ColorGreen, field(fields, "campaign_id"), shortenAddress(field(fields, "mint")), field(fields, "baseline"), ColorReset)

	case "🛑 Campaign stopped":
		return fmt.Sprintf("%s🛑 Campaign %s stopped%s", ColorYellow, field(fields, "campaign_id"), ColorReset)

	case "🔔 Alert fired":
		return fmt.Sprintf("%s%s🔔 Alert %s fired at %s%s",
			ColorPurple, ColorBold, field(fields, "alert_id"), field(fields, "price"), ColorReset)

	case "Alert dispatch finished":
		failed := field(fields, "failed")
		if failed != "" && failed != "0" {
			return fmt.Sprintf("%s⚠️  Alert %s dispatched, %s action(s) failed%s",
				ColorYellow, field(fields, "alert_id"), failed, ColorReset)
		}
		return fmt.Sprintf("%s✅ Alert %s dispatched%s", ColorGreen, field(fields, "alert_id"), ColorReset)

	case "📝 Paper order filled":
		return fmt.Sprintf("%s📝 %s %s filled for %s%s",
			ColorBlue, field(fields, "side"), shortenAddress(field(fields, "mint")), field(fields, "wallet"), ColorReset)

	case "🔌 Price stream connected", "🔌 Price stream reconnected":
		return fmt.Sprintf("%s%s%s", ColorCyan, msg, ColorReset)

	default:
		return msg
	}
}

func field(fields map[string]interface{}, key string) string {
	v, ok := fields[key]
	if !ok || v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

func shortenAddress(addr string) string {
	if len(addr) > 8 {
		return addr[:4] + "..." + addr[len(addr)-4:]
	}
	return addr
}

// prettyCore rewrites messages through FormatMessage and drops the
// structured fields, which stay available in the file and buffer cores.
type prettyCore struct {
	core   zapcore.Core
	fields []zapcore.Field
}

func (c *prettyCore) Enabled(level zapcore.Level) bool {
	return c.core.Enabled(level)
}

func (c *prettyCore) With(fields []zapcore.Field) zapcore.Core {
	merged := make([]zapcore.Field, 0, len(c.fields)+len(fields))
	merged = append(merged, c.fields...)
	merged = append(merged, fields...)
	return &prettyCore{core: c.core, fields: merged}
}

func (c *prettyCore) Check(entry zapcore.Entry, checked *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(entry.Level) {
		return checked.AddCore(entry, c)
	}
	return checked
}

func (c *prettyCore) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	enc := zapcore.NewMapObjectEncoder()
	for _, f := range c.fields {
		f.AddTo(enc)
	}
	for _, f := range fields {
		f.AddTo(enc)
	}
	entry.Message = FormatMessage(entry.Message, enc.Fields)
	return c.core.Write(entry, nil)
}

func (c *prettyCore) Sync() error {
	return c.core.Sync()
}
