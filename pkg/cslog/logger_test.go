package cslog

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestConfigureAndLog(t *testing.T) {
	op := NewOptions()
	op.Level = zapcore.DebugLevel
	op.LogDir = t.TempDir()
	op.NoStdout = true
	Configure(op)

	Info("info line", zap.Int("n", 1))
	Debug("debug line")
	Warn("warn line")
	Error("error line")

	l := NewCSLog("test")
	l.Info("prefixed line", zap.String("k", "v"))
	l.Warn("prefixed warn")
}
