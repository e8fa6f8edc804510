package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLevels(t *testing.T) {
	for _, tc := range []struct {
		name          string
		log           func(l *ZapLogger, msg string)
		expectedLevel zapcore.Level
	}{
		{"Debug", func(l *ZapLogger, msg string) { l.Debug(msg) }, zapcore.DebugLevel},
		{"Info", func(l *ZapLogger, msg string) { l.Info(msg) }, zapcore.InfoLevel},
		{"Warn", func(l *ZapLogger, msg string) { l.Warn(msg) }, zapcore.WarnLevel},
		{"Error", func(l *ZapLogger, msg string) { l.Error(msg) }, zapcore.ErrorLevel},
		{"DebugWithContext", func(l *ZapLogger, msg string) { l.DebugWithContext(context.Background(), msg) }, zapcore.DebugLevel},
		{"InfoWithContext", func(l *ZapLogger, msg string) { l.InfoWithContext(context.Background(), msg) }, zapcore.InfoLevel},
		{"WarnWithContext", func(l *ZapLogger, msg string) { l.WarnWithContext(context.Background(), msg) }, zapcore.WarnLevel},
		{"ErrorWithContext", func(l *ZapLogger, msg string) { l.ErrorWithContext(context.Background(), msg) }, zapcore.ErrorLevel},
	} {
		t.Run(tc.name, func(t *testing.T) {
			observerLogger, logs := observer.New(zap.DebugLevel)
			dut := &ZapLogger{zap.New(observerLogger)}
			const testMessage = "ABC"

			tc.log(dut, testMessage)

			require.Equal(t, 1, logs.Len())
			entry := logs.All()[0]
			require.Equal(t, testMessage, entry.Message)
			require.Empty(t, entry.ContextMap())
			require.Equal(t, tc.expectedLevel, entry.Level)
		})
	}
}

func TestWithFields(t *testing.T) {
	observerLogger, logs := observer.New(zap.DebugLevel)
	logger := &ZapLogger{zap.New(observerLogger)}

	const testMessage = "ABC"

	newLogger := logger.With(
		zap.String("TestOption", "Message"),
	)

	newLogger.Info(testMessage)

	// Check that child message carries the context fields
	expectedZapFields := map[string]interface{}{
		"TestOption": "Message",
	}
	childMessage := logs.All()[0]
	require.Equal(t, expectedZapFields, childMessage.ContextMap())

	// Check that parent message does not carry the context fields
	logger.Info(testMessage)
	parentMessage := logs.All()[1]
	require.Empty(t, parentMessage.ContextMap())
}

func TestNewLogger(t *testing.T) {
	t.Run("none_is_noop", func(t *testing.T) {
		l, err := NewLogger("text", "none", "Unix")
		require.NoError(t, err)
		require.NotNil(t, l)
	})

	t.Run("unknown_level", func(t *testing.T) {
		_, err := NewLogger("json", "verbose", "Unix")
		require.Error(t, err)
	})

	t.Run("json_iso8601", func(t *testing.T) {
		l, err := NewLogger("json", "info", "ISO8601")
		require.NoError(t, err)
		require.NotNil(t, l)
	})
}

func TestObserverLogger(t *testing.T) {
	l, logs := NewObserverLogger("info")
	l.Debug("dropped")
	l.Info("kept", zap.String("k", "v"))

	require.Equal(t, 1, logs.Len())
	require.Equal(t, 1, logs.FilterMessage("kept").Len())
}
