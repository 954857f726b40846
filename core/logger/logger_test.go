package logger_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cmdkit/cmdkit/core/logger"
)

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("production preset emits JSON with app attr", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		log := logger.New(
			logger.WithProduction("cmdkit"),
			logger.WithOutput(&buf),
		)

		log.Info("hello", logger.Component("processor"))

		var record map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
		assert.Equal(t, "hello", record["msg"])
		assert.Equal(t, "cmdkit", record["app"])
		assert.Equal(t, "processor", record["component"])
	})

	t.Run("development preset logs debug level", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		log := logger.New(
			logger.WithDevelopment("cmdkit"),
			logger.WithOutput(&buf),
		)

		log.Debug("details")
		assert.Contains(t, buf.String(), "details")
	})

	t.Run("level override filters records", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		log := logger.New(
			logger.WithLevel(slog.LevelWarn),
			logger.WithOutput(&buf),
		)

		log.Info("hidden")
		assert.Empty(t, buf.String())

		log.Warn("visible")
		assert.Contains(t, buf.String(), "visible")
	})

	t.Run("discard drops everything", func(t *testing.T) {
		t.Parallel()

		log := logger.Discard()
		log.Error("nobody sees this")
	})
}

func TestAttrs(t *testing.T) {
	t.Parallel()

	t.Run("error attr is empty for nil", func(t *testing.T) {
		t.Parallel()

		assert.Equal(t, slog.Attr{}, logger.Error(nil))
		assert.Equal(t, "error", logger.Error(errors.New("x")).Key)
	})

	t.Run("identifier attrs skip empty strings", func(t *testing.T) {
		t.Parallel()

		assert.Equal(t, slog.Attr{}, logger.CommandID(""))
		assert.Equal(t, slog.Attr{}, logger.CommandState(""))
		assert.Equal(t, slog.Attr{}, logger.Component(""))
		assert.Equal(t, slog.Attr{}, logger.Event(""))
		assert.Equal(t, "cmd-1", logger.CommandID("cmd-1").Value.String())
	})

	t.Run("timing attrs", func(t *testing.T) {
		t.Parallel()

		assert.Equal(t, "duration", logger.Duration(time.Second).Key)
		assert.Equal(t, "elapsed", logger.Elapsed(time.Now()).Key)
	})
}
