package logging

import (
	"os"
	"path/filepath"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/fuomag9/checkpulse/internal/config"
)

func TestSetup(t *testing.T) {
	t.Cleanup(func() {
		log.SetOutput(os.Stderr)
		log.SetLevel(log.InfoLevel)
		log.SetFormatter(&log.TextFormatter{})
	})

	t.Run("invalid_level", func(t *testing.T) {
		require.Error(t, Setup(config.LoggingConfig{Level: "chatty"}))
	})

	t.Run("json_to_stdout", func(t *testing.T) {
		require.NoError(t, Setup(config.LoggingConfig{Level: "debug", Format: "json"}))
		require.Equal(t, log.DebugLevel, log.GetLevel())
		require.IsType(t, &log.JSONFormatter{}, log.StandardLogger().Formatter)
	})

	t.Run("rotated_file", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "logs")
		require.NoError(t, Setup(config.LoggingConfig{Level: "info", Dir: dir}))

		log.Info("written to the rotated file")

		matches, err := filepath.Glob(filepath.Join(dir, "checkpulse.*.log"))
		require.NoError(t, err)
		require.Len(t, matches, 1)

		data, err := os.ReadFile(matches[0])
		require.NoError(t, err)
		require.Contains(t, string(data), "written to the rotated file")
	})
}
