package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	rotatelogs "github.com/iproj/file-rotatelogs"
	log "github.com/sirupsen/logrus"

	"github.com/fuomag9/checkpulse/internal/config"
)

const retention = 7 * 24 * time.Hour

// Setup configures the standard logrus logger from cfg. When a log directory is
// configured, output is also written to a daily rotated file in that directory.
func Setup(cfg config.LoggingConfig) error {
	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	log.SetLevel(level)

	switch cfg.Format {
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	default:
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}

	if cfg.Dir == "" {
		log.SetOutput(os.Stdout)
		return nil
	}

	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	writer, err := rotatelogs.New(
		filepath.Join(cfg.Dir, "checkpulse.%Y%m%d.log"),
		rotatelogs.WithLinkName(filepath.Join(cfg.Dir, "checkpulse.log")),
		rotatelogs.WithRotationTime(24*time.Hour),
		rotatelogs.WithMaxAge(retention),
	)
	if err != nil {
		return fmt.Errorf("failed to open rotating log file: %w", err)
	}

	log.SetOutput(io.MultiWriter(os.Stdout, writer))
	return nil
}
