package cmd

import (
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
)

func LoadEnvFile() {
	var configPath string

	flag.StringVar(&configPath, "env", "", "path to load env from")
	flag.Parse()

	if err := LoadEnv(configPath); err != nil {
		log.Fatal(err)
	}
}

// LoadEnv loads variables from path into the environment. An empty path keeps
// os.Environ as is.
func LoadEnv(path string) error {
	if path == "" {
		slog.Debug("no env file specified, using os.Environ only")
		return nil
	}

	slog.Info("loading env from file", "path", path)
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("error loading .env file '%s': %w", path, err)
	}
	return nil
}

// InitLogging installs a tint handler as the default logger, writing to stderr
// and, when logFile is set, appending to that file as well. The returned func
// closes the file.
func InitLogging(logFile string, level slog.Level) (func(), error) {
	var out io.Writer = os.Stderr
	closeFn := func() {}

	if logFile != "" {
		if err := os.MkdirAll(filepath.Dir(logFile), os.ModePerm); err != nil {
			return nil, fmt.Errorf("error creating directory for log file: %w", err)
		}
		f, err := os.OpenFile(logFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
		if err != nil {
			return nil, fmt.Errorf("error opening log file: %w", err)
		}
		out = io.MultiWriter(f, os.Stderr)
		closeFn = func() { f.Close() }
	}

	handler := tint.NewHandler(out, &tint.Options{
		Level:      level,
		TimeFormat: time.DateTime,
		// Escape codes would end up in the log file.
		NoColor: logFile != "",
	})
	slog.SetDefault(slog.New(handler))

	return closeFn, nil
}
