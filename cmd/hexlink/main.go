// Command hexlink shortens and resolves links against the configured store
// without running the HTTP server.
package main

import (
	"log/slog"
	"os"

	"hexlink.local/internal/platform/config"
	"hexlink.local/internal/platform/logging"
)

func main() {
	cfg := config.Load()
	// 命令行输出走 stdout，日志走 stderr
	slog.SetDefault(logging.New(os.Stderr, cfg.LogLevel, "text", cfg.ServiceName))

	root := newRootCmd(cfg)
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
