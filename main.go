// milo is a Discord community bot: feed watchers, scheduled posts, and a
// handful of "!"-commands.
package main

import (
	"fmt"
	"os"

	"github.com/linanwx/milo/cmd"
	"github.com/linanwx/milo/config"
	"github.com/linanwx/milo/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		cfg = config.DefaultConfig()
	}
	dataDir, _ := cfg.DataPath()
	if err := logger.Init(cfg.BuildLoggerConfig(), dataDir); err != nil {
		fmt.Fprintln(os.Stderr, "logger init error:", err)
	}
	cmd.Execute()
}
