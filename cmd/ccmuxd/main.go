// ccmuxd is the multiplexer daemon: it owns the session graph, the
// persistence layer, and the Unix-socket wire protocol that both human
// and agent clients speak.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/urfave/cli/v2"
	"golang.org/x/sys/unix"

	"github.com/ccmux/ccmux/internal/config"
	"github.com/ccmux/ccmux/internal/daemon"
)

var version = "dev"

func defaultStateDir() string {
	if dir := os.Getenv("CCMUX_STATE_DIR"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "ccmux")
	}
	return filepath.Join(home, ".local", "state", "ccmux")
}

func main() {
	app := &cli.App{
		Name:    "ccmuxd",
		Usage:   "terminal multiplexer daemon for human and AI-agent clients",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "state-dir",
				Usage: "daemon state directory (socket, WAL, checkpoints)",
				Value: defaultStateDir(),
			},
			&cli.StringFlag{
				Name:  "config",
				Usage: "path to config file (default: <state-dir>/config.yaml)",
			},
			&cli.StringFlag{
				Name:  "status-addr",
				Usage: "enable the read-only status HTTP surface on this address",
			},
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "ccmuxd: %v\n", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	stateDir := c.String("state-dir")
	configPath := c.String("config")
	if configPath == "" {
		configPath = filepath.Join(stateDir, "config.yaml")
	}
	cfg, err := config.Load(configPath, stateDir)
	if err != nil {
		return err
	}
	if addr := c.String("status-addr"); addr != "" {
		cfg.StatusAddr = addr
	}

	// State dir contents are private to the owning user (// local-only, filesystem-permission-gated).
	unix.Umask(0o077)

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return daemon.Run(ctx, cfg, configPath)
}
