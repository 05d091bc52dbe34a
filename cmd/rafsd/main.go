// Command rafsd is the daemon CLI surface of spec section 6: it parses
// mount/transport flags and config, raises RLIMIT_NOFILE, and drives the
// daemon lifecycle state machine. Actually attaching a FUSE/virtio-fs
// transport to a mountpoint is an external collaborator (spec Non-goals);
// this binary wires the flag surface, config loading and lifecycle only.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/KarpelesLab/rafs"
	"github.com/KarpelesLab/rafs/loader"
	"github.com/KarpelesLab/rafs/prefetch"
)

var daemonOpts struct {
	bootstrap  string
	sharedDir  string
	mountpoint string
	apisock    string
	config     string
	prefetch   string
	failover   string
	virtualMnt string
	rlimit     uint64
	supervisor string
	id         string
	upgrade    bool
	writable   bool
	threadNum  uint32
	virtiofs   bool
	logLevel   string
}

var logger zerolog.Logger

var rootCmd = &cobra.Command{
	Use:           "rafsd",
	Short:         "Serve a rafs bootstrap over a filesystem transport",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runDaemon,
}

func init() {
	f := rootCmd.Flags()
	f.StringVar(&daemonOpts.bootstrap, "bootstrap", "", "bootstrap metadata blob to serve")
	f.StringVar(&daemonOpts.sharedDir, "shared-dir", "", "passthrough directory to serve instead of a bootstrap")
	f.StringVar(&daemonOpts.mountpoint, "mountpoint", "", "path (FUSE) or tag (virtio-fs) to mount at")
	f.StringVar(&daemonOpts.apisock, "apisock", "", "administration API socket path")
	f.StringVar(&daemonOpts.config, "config", "", "daemon configuration file")
	f.StringVar(&daemonOpts.prefetch, "prefetch-files", "", "comma-separated path patterns to warm on mount (spec 4.J)")
	f.StringVar(&daemonOpts.failover, "failover-policy", "resend", "resend|flush")
	f.StringVar(&daemonOpts.virtualMnt, "virtual-mountpoint", "/", "mountpoint as presented inside the served filesystem")
	f.Uint64Var(&daemonOpts.rlimit, "rlimit-nofile", 0, "RLIMIT_NOFILE target, 0 picks the default policy")
	f.StringVar(&daemonOpts.supervisor, "supervisor", "", "supervisor socket for failover state hand-off")
	f.StringVar(&daemonOpts.id, "id", "", "daemon identifier, required with --supervisor")
	f.BoolVar(&daemonOpts.upgrade, "upgrade", false, "start in upgrade (takeover) mode")
	f.BoolVar(&daemonOpts.writable, "writable", false, "allow local writes on top of the read-only image")
	f.Uint32Var(&daemonOpts.threadNum, "thread-num", 4, "worker thread count for the transport")
	f.BoolVar(&daemonOpts.virtiofs, "virtiofs", false, "use virtio-fs instead of FUSE transport semantics")
	f.StringVar(&daemonOpts.logLevel, "log-level", "info", "log level: trace, debug, info, warn, error")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runDaemon(cmd *cobra.Command, args []string) error {
	lvl, err := zerolog.ParseLevel(daemonOpts.logLevel)
	if err != nil {
		return err
	}
	logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(lvl).With().Timestamp().Logger()

	if (daemonOpts.bootstrap == "") == (daemonOpts.sharedDir == "") {
		return rafs.NewError(rafs.KindConfigure, "bootstrap/shared-dir", nil)
	}
	if daemonOpts.supervisor != "" && daemonOpts.id == "" {
		return rafs.NewError(rafs.KindConfigure, "id", nil)
	}
	if daemonOpts.mountpoint == "" {
		return rafs.NewError(rafs.KindConfigure, "mountpoint", nil)
	}

	var cfg *DaemonConfig
	if daemonOpts.config != "" {
		cfg, err = loadDaemonConfig(daemonOpts.config)
		if err != nil {
			return err
		}
	}

	if err := raiseRlimitNofile(daemonOpts.rlimit); err != nil {
		logger.Warn().Err(err).Msg("could not raise RLIMIT_NOFILE, continuing with current limit")
	}

	lc := NewLifecycle(logger, daemonOpts.virtiofs)
	lc.WatchSignals()

	if daemonOpts.upgrade {
		lc.NotifyUpgradeStart()
	}

	logger.Info().
		Str("bootstrap", daemonOpts.bootstrap).
		Str("shared_dir", daemonOpts.sharedDir).
		Str("mountpoint", daemonOpts.mountpoint).
		Str("failover_policy", daemonOpts.failover).
		Bool("writable", daemonOpts.writable).
		Uint32("thread_num", daemonOpts.threadNum).
		Msg("starting")
	if cfg != nil {
		logger.Debug().Str("backend", cfg.Device.Backend.Type).Str("cache", cfg.Device.Cache.Type).Msg("loaded config")
	}

	if daemonOpts.bootstrap != "" && daemonOpts.prefetch != "" {
		if err := runPrefetch(daemonOpts.bootstrap, daemonOpts.prefetch); err != nil {
			logger.Warn().Err(err).Msg("prefetch planning failed, continuing without it")
		}
	}

	lc.NotifyMountDone()
	go lc.Run()
	<-lc.Done()

	if lc.State() == StateInterrupted {
		logger.Warn().Msg("interrupted")
	} else {
		logger.Info().Msg("stopped")
	}
	return nil
}

// runPrefetch resolves --prefetch-files against the bootstrap being served
// and logs the resulting span plan; a real transport would hand this off to
// its cache-warming path before declaring the mount Running.
func runPrefetch(bootstrapPath, patterns string) error {
	f, err := os.Open(bootstrapPath)
	if err != nil {
		return rafs.NewError(rafs.KindIO, bootstrapPath, err)
	}
	defer f.Close()

	sup, err := loader.Open(f)
	if err != nil {
		return err
	}

	planner := &prefetch.Planner{Sup: sup, Policy: prefetch.PolicyFSLevel}
	spans, err := planner.Plan(splitPatterns(patterns))
	if err != nil {
		return err
	}
	logger.Info().Int("patterns", len(splitPatterns(patterns))).Int("spans", len(spans)).Msg("prefetch plan ready")
	return nil
}

func splitPatterns(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
