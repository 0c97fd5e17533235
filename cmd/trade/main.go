package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/rest"

	"tradeloop/internal/cli"
	"tradeloop/internal/config"
	"tradeloop/internal/handler"
	"tradeloop/internal/svc"
	"tradeloop/pkg/backfill"
	"tradeloop/pkg/confkit"
	"tradeloop/pkg/console"
	"tradeloop/pkg/options"
	"tradeloop/pkg/trader"
)

const defaultConfig = "etc/trade.yaml"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) > 0 && args[0] == "backfill" {
		return runBackfill(args[1:])
	}

	fs := flag.NewFlagSet("trade", flag.ContinueOnError)
	confPath := fs.String("conf", defaultConfig, "the config file")
	skipBackfill := fs.Bool("no-backfill", false, "start without running the backfill job")
	options.RegisterFlags(fs)
	selector, flagArgs := splitSelector(args)
	if err := fs.Parse(flagArgs); err != nil {
		return 2
	}
	if selector == "" && fs.NArg() > 0 {
		selector = fs.Arg(0)
	}
	setupLogging()

	cfg, opts, err := loadOptions(*confPath, selector, fs)
	if err != nil {
		logx.Errorf("trade: %v", err)
		return 1
	}
	cli.LogConfigSummary(cfg)
	if opts.Debug {
		logx.SetLevel(logx.DebugLevel)
		cli.LogOptions(opts)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if runBackfillJob(cfg, *skipBackfill) {
		coord := &backfill.Coordinator{Runner: backfill.ExecRunner{}}
		job := backfill.Job{Selector: opts.Sel.Normalized, Days: opts.BackfillDays(), ConfigPath: cfg.MainPath()}
		if err := coord.Run(ctx, job); err != nil {
			var exitErr *backfill.ExitError
			if errors.As(err, &exitErr) {
				logx.Errorf("trade: %v", err)
				return exitErr.Code
			}
			logx.Errorf("trade: backfill: %v", err)
			return 1
		}
	}

	sc, err := svc.NewServiceContext(ctx, *cfg, opts)
	if err != nil {
		logx.Errorf("trade: %v", err)
		return 1
	}
	defer sc.Close()

	var (
		out      io.Writer = os.Stdout
		commands chan console.Command
	)
	if !opts.NonInteractive {
		restore, raw, err := console.MakeRaw(os.Stdin)
		if err != nil {
			logx.Errorf("trade: %v", err)
		}
		defer restore()
		if raw {
			out = console.CRLF(os.Stdout)
			logx.SetWriter(logx.NewWriter(out))
		}
		commands = make(chan console.Command, 16)
		go func() {
			if err := console.Run(ctx, os.Stdin, commands); err != nil {
				logx.Errorf("trade: %v", err)
			}
		}()
	}

	tr, err := sc.StartTrader(ctx, out, commands)
	if err != nil {
		logx.Errorf("trade: %v", err)
		return 1
	}

	if cfg.Status.Enabled {
		rc := cfg.Status.RestConf()
		server := rest.MustNewServer(rc)
		handler.RegisterHandlers(server, tr)
		go server.Start()
		defer server.Stop()
		logx.Infof("trade: status api at %s:%d", rc.Host, rc.Port)
	}

	if err := tr.Preroll(ctx); err != nil {
		logx.Errorf("trade: %v", err)
		return 1
	}
	if !opts.NonInteractive {
		console.WriteKeys(out)
	}
	if err := tr.Run(ctx); err != nil {
		var fatal *trader.FatalError
		if errors.As(err, &fatal) {
			logx.Errorf("trade: fatal, stopping: %v", fatal.Err)
		} else {
			logx.Errorf("trade: %v", err)
		}
		return 1
	}
	return 0
}

// runBackfillJob reports whether the backfill child should run. A memory
// store lives in the child only, so nothing would be left to replay.
func runBackfillJob(cfg *config.Config, skip bool) bool {
	if skip {
		return false
	}
	if !cfg.Persistent() {
		logx.Infof("trade: skipping backfill, the %s store does not outlive the backfill process", cfg.Store)
		return false
	}
	return true
}

// runBackfill is the job spawned by the backfill coordinator:
// `trade backfill <selector> --days N [--conf path]`.
func runBackfill(args []string) int {
	fs := flag.NewFlagSet("backfill", flag.ContinueOnError)
	confPath := fs.String("conf", defaultConfig, "the config file")
	days := fs.Int("days", 1, "days of history to fetch")
	selector, rest := splitSelector(args)
	if err := fs.Parse(rest); err != nil {
		return 2
	}
	if selector == "" && fs.NArg() > 0 {
		selector = fs.Arg(0)
	}
	setupLogging()

	cfg, opts, err := loadOptions(*confPath, selector, nil)
	if err != nil {
		logx.Errorf("backfill: %v", err)
		return 1
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sc, err := svc.NewServiceContext(ctx, *cfg, opts)
	if err != nil {
		logx.Errorf("backfill: %v", err)
		return 1
	}
	defer sc.Close()

	loader := &backfill.Loader{Store: sc.Store, Adapter: sc.Feed}
	if _, err := loader.Load(ctx, opts.Sel, *days); err != nil {
		logx.Errorf("backfill: %v", err)
		return 1
	}
	return 0
}

func setupLogging() {
	logx.MustSetup(logx.LogConf{Encoding: "plain"})
	logx.DisableStat()
}

// loadOptions loads the app config and resolves the trade options with
// precedence defaults < options file < flags. fs may be nil.
func loadOptions(path, selector string, fs *flag.FlagSet) (*config.Config, *options.Options, error) {
	cfg, err := config.Load(confPath(path))
	if err != nil {
		return nil, nil, err
	}
	opts := cfg.Trade.Value
	if opts == nil {
		opts = &options.Options{}
	}
	if selector != "" {
		if err := opts.Set("selector", selector); err != nil {
			return nil, nil, err
		}
	}
	if fs != nil {
		err = opts.ApplyFlags(fs)
	} else {
		err = opts.Finalize()
	}
	if err != nil {
		return nil, nil, err
	}
	return cfg, opts, nil
}

// confPath falls back to the project tree for a relative path that is
// missing from the working directory.
func confPath(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if _, err := os.Stat(path); err == nil {
		return path
	}
	if p, err := confkit.ProjectPath(path); err == nil {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return path
}

// splitSelector accepts the selector before or after the flags.
func splitSelector(args []string) (string, []string) {
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		return args[0], args[1:]
	}
	return "", args
}
