package cli

import (
	"fmt"
	"strings"

	"github.com/zeromicro/go-zero/core/logx"

	"tradeloop/internal/config"
	"tradeloop/pkg/confkit"
	"tradeloop/pkg/options"
)

// ConfigSummaryLines returns human readable lines describing the loaded app config.
func ConfigSummaryLines(cfg *config.Config) []string {
	if cfg == nil {
		return []string{"Configuration: <nil>"}
	}

	lines := []string{
		fmt.Sprintf("Environment: %s", cfg.Env),
		fmt.Sprintf("Checkpoint store: %s", cfg.Store),
		fmt.Sprintf("Data path: %s", cfg.DataDir()),
		fmt.Sprintf("Postgres: %s", presence(cfg.Postgres.DSN != "")),
		fmt.Sprintf("Redis: %s", presence(strings.TrimSpace(cfg.Redis.Host) != "")),
		fmt.Sprintf("TTL (short/medium/long): %ds / %ds / %ds", cfg.TTL.Short, cfg.TTL.Medium, cfg.TTL.Long),
		statusLine(cfg.Status),
		sectionLine("Trade options", cfg.Trade),
		sectionLine("Exchange config", cfg.Exchange),
		sectionLine("LLM config", cfg.LLM),
	}

	return lines
}

// LogConfigSummary emits the configuration summary using logx.
func LogConfigSummary(cfg *config.Config) {
	lines := ConfigSummaryLines(cfg)
	if len(lines) == 0 {
		return
	}
	logx.Info("configuration summary")
	for _, line := range lines {
		logx.Infof("config • %s", line)
	}
}

// OptionLines renders the effective trade options, one per line.
func OptionLines(opts *options.Options, short bool) []string {
	if opts == nil {
		return nil
	}
	kvs := opts.List(short)
	lines := make([]string, 0, len(kvs))
	for _, kv := range kvs {
		lines = append(lines, fmt.Sprintf("%s: %v", kv.Name, kv.Value))
	}
	return lines
}

// LogOptions emits the effective trade options using logx.
func LogOptions(opts *options.Options) {
	for _, line := range OptionLines(opts, false) {
		logx.Infof("option • %s", line)
	}
}

func presence(ok bool) string {
	if ok {
		return "configured"
	}
	return "not configured"
}

func statusLine(s config.StatusConf) string {
	if !s.Enabled {
		return "Status API: disabled"
	}
	return fmt.Sprintf("Status API: %s:%d", s.Host, s.Port)
}

func sectionLine[T any](name string, section confkit.Section[T]) string {
	switch {
	case strings.TrimSpace(section.File) != "":
		return fmt.Sprintf("%s: %s", name, section.File)
	case section.Value != nil:
		return fmt.Sprintf("%s: inline", name)
	default:
		return fmt.Sprintf("%s: not configured", name)
	}
}
