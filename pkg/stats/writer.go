package stats

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"tradeloop/pkg/checkpoint"
	"tradeloop/pkg/market"
)

// Artifact is the dump consumed by offline renderers.
type Artifact struct {
	Selector  string               `json:"selector"`
	Mode      checkpoint.Mode      `json:"mode"`
	Generated time.Time            `json:"generated"`
	Report    Report               `json:"report"`
	Lines     []string             `json:"lines"`
	Periods   []market.Period      `json:"periods"`
	MyTrades  []checkpoint.MyTrade `json:"my_trades"`
	Options   map[string]any       `json:"options,omitempty"`
}

// NewArtifact bundles a report with its history. The oldest minPeriods
// periods are warm-up and left out.
func NewArtifact(in Input, r Report, mode checkpoint.Mode, minPeriods int, opts map[string]any) Artifact {
	keep := len(in.Lookback) - minPeriods
	if keep < 0 {
		keep = 0
	}
	periods := make([]market.Period, keep)
	copy(periods, in.Lookback[:keep])
	trades := make([]checkpoint.MyTrade, len(in.MyTrades))
	copy(trades, in.MyTrades)
	return Artifact{
		Selector: in.Selector,
		Mode:     mode,
		Report:   r,
		Lines:    r.Lines(),
		Periods:  periods,
		MyTrades: trades,
		Options:  opts,
	}
}

// Writer persists artifacts as JSON files.
type Writer struct {
	dir      string
	filename string
	nowFn    func() time.Time
}

// NewWriter constructs a writer rooted at dir. filename overrides the
// generated name; "none" disables dumping.
func NewWriter(dir, filename string) *Writer {
	if dir == "" {
		dir = "."
	}
	return &Writer{dir: dir, filename: strings.TrimSpace(filename), nowFn: time.Now}
}

// Enabled reports whether Dump writes anything.
func (w *Writer) Enabled() bool { return w.filename != "none" }

// Dump writes a. Intermediate dumps reuse one file per day; the final dump
// gets a second-resolution name. It returns the written path, or "" when
// dumping is disabled.
func (w *Writer) Dump(a Artifact, final bool) (string, error) {
	if !w.Enabled() {
		return "", nil
	}
	now := w.nowFn().UTC()
	if a.Generated.IsZero() {
		a.Generated = now
	}
	path := w.filename
	if path == "" {
		prefix := "stats/trade_result_"
		if a.Mode == checkpoint.ModePaper {
			prefix = "simulations/paper_result_"
		}
		stamp := now.Format("060102")
		if final {
			stamp = now.Format("060102_150405")
		}
		path = prefix + a.Selector + "_" + stamp + "_UTC.json"
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(w.dir, path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("stats: create dump dir: %w", err)
	}
	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return "", fmt.Errorf("stats: encode artifact: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("stats: write %s: %w", path, err)
	}
	return path, nil
}
