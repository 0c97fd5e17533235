// Package console maps single keystrokes to operator commands.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Kind identifies what a command does.
type Kind int

const (
	ListKeys Kind = iota
	LimitBuy
	MarketBuy
	LimitSell
	MarketSell
	CancelOrders
	ToggleManual
	UseTaker
	UseMaker
	ListOptions
	ListAllOptions
	ToggleDebug
	PrintStats
	ExitWithStats
	DumpStats
	ToggleAutoDump
	HardExit
)

// Command is one entry of the key table.
type Command struct {
	Key  rune
	Help string
	Kind Kind
}

// Commands is the fixed key table in listing order.
var Commands = []Command{
	{'l', "list available commands", ListKeys},
	{'b', "limit buy", LimitBuy},
	{'B', "market buy", MarketBuy},
	{'s', "limit sell", LimitSell},
	{'S', "market sell", MarketSell},
	{'c', "cancel orders", CancelOrders},
	{'m', "toggle manual trading in live mode", ToggleManual},
	{'T', "use taker orders", UseTaker},
	{'M', "use maker orders", UseMaker},
	{'o', "show current trade options", ListOptions},
	{'O', "show all trade options", ListAllOptions},
	{'L', "toggle debug", ToggleDebug},
	{'P', "print statistics", PrintStats},
	{'X', "exit with statistics", ExitWithStats},
	{'d', "dump statistics to file", DumpStats},
	{'D', "toggle automatic statistics dump", ToggleAutoDump},
	{0x03, "exit immediately", HardExit},
}

// Lookup returns the command bound to r.
func Lookup(r rune) (Command, bool) {
	for _, c := range Commands {
		if c.Key == r {
			return c, true
		}
	}
	return Command{}, false
}

// KeyName renders a key for listings.
func KeyName(r rune) string {
	if r < 0x20 {
		return "ctrl-" + strings.ToLower(string(rune('@'+r)))
	}
	return string(r)
}

// WriteKeys lists the key table on w.
func WriteKeys(w io.Writer) {
	for _, c := range Commands {
		fmt.Fprintf(w, "%-7s %s\n", KeyName(c.Key), c.Help)
	}
}

// Run reads keystrokes from r and sends the mapped commands to out until
// ctx is done or r is exhausted. Unknown keys are ignored. A read that is
// blocked when ctx ends returns only once r yields.
func Run(ctx context.Context, r io.Reader, out chan<- Command) error {
	in := bufio.NewReader(r)
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		key, _, err := in.ReadRune()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("console: read key: %w", err)
		}
		cmd, ok := Lookup(key)
		if !ok {
			continue
		}
		select {
		case out <- cmd:
		case <-ctx.Done():
			return nil
		}
	}
}

// MakeRaw switches f to raw mode when it is a terminal. The returned
// restore func is never nil.
func MakeRaw(f *os.File) (restore func(), raw bool, err error) {
	fd := int(f.Fd())
	if !term.IsTerminal(fd) {
		return func() {}, false, nil
	}
	state, err := term.MakeRaw(fd)
	if err != nil {
		return func() {}, false, fmt.Errorf("console: raw mode: %w", err)
	}
	return func() { _ = term.Restore(fd, state) }, true, nil
}

// CRLF returns a writer that emits "\r\n" for every "\n", for terminals in
// raw mode.
func CRLF(w io.Writer) io.Writer { return crlfWriter{w} }

type crlfWriter struct{ w io.Writer }

func (c crlfWriter) Write(p []byte) (int, error) {
	text := strings.ReplaceAll(string(p), "\r\n", "\n")
	if _, err := io.WriteString(c.w, strings.ReplaceAll(text, "\n", "\r\n")); err != nil {
		return 0, err
	}
	return len(p), nil
}
