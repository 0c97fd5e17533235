package trader

import (
	"context"
	"fmt"

	"github.com/zeromicro/go-zero/core/logx"

	"tradeloop/pkg/console"
	"tradeloop/pkg/engine"
	"tradeloop/pkg/exchange"
	"tradeloop/pkg/market"
	"tradeloop/pkg/stats"
)

// apply runs one operator command on the loop goroutine. done reports that
// the loop must end with err.
func (t *Trader) apply(ctx context.Context, cmd console.Command) (done bool, err error) {
	defer t.publish()

	switch cmd.Kind {
	case console.ListKeys:
		console.WriteKeys(t.out)
	case console.LimitBuy, console.MarketBuy, console.LimitSell, console.MarketSell:
		t.manualOrder(ctx, cmd)
	case console.CancelOrders:
		if err := t.engine.CancelOrders(ctx); err != nil {
			logx.WithContext(ctx).Errorf("trader: cancel orders: %v", err)
		} else {
			fmt.Fprintln(t.out, "orders cancelled")
		}
	case console.ToggleManual:
		if t.opts.Paper {
			fmt.Fprintln(t.out, "manual mode is only available in live mode")
			break
		}
		t.opts.Manual = !t.opts.Manual
		fmt.Fprintf(t.out, "manual mode %s\n", onOff(t.opts.Manual))
	case console.UseTaker:
		t.setOrderType(exchange.OrderTaker)
	case console.UseMaker:
		t.setOrderType(exchange.OrderMaker)
	case console.ListOptions, console.ListAllOptions:
		for _, kv := range t.opts.List(cmd.Kind == console.ListOptions) {
			fmt.Fprintf(t.out, "%-24s %v\n", kv.Name, kv.Value)
		}
	case console.ToggleDebug:
		t.opts.Debug = !t.opts.Debug
		if t.opts.Debug {
			logx.SetLevel(logx.DebugLevel)
		} else {
			logx.SetLevel(logx.InfoLevel)
		}
		fmt.Fprintf(t.out, "debug %s\n", onOff(t.opts.Debug))
	case console.PrintStats:
		t.writeLines(stats.Compute(t.statsInput()).Lines())
	case console.ExitWithStats:
		return true, t.finish(context.WithoutCancel(ctx))
	case console.DumpStats:
		t.dump(ctx, false)
	case console.ToggleAutoDump:
		t.autoDump = !t.autoDump
		fmt.Fprintf(t.out, "automatic stats dump %s\n", onOff(t.autoDump))
	case console.HardExit:
		logx.Info("trader: hard exit requested")
		return true, nil
	}
	return false, nil
}

func (t *Trader) manualOrder(ctx context.Context, cmd console.Command) {
	sig := engine.Signal{Side: market.SideBuy}
	if cmd.Kind == console.LimitSell || cmd.Kind == console.MarketSell {
		sig.Side = market.SideSell
	}
	sig.IsMarket = cmd.Kind == console.MarketBuy || cmd.Kind == console.MarketSell
	if err := t.engine.ExecuteSignal(ctx, sig); err != nil {
		logx.WithContext(ctx).Errorf("trader: manual %s: %v", sig.Side, err)
		return
	}
	fmt.Fprintf(t.out, "manual %s command executed\n", cmd.Help)
}

func (t *Trader) setOrderType(ot exchange.OrderType) {
	t.opts.OrderType = ot
	t.opts.OrderTypeRaw = string(ot)
	fmt.Fprintf(t.out, "order type set to %s\n", ot)
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}
