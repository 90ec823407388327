package main

import (
	"context"
	"fmt"
	"sort"
	"time"

	"turtle/internal/domain"
	"turtle/internal/engine"
	"turtle/internal/store"
	"turtle/internal/walkforward"
)

// saveResults writes the run header, its closed trades, daily balances and
// monthly selections, and returns the new run ID.
func saveResults(ctx context.Context, rs store.ResultStore, market domain.Market, start, end time.Time, p *engine.Portfolio, res *walkforward.Result) (int64, error) {
	id, err := rs.SaveRun(ctx, store.Run{
		Market:         market,
		Start:          start,
		End:            end,
		Instruments:    len(p.Symbols()),
		InitialBalance: res.InitialBalance,
		FinalBalance:   res.FinalBalance,
		CreatedAt:      time.Now().UTC(),
	})
	if err != nil {
		return 0, err
	}

	trades, err := tradeRows(p)
	if err != nil {
		return 0, err
	}
	if err := rs.SaveTrades(ctx, id, trades); err != nil {
		return 0, err
	}
	if err := rs.SaveBalanceHistory(ctx, id, balanceRows(p)); err != nil {
		return 0, err
	}
	if err := rs.SaveSelections(ctx, id, selectionRows(res)); err != nil {
		return 0, err
	}
	return id, nil
}

// tradeRows converts every closed position of p, in symbol then entry order.
func tradeRows(p *engine.Portfolio) ([]store.Trade, error) {
	var out []store.Trade
	for _, sym := range p.Symbols() {
		s, _ := p.Series(sym)
		for _, pos := range p.Trades(sym) {
			if pos.IsOpen() {
				continue
			}
			entry, err := pos.EntryPrice(s)
			if err != nil {
				return nil, fmt.Errorf("%s entry price: %w", sym, err)
			}
			exit, err := pos.ExitPrice(s)
			if err != nil {
				return nil, fmt.Errorf("%s exit price: %w", sym, err)
			}
			out = append(out, store.Trade{
				Symbol:     sym,
				Size:       pos.Size,
				EntryDate:  pos.EntryDate,
				EntryPrice: entry,
				StopPrice:  pos.StopPrice,
				ExitDate:   pos.ExitDate,
				ExitPrice:  exit,
				ExitReason: pos.ExitReason,
			})
		}
	}
	return out, nil
}

func balanceRows(p *engine.Portfolio) []store.Balance {
	history := p.BalanceHistory()
	out := make([]store.Balance, len(history))
	for i, bp := range history {
		out[i] = store.Balance{Date: bp.Date, Balance: bp.Balance}
	}
	return out
}

// selectionRows flattens the active parameter set of every month. Gain is set
// for fresh winners and zero for carried instruments.
func selectionRows(res *walkforward.Result) []store.Selection {
	var out []store.Selection
	for _, m := range res.Months {
		gains := make(map[string]walkforward.Selection, len(m.Selections))
		for _, sel := range m.Selections {
			gains[sel.Symbol] = sel
		}
		symbols := make([]string, 0, len(m.Active))
		for sym := range m.Active {
			symbols = append(symbols, sym)
		}
		sort.Strings(symbols)
		for _, sym := range symbols {
			prm := m.Active[sym]
			row := store.Selection{
				Month:           m.Window.TestStart,
				Symbol:          sym,
				EntryWindow:     prm.EntryWindow,
				ExitWindow:      prm.ExitWindow,
				EntriesDisabled: prm.EntriesDisabled,
			}
			if sel, ok := gains[sym]; ok {
				row.Gain = sel.Gain
			}
			out = append(out, row)
		}
	}
	return out
}
