package report

import (
	"fmt"

	"turtle/internal/domain"
	"turtle/internal/engine"
)

// BalanceEvents reports the end-of-day balances of p.
func BalanceEvents(p *engine.Portfolio, index string) []any {
	history := p.BalanceHistory()
	out := make([]any, 0, len(history))
	for _, h := range history {
		out = append(out, BalanceEvent{
			IndexName: index,
			Date:      h.Date.Format(dateLayout),
			Balance:   h.Balance.InexactFloat64(),
		})
	}
	return out
}

// StockEvents reports every bar of every instrument of p.
func StockEvents(p *engine.Portfolio, index string) []any {
	var out []any
	for _, sym := range p.Symbols() {
		s, _ := p.Series(sym)
		for _, b := range s.Bars() {
			out = append(out, StockEvent{
				IndexName:     index,
				Code:          sym,
				Date:          b.Date.Format(dateLayout),
				High:          b.High,
				Low:           b.Low,
				Close:         b.Close,
				Volume:        b.Volume,
				UnixTimestamp: b.Date.Unix(),
			})
		}
	}
	return out
}

// OperationEvents reports a BUY and a SELL event per closed trade of p.
// Open trades are skipped.
func OperationEvents(p *engine.Portfolio, index string) ([]any, error) {
	var out []any
	for _, sym := range p.Symbols() {
		s, _ := p.Series(sym)
		for _, pos := range p.Trades(sym) {
			if pos.IsOpen() {
				continue
			}
			buy, err := pos.EntryPrice(s)
			if err != nil {
				return nil, fmt.Errorf("pricing %s: %w", pos, err)
			}
			sell, err := pos.ExitPrice(s)
			if err != nil {
				return nil, fmt.Errorf("pricing %s: %w", pos, err)
			}
			profitable := sell > buy
			status := "unprofitable"
			if profitable {
				status = "profitable"
			}
			size := float64(pos.Size)

			out = append(out,
				OperationEvent{
					IndexName:     index,
					Type:          string(domain.TradeSideBuy),
					StockCode:     sym,
					Date:          pos.EntryDate.Format(dateLayout),
					Size:          size,
					StopPos:       pos.StopPrice,
					Value:         buy,
					Profitable:    profitable,
					Status:        status,
					UnixTimestamp: pos.EntryDate.Unix(),
				},
				OperationEvent{
					IndexName:     index,
					Type:          string(domain.TradeSideSell),
					StockCode:     sym,
					Date:          pos.ExitDate.Format(dateLayout),
					Size:          size,
					StopPos:       pos.StopPrice,
					Value:         sell,
					Profitable:    profitable,
					Status:        status,
					Gain:          (sell - buy) * size,
					UnixTimestamp: pos.ExitDate.Unix(),
				},
			)
		}
	}
	return out, nil
}

// AggregatedEvents reports, for every bar of every instrument of p, the close
// together with the trade opened or closed that day.
func AggregatedEvents(p *engine.Portfolio, index string) ([]any, error) {
	var out []any
	for _, sym := range p.Symbols() {
		s, _ := p.Series(sym)
		log, _ := p.TradeLog(sym)
		for _, b := range s.Bars() {
			ev := AggregatedEvent{
				IndexName:     index,
				Code:          sym,
				Date:          b.Date.Format(dateLayout),
				CloseValue:    ptr(b.Close),
				UnixTimestamp: b.Date.Unix(),
			}
			if pos, ok := log.OpenedAt(b.Date); ok {
				buy, err := pos.EntryPrice(s)
				if err != nil {
					return nil, fmt.Errorf("pricing %s: %w", pos, err)
				}
				ev.BuyValue = ptr(buy)
				ev.Size = ptr(float64(pos.Size))
				ev.StopPos = ptr(pos.StopPrice)
			}
			if pos, ok := log.ClosedAt(b.Date); ok {
				sell, err := pos.ExitPrice(s)
				if err != nil {
					return nil, fmt.Errorf("pricing %s: %w", pos, err)
				}
				ev.SellValue = ptr(sell)
				ev.Size = ptr(float64(pos.Size))
				ev.StopPos = ptr(pos.StopPrice)
			}
			out = append(out, ev)
		}
	}
	return out, nil
}

// TradeEvents reports one event per trade of p, open trades included.
func TradeEvents(p *engine.Portfolio, index string) []any {
	var out []any
	for _, sym := range p.Symbols() {
		for _, pos := range p.Trades(sym) {
			out = append(out, TradeEvent{
				IndexName: index,
				Date:      pos.EntryDate.Format(dateLayout),
				BuyDate:   unixMillis(pos.EntryDate),
				SellDate:  unixMillis(pos.ExitDate),
				StockCode: sym,
				Size:      float64(pos.Size),
				StopPos:   pos.StopPrice,
			})
		}
	}
	return out
}

// Events builds the named report for p.
func Events(name string, p *engine.Portfolio, index string) ([]any, error) {
	switch name {
	case Balance:
		return BalanceEvents(p, index), nil
	case Stock:
		return StockEvents(p, index), nil
	case Operations:
		return OperationEvents(p, index)
	case Aggregated:
		return AggregatedEvents(p, index)
	case Trade:
		return TradeEvents(p, index), nil
	default:
		return nil, fmt.Errorf("unknown report %q", name)
	}
}
