// Package report turns a finished simulation into JSON-lines events and
// ships them to a log collector over TCP, one connection per report.
package report

import "time"

// Names of the reports a Publisher can send.
const (
	Balance    = "balance"
	Stock      = "stock"
	Operations = "operations"
	Aggregated = "aggregated"
	Trade      = "trade"
)

// Names lists every report in publishing order.
var Names = []string{Balance, Stock, Operations, Aggregated, Trade}

const dateLayout = "20060102"

// BalanceEvent is the cash balance at the end of a simulated day.
type BalanceEvent struct {
	IndexName string  `json:"indexName"`
	Date      string  `json:"date"`
	Balance   float64 `json:"balance"`
}

// StockEvent is one daily bar of an instrument.
type StockEvent struct {
	IndexName     string  `json:"indexName"`
	Code          string  `json:"code"`
	Date          string  `json:"date"`
	High          float64 `json:"high"`
	Low           float64 `json:"low"`
	Close         float64 `json:"close"`
	Volume        float64 `json:"volume"`
	UnixTimestamp int64   `json:"unixTimestamp"`
}

// OperationEvent is one side of a round trip. Value is the entry price on a
// BUY and the exit price on a SELL; Gain is only set on the SELL.
type OperationEvent struct {
	IndexName     string  `json:"indexName"`
	Type          string  `json:"type"`
	StockCode     string  `json:"stockCode"`
	Date          string  `json:"date"`
	Size          float64 `json:"size"`
	StopPos       float64 `json:"stopPos"`
	Value         float64 `json:"value"`
	Profitable    bool    `json:"profitable"`
	Status        string  `json:"status"`
	Gain          float64 `json:"gain"`
	UnixTimestamp int64   `json:"unixTimestamp"`
}

// AggregatedEvent joins the close of a day with the trade opened or closed
// on it. Fields without a trade that day are null.
type AggregatedEvent struct {
	IndexName     string   `json:"indexName"`
	Code          string   `json:"code"`
	Date          string   `json:"date"`
	CloseValue    *float64 `json:"closeValue"`
	BuyValue      *float64 `json:"buyValue"`
	SellValue     *float64 `json:"sellValue"`
	Size          *float64 `json:"size"`
	StopPos       *float64 `json:"stopPos"`
	UnixTimestamp int64    `json:"unixTimestamp"`
}

// TradeEvent is one round trip. BuyDate and SellDate are Unix milliseconds.
type TradeEvent struct {
	IndexName string  `json:"indexName"`
	Date      string  `json:"date"`
	BuyDate   int64   `json:"buyDate"`
	SellDate  int64   `json:"sellDate"`
	StockCode string  `json:"stockCode"`
	Size      float64 `json:"size"`
	StopPos   float64 `json:"stopPos"`
}

func ptr(v float64) *float64 { return &v }

func unixMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}
