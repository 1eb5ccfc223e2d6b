package model

import "github.com/shopspring/decimal"

// -----------------------------------------------------------------------------
// Streaming Types
// -----------------------------------------------------------------------------

// Tick is a single real-time price/volume update for one symbol.
type Tick struct {
	Symbol        string          `json:"symbol"`
	Price         decimal.Decimal `json:"price"`
	Change        decimal.Decimal `json:"change"`
	ChangePercent decimal.Decimal `json:"changePercent"`
	Volume        int64           `json:"volume"`
	Timestamp     int64           `json:"timestamp"` // ms since epoch
}

// -----------------------------------------------------------------------------
// Snapshot Types
// -----------------------------------------------------------------------------

// PriceLevel is one price/size pair in an order book.
type PriceLevel struct {
	Price decimal.Decimal `json:"price"`
	Size  decimal.Decimal `json:"size"`
}

// OrderBook is a depth-of-market snapshot. It arrives at a low rate and is
// delivered to the data sink without coalescing.
type OrderBook struct {
	Symbol    string       `json:"symbol"`
	Bids      []PriceLevel `json:"bids"`
	Asks      []PriceLevel `json:"asks"`
	Timestamp int64        `json:"timestamp"` // ms since epoch
}

// BestBid returns the first bid level, if any.
func (b OrderBook) BestBid() (PriceLevel, bool) {
	if len(b.Bids) == 0 {
		return PriceLevel{}, false
	}
	return b.Bids[0], true
}

// BestAsk returns the first ask level, if any.
func (b OrderBook) BestAsk() (PriceLevel, bool) {
	if len(b.Asks) == 0 {
		return PriceLevel{}, false
	}
	return b.Asks[0], true
}

// Spread returns best ask minus best bid. ok is false when either side is empty.
func (b OrderBook) Spread() (spread decimal.Decimal, ok bool) {
	bid, hasBid := b.BestBid()
	ask, hasAsk := b.BestAsk()
	if !hasBid || !hasAsk {
		return decimal.Zero, false
	}
	return ask.Price.Sub(bid.Price), true
}
