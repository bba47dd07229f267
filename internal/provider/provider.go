package provider

import (
	"context"
	"time"
)

// Quote is the normalized shape returned by all providers.
// Fields a source does not supply stay zero; they are never fabricated.
type Quote struct {
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	Currency  string    `json:"currency"`
	Source    string    `json:"source"`
	Bid       float64   `json:"bid,omitempty"`
	Ask       float64   `json:"ask,omitempty"`
	High24h   float64   `json:"high_24h,omitempty"`
	Low24h    float64   `json:"low_24h,omitempty"`
	Change    float64   `json:"change,omitempty"`
	ChangePct float64   `json:"change_pct,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type Provider interface {
	Name() string
	Fetch(ctx context.Context, symbol string) (Quote, error)
}
