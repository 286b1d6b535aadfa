package models

// RunCycleRequest triggers one ingestion+feature+signal cycle. An empty
// symbol list means every configured instrument.
type RunCycleRequest struct {
	Symbols []string `json:"symbols" query:"symbols"`
	AsOf    string   `json:"as_of" query:"as_of"` // RFC3339 or unix seconds; empty = now
}

// SignalsRequest queries the signal audit log.
type SignalsRequest struct {
	Symbol string `json:"symbol" query:"symbol" validate:"required"`
	From   string `json:"from" query:"from"`
	To     string `json:"to" query:"to"`
	Limit  int    `json:"limit" query:"limit" default:"100" validate:"gte=1,lte=1000"`
}

// FeaturesRequest queries materialized feature records.
type FeaturesRequest struct {
	Symbol  string `json:"symbol" query:"symbol" validate:"required"`
	Version string `json:"version" query:"version" default:"v1"`
	From    string `json:"from" query:"from"`
	To      string `json:"to" query:"to"`
}
