package models

import (
	"time"
)

// Corporation is one entry of the regulator's corp-code directory.
type Corporation struct {
	CorpCode    CorpCode `json:"corp_code"`
	Name        string   `json:"corp_name"`
	EnglishName string   `json:"corp_eng_name,omitempty"`
	StockCode   string   `json:"stock_code,omitempty"` // empty for unlisted entities
	ModifyDate  string   `json:"modify_date,omitempty"` // YYYYMMDD
}

// Listed reports whether the entity trades on an exchange.
func (c Corporation) Listed() bool {
	return c.StockCode != ""
}

// DirectorySnapshot is the persisted copy of the corp-code directory.
type DirectorySnapshot struct {
	Corporations []Corporation
	FetchedAt    time.Time
}

// Empty reports whether the snapshot has never been populated.
func (s *DirectorySnapshot) Empty() bool {
	return s == nil || len(s.Corporations) == 0
}

// ProcessingState records the outcome of a batch warm-up run for one company.
type ProcessingState string

const (
	ProcessingDone   ProcessingState = "done"
	ProcessingFailed ProcessingState = "failed"
)

// ProcessingStatus is the batch warm-up bookkeeping row for one company.
type ProcessingStatus struct {
	CorpCode    CorpCode        `json:"corp_code"`
	State       ProcessingState `json:"state"`
	Message     string          `json:"message,omitempty"`
	ProcessedAt time.Time       `json:"processed_at"`
}

// Candidate is a scored directory match returned by name search.
type Candidate struct {
	Corporation
	Score float64 `json:"score"`
}
