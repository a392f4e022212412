package models

import (
	"sync"
	"time"
)

// RawModelOutput is the untrusted triple returned by a vision model.
type RawModelOutput struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Keywords    []string `json:"keywords"`
	Error       string   `json:"error,omitempty"`
}

// Row is one finished record. A row with Error set carries no metadata.
type Row struct {
	Filename    string    `json:"filename"`
	Platform    string    `json:"platform"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Keywords    []string  `json:"keywords"`
	AssetType   AssetType `json:"assetType"`
	Extension   string    `json:"extension"`
	Error       string    `json:"error,omitempty"`
}

func (r Row) Failed() bool {
	return r.Error != ""
}

func SuccessRow(req GenerationRequest, title, description string, keywords []string, asset AssetType) Row {
	if keywords == nil {
		keywords = []string{}
	}
	return Row{
		Filename:    req.Filename,
		Platform:    req.Platform.Label(),
		Title:       title,
		Description: description,
		Keywords:    keywords,
		AssetType:   asset,
		Extension:   req.Extension,
	}
}

func ErrorRow(req GenerationRequest, asset AssetType, message string) Row {
	if message == "" {
		message = "generation failed"
	}
	return Row{
		Filename:  req.Filename,
		Platform:  req.Platform.Label(),
		Keywords:  []string{},
		AssetType: asset,
		Extension: req.Extension,
		Error:     message,
	}
}

// ResultList accumulates rows for one run. It only grows or replaces by filename.
type ResultList struct {
	mu    sync.Mutex
	rows  []Row
	index map[string]int
}

func NewResultList(rows ...Row) *ResultList {
	l := &ResultList{index: make(map[string]int)}
	for _, r := range rows {
		l.Put(r)
	}
	return l
}

// Put appends the row, or replaces an existing row with the same filename.
func (l *ResultList) Put(row Row) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.index == nil {
		l.index = make(map[string]int)
	}
	if i, ok := l.index[row.Filename]; ok {
		l.rows[i] = row
		return
	}
	l.index[row.Filename] = len(l.rows)
	l.rows = append(l.rows, row)
}

func (l *ResultList) Rows() []Row {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Row, len(l.rows))
	copy(out, l.rows)
	return out
}

// Failed returns exactly the error rows.
func (l *ResultList) Failed() []Row {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Row
	for _, r := range l.rows {
		if r.Failed() {
			out = append(out, r)
		}
	}
	return out
}

func (l *ResultList) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.rows)
}

type RetryStatus string

const (
	RetryStatusRetrying RetryStatus = "retrying"
	RetryStatusSuccess  RetryStatus = "success"
	RetryStatusFailed   RetryStatus = "failed"
)

// RetryEvent is an observational notification emitted by the model-call retrier.
type RetryEvent struct {
	RequestID   string        `json:"requestId"`
	Filename    string        `json:"filename"`
	Attempt     int           `json:"attempt"`
	MaxAttempts int           `json:"maxAttempts"`
	ErrorType   string        `json:"errorType,omitempty"`
	Delay       time.Duration `json:"delay,omitempty"`
	Status      RetryStatus   `json:"status"`
}
