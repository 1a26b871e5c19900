package dispatch

import (
	"math/rand"
	"sync"
	"time"
)

// CreatedTokenRecord is one entry of the in-memory created-token index.
type CreatedTokenRecord struct {
	Token     string
	CreatedAt time.Time
}

// TokenIndex is the ordered in-memory sequence of tokens seen being
// created. It is an auxiliary lookup (e.g. picking a random known token in
// simulation runs), never pruned by time, only clearable in bulk.
type TokenIndex struct {
	mu      sync.Mutex
	records []CreatedTokenRecord
}

// NewTokenIndex returns an empty index.
func NewTokenIndex() *TokenIndex {
	return &TokenIndex{}
}

// Append records a newly created token.
func (x *TokenIndex) Append(token string, createdAt time.Time) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.records = append(x.records, CreatedTokenRecord{Token: token, CreatedAt: createdAt})
}

// Len reports the number of recorded tokens.
func (x *TokenIndex) Len() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return len(x.records)
}

// All returns a copy of the records in insertion order.
func (x *TokenIndex) All() []CreatedTokenRecord {
	x.mu.Lock()
	defer x.mu.Unlock()
	out := make([]CreatedTokenRecord, len(x.records))
	copy(out, x.records)
	return out
}

// Random picks a uniformly random known token; ok is false when the index
// is empty.
func (x *TokenIndex) Random() (CreatedTokenRecord, bool) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if len(x.records) == 0 {
		return CreatedTokenRecord{}, false
	}
	return x.records[rand.Intn(len(x.records))], true
}

// Clear drops every record.
func (x *TokenIndex) Clear() {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.records = nil
}
