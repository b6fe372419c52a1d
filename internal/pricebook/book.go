package pricebook

import (
	"slices"
	"strings"
	"sync"

	"exchlink/internal/model"
)

// Book keeps the latest ticker update per symbol. A newer update for a
// symbol replaces the previous one; nothing is persisted.
type Book struct {
	mu           sync.RWMutex
	latestPrices map[string]model.TickerUpdate
}

// NewBook creates an empty Book.
func NewBook() *Book {
	return &Book{latestPrices: make(map[string]model.TickerUpdate)}
}

// Ticker records update. It satisfies feed.Sink.
func (b *Book) Ticker(update model.TickerUpdate) {
	b.mu.Lock()
	b.latestPrices[update.Symbol] = update
	b.mu.Unlock()
}

// Len returns the number of symbols seen so far.
func (b *Book) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.latestPrices)
}

// Snapshot returns the latest update of every symbol, sorted by symbol.
func (b *Book) Snapshot() []model.TickerUpdate {
	b.mu.RLock()
	out := make([]model.TickerUpdate, 0, len(b.latestPrices))
	for _, u := range b.latestPrices {
		out = append(out, u)
	}
	b.mu.RUnlock()

	slices.SortFunc(out, func(x, y model.TickerUpdate) int { return strings.Compare(x.Symbol, y.Symbol) })
	return out
}
