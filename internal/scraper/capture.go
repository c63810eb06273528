package scraper

import (
	"sync"

	"tenderwatch/sync-service/internal/model"
)

// captureCell holds the first listing seen in page traffic. Observer
// callbacks may race; only the first Offer is kept.
type captureCell struct {
	once    sync.Once
	done    chan struct{}
	records []model.RawNotice
	source  string
}

func newCaptureCell() *captureCell {
	return &captureCell{done: make(chan struct{})}
}

// Offer stores records unless a value is already held. It reports whether
// this call won.
func (c *captureCell) Offer(source string, records []model.RawNotice) bool {
	won := false
	c.once.Do(func() {
		c.records = records
		c.source = source
		won = true
		close(c.done)
	})
	return won
}

// Done is closed once a value has been stored.
func (c *captureCell) Done() <-chan struct{} { return c.done }

// Filled reports whether a value has been stored, without blocking.
func (c *captureCell) Filled() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Value returns the stored records and the URL they came from.
// It must only be called after Done is closed.
func (c *captureCell) Value() ([]model.RawNotice, string) {
	<-c.done
	return c.records, c.source
}
