package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/quantevo/tradedesk/internal/domain"
)

// BookArchiver serialises stacked order-book snapshots to JSON and stores
// them under "books/{ticker}/{RFC3339 timestamp}.json".
type BookArchiver struct {
	writer domain.BlobWriter
	prefix string
}

// NewBookArchiver creates an archiver writing through w. prefix defaults to
// "books".
func NewBookArchiver(w domain.BlobWriter, prefix string) *BookArchiver {
	if prefix == "" {
		prefix = "books"
	}
	return &BookArchiver{writer: w, prefix: prefix}
}

// Archive stores one snapshot.
func (a *BookArchiver) Archive(ctx context.Context, snap domain.BookSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("s3blob: marshal snapshot %s: %w", snap.Ticker, err)
	}
	key := a.Key(snap.Ticker, snap.Timestamp)
	return a.writer.Put(ctx, key, bytes.NewReader(data), "application/json")
}

// Key returns the object key for a ticker's snapshot at ts.
func (a *BookArchiver) Key(ticker string, ts time.Time) string {
	return fmt.Sprintf("%s/%s/%s.json", a.prefix, ticker, ts.UTC().Format(time.RFC3339))
}
