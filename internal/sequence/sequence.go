// Package sequence issues human-facing order numbers of the form
// <prefix><YYYY><MM><seq>, with seq counting from 1 in every month.
package sequence

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var ErrUnavailable = errors.New("order counter unavailable")

// CounterStore atomically increments the counter of a bucket, creating it
// at 1, and returns the new value. Implementations must be safe across
// processes.
type CounterStore interface {
	IncrementCounter(ctx context.Context, bucket string) (int64, error)
}

type Generator struct {
	prefix string
	store  CounterStore
	now    func() time.Time
}

func NewGenerator(prefix string, store CounterStore) *Generator {
	return &Generator{
		prefix: prefix,
		store:  store,
		now:    time.Now,
	}
}

// SetClock replaces the time source used to pick the month bucket.
func (g *Generator) SetClock(now func() time.Time) {
	g.now = now
}

// Bucket is the counter key for t: prefix, year and month in UTC.
func Bucket(prefix string, t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("%s%04d%02d", prefix, t.Year(), int(t.Month()))
}

// Format renders an order number. seq is padded to three digits and grows
// past them when a month has more than 999 orders.
func Format(bucket string, seq int64) string {
	return fmt.Sprintf("%s%03d", bucket, seq)
}

// Next returns a number no other caller has received. It never guesses: a
// store failure is returned as ErrUnavailable.
func (g *Generator) Next(ctx context.Context) (string, error) {
	bucket := Bucket(g.prefix, g.now())

	seq, err := g.store.IncrementCounter(ctx, bucket)
	if err != nil {
		return "", fmt.Errorf("%w: bucket %s: %v", ErrUnavailable, bucket, err)
	}
	if seq < 1 {
		return "", fmt.Errorf("%w: bucket %s returned %d", ErrUnavailable, bucket, seq)
	}
	return Format(bucket, seq), nil
}
