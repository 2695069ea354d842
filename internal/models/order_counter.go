package models

import "github.com/uptrace/bun"

// OrderCounter holds the last sequence issued for one "<PREFIX><YYYY><MM>" bucket.
type OrderCounter struct {
	bun.BaseModel `bun:"table:order_counters"`

	ID  string `bun:"id,pk"`
	Seq int64  `bun:"seq,notnull"`
}
