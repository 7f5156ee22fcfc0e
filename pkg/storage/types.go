package storage

import "time"

// OrderQuery filters Orders. Zero values mean no limit.
type OrderQuery struct {
	Limit int
	Since time.Time
}

// Stats summarises the database contents.
type Stats struct {
	Preferences  int
	ActiveLists  int
	Lists        int
	Orders       int
	PricePoints  int
	CacheEntries int
	LastOrderAt  time.Time
}
