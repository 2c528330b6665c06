package services

import (
	"context"

	"gorm.io/gorm"
)

// withTransaction runs fn as one atomic unit. The tx handle is threaded
// explicitly through every repo call inside fn so the transaction boundary
// stays visible in signatures. A nil db runs fn directly with a nil handle,
// which the in-memory test wiring relies on.
func withTransaction(ctx context.Context, db *gorm.DB, fn func(tx *gorm.DB) error) error {
	if db == nil {
		return fn(nil)
	}
	return db.WithContext(ctx).Transaction(fn)
}
