package database

import (
	"context"
	"errors"

	"rirstats/internal/domain"

	"gorm.io/gorm"
)

const allocationInsertBatchSize = 500

var errNotInitialised = errors.New("database not initialised")

func conn(ctx context.Context) (*gorm.DB, error) {
	if DB == nil {
		return nil, errNotInitialised
	}
	if ctx != nil {
		return DB.WithContext(ctx), nil
	}
	return DB, nil
}

// ReplaceSourceAllocations swaps every stored row of source for rows in a
// single transaction. Rows of other sources are untouched.
func ReplaceSourceAllocations(ctx context.Context, source string, rows []domain.StoredAllocation) (int64, error) {
	db, err := conn(ctx)
	if err != nil {
		return 0, err
	}

	var removed int64
	err = db.Transaction(func(tx *gorm.DB) error {
		res := tx.Where("source = ?", source).Delete(&domain.StoredAllocation{})
		if res.Error != nil {
			return res.Error
		}
		removed = res.RowsAffected

		if len(rows) == 0 {
			return nil
		}
		for i := range rows {
			rows[i].ID = 0
			rows[i].Source = source
		}
		return tx.CreateInBatches(&rows, allocationInsertBatchSize).Error
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

// CountAllocationsBySource reports the number of stored rows per source.
func CountAllocationsBySource(ctx context.Context) (map[string]int64, error) {
	db, err := conn(ctx)
	if err != nil {
		return nil, err
	}

	var counts []struct {
		Source string
		Total  int64
	}
	if err := db.Model(&domain.StoredAllocation{}).
		Select("source, COUNT(*) AS total").
		Group("source").
		Scan(&counts).Error; err != nil {
		return nil, err
	}

	out := make(map[string]int64, len(counts))
	for _, c := range counts {
		out[c.Source] = c.Total
	}
	return out, nil
}
