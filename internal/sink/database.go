package sink

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"

	"rirstats/internal/database"
	"rirstats/internal/domain"
	"rirstats/internal/netblock"
)

// Database replaces a source's stored allocations with each new batch.
type Database struct{}

func NewDatabase() *Database {
	return &Database{}
}

func (d *Database) Emit(ctx context.Context, batch domain.AllocationBatch) error {
	rows := StoredRows(batch)

	removed, err := database.ReplaceSourceAllocations(ctx, batch.Source, rows)
	if err != nil {
		return fmt.Errorf("store %s: %w", batch.Source, err)
	}

	log.Debug("Stored allocations", "source", batch.Source, "rows", len(rows), "replaced", removed)
	return nil
}

// StoredRows converts a batch to database rows with their CIDR prefixes.
func StoredRows(batch domain.AllocationBatch) []domain.StoredAllocation {
	rows := make([]domain.StoredAllocation, 0, len(batch.Records))
	invalid := 0

	for _, rec := range batch.Records {
		row := domain.NewStoredAllocation(batch.Source, rec, batch.FetchedAt)

		prefixes, err := netblock.Strings(rec)
		switch {
		case err == nil:
			row.Prefixes = prefixes
		case errors.Is(err, netblock.ErrInvalidRange):
			invalid++
		}

		rows = append(rows, row)
	}

	if invalid > 0 {
		log.Debug("Records without usable prefixes", "source", batch.Source, "count", invalid)
	}
	return rows
}
