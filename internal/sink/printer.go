// Package sink holds the destinations a collected registry batch is emitted to.
package sink

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"

	"rirstats/internal/domain"
)

// Printer writes every record in Go's debug representation, one per line.
type Printer struct {
	mu sync.Mutex
	w  io.Writer
}

func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w}
}

func (p *Printer) Emit(_ context.Context, batch domain.AllocationBatch) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	bw := bufio.NewWriter(p.w)
	for _, rec := range batch.Records {
		if _, err := fmt.Fprintf(bw, "%#v\n", rec); err != nil {
			return fmt.Errorf("print %s: %w", batch.Source, err)
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("print %s: %w", batch.Source, err)
	}
	return nil
}
