// Package delegation parses the pipe-delimited "delegated-extended" statistics
// files published by the regional internet registries.
package delegation

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"rirstats/internal/domain"
)

const (
	fieldSeparator = "|"
	fieldCount     = 8
	blockSizeField = 4
)

var (
	// ErrWrongFieldCount reports a line that does not split into exactly eight fields.
	ErrWrongFieldCount = errors.New("delegation: wrong field count")
	// ErrInvalidBlockSize reports a block size that is not an unsigned 32-bit integer.
	ErrInvalidBlockSize = errors.New("delegation: invalid block size")
)

// Report is the result of parsing a whole document together with the number
// of lines that were rejected, by reason.
type Report struct {
	Records          []domain.AllocationRecord
	Lines            int
	WrongFieldCount  int
	InvalidBlockSize int
}

// Dropped is the number of lines that did not produce a record.
func (r Report) Dropped() int {
	return r.WrongFieldCount + r.InvalidBlockSize
}

// ParseLine converts a single data line into an AllocationRecord. The line is
// split on '|' only; terminators are the caller's concern. The eighth field
// (the registry's opaque identifier) is discarded.
func ParseLine(line string) (domain.AllocationRecord, error) {
	parts := strings.Split(line, fieldSeparator)
	if len(parts) != fieldCount {
		return domain.AllocationRecord{}, fmt.Errorf("%w: got %d, want %d", ErrWrongFieldCount, len(parts), fieldCount)
	}

	// A single leading plus sign is accepted; any other sign is not.
	digits, _ := strings.CutPrefix(parts[blockSizeField], "+")
	size, err := strconv.ParseUint(digits, 10, 32)
	if err != nil {
		return domain.AllocationRecord{}, fmt.Errorf("%w %q: %w", ErrInvalidBlockSize, parts[blockSizeField], err)
	}

	return domain.AllocationRecord{
		Registry:      parts[0],
		CountryCode:   parts[1],
		AddressFamily: parts[2],
		RangeStart:    parts[3],
		BlockSize:     uint32(size),
		Date:          parts[5],
		Status:        parts[6],
	}, nil
}

// ParseBatch parses every line of document and returns the records of the
// lines that parsed, in document order. Header, summary and malformed lines
// are skipped.
func ParseBatch(document string) []domain.AllocationRecord {
	return Parse(document).Records
}

// Parse is ParseBatch with rejection counters.
func Parse(document string) Report {
	report := Report{Records: make([]domain.AllocationRecord, 0)}

	for line := range strings.Lines(document) {
		report.Lines++

		rec, err := ParseLine(trimTerminator(line))
		switch {
		case err == nil:
			report.Records = append(report.Records, rec)
		case errors.Is(err, ErrWrongFieldCount):
			report.WrongFieldCount++
		default:
			report.InvalidBlockSize++
		}
	}

	return report
}

// trimTerminator removes a trailing "\n" or "\r\n". A lone '\r' elsewhere in
// the line is kept.
func trimTerminator(line string) string {
	line, found := strings.CutSuffix(line, "\n")
	if !found {
		return line
	}
	return strings.TrimSuffix(line, "\r")
}
