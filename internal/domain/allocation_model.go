package domain

import (
	"fmt"
	"time"
)

// AllocationRecord is one data line of a registry "delegated-extended" file:
// a block of addresses or AS numbers handed to a country at a point in time.
// Every field except BlockSize is kept verbatim as published.
type AllocationRecord struct {
	Registry      string
	CountryCode   string
	AddressFamily string // "ipv4", "ipv6" or "asn" in practice
	RangeStart    string
	BlockSize     uint32
	Date          string // YYYYMMDD as published
	Status        string
}

// GoString renders the record for %#v with quoted strings and a decimal
// block size.
func (r AllocationRecord) GoString() string {
	return fmt.Sprintf(
		"domain.AllocationRecord{Registry:%q, CountryCode:%q, AddressFamily:%q, RangeStart:%q, BlockSize:%d, Date:%q, Status:%q}",
		r.Registry, r.CountryCode, r.AddressFamily, r.RangeStart, r.BlockSize, r.Date, r.Status,
	)
}

// AllocationBatch is the parsed content of one registry source.
type AllocationBatch struct {
	Source    string
	URL       string
	FetchedAt time.Time
	Records   []AllocationRecord

	Lines            int
	Dropped          int
	WrongFieldCount  int
	InvalidBlockSize int
}

// StoredAllocation persists an AllocationRecord for the source it was fetched from.
type StoredAllocation struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"`

	// Source is the configured registry name the record was fetched under.
	Source string `gorm:"size:64;not null;index"`

	Registry      string `gorm:"size:64;not null;default:''"`
	CountryCode   string `gorm:"size:8;not null;default:''"`
	AddressFamily string `gorm:"size:16;not null;default:'';index"`
	RangeStart    string `gorm:"size:64;not null;default:''"`
	BlockSize     uint32 `gorm:"not null"`
	Date          string `gorm:"size:16;not null;default:''"`
	Status        string `gorm:"size:32;not null;default:''"`

	// Prefixes holds the CIDR blocks covered by ipv4/ipv6 records.
	Prefixes StringList `gorm:"type:text"`

	FetchedAt time.Time `gorm:"not null;index"`
}

func NewStoredAllocation(source string, rec AllocationRecord, fetchedAt time.Time) StoredAllocation {
	return StoredAllocation{
		Source:        source,
		Registry:      rec.Registry,
		CountryCode:   rec.CountryCode,
		AddressFamily: rec.AddressFamily,
		RangeStart:    rec.RangeStart,
		BlockSize:     rec.BlockSize,
		Date:          rec.Date,
		Status:        rec.Status,
		FetchedAt:     fetchedAt,
	}
}
