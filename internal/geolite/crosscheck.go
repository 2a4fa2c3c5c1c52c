// Package geolite compares registry country codes with a MaxMind GeoLite
// country database. It only observes; records are never changed.
package geolite

import (
	"fmt"
	"net"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/oschwald/geoip2-golang"

	"rirstats/internal/domain"
)

type countryReader interface {
	Country(ipAddress net.IP) (*geoip2.Country, error)
	Close() error
}

type Checker struct {
	reader countryReader
}

// Open loads the country database at path. An empty path disables the
// check and returns a nil *Checker, which is safe to use.
func Open(path string) (*Checker, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, nil
	}

	reader, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("geolite: open %q: %w", path, err)
	}
	log.Info("GeoLite country database loaded", "path", path)
	return &Checker{reader: reader}, nil
}

// Mismatch reports whether GeoLite places the first address of an ipv4/ipv6
// record in a different country than the registry does. Records without a
// usable country on either side never mismatch.
func (c *Checker) Mismatch(rec domain.AllocationRecord) bool {
	if c == nil || c.reader == nil {
		return false
	}
	if rec.AddressFamily != "ipv4" && rec.AddressFamily != "ipv6" {
		return false
	}
	if rec.CountryCode == "" || strings.EqualFold(rec.CountryCode, "ZZ") {
		return false
	}

	ip := net.ParseIP(rec.RangeStart)
	if ip == nil {
		return false
	}

	country, err := c.reader.Country(ip)
	if err != nil || country == nil || country.Country.IsoCode == "" {
		return false
	}

	return !strings.EqualFold(country.Country.IsoCode, rec.CountryCode)
}

// CountMismatches runs Mismatch over records and logs each hit at debug level.
func (c *Checker) CountMismatches(source string, records []domain.AllocationRecord) int {
	if c == nil {
		return 0
	}

	n := 0
	for _, rec := range records {
		if c.Mismatch(rec) {
			n++
			log.Debug("GeoLite country mismatch", "source", source, "start", rec.RangeStart, "registry_country", rec.CountryCode)
		}
	}
	return n
}

func (c *Checker) Close() error {
	if c == nil || c.reader == nil {
		return nil
	}
	return c.reader.Close()
}
