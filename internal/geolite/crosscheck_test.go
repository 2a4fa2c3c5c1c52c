package geolite

import (
	"errors"
	"net"
	"testing"

	"github.com/oschwald/geoip2-golang"

	"rirstats/internal/domain"
)

type fakeReader struct {
	byIP map[string]string
}

func (f fakeReader) Country(ip net.IP) (*geoip2.Country, error) {
	iso, ok := f.byIP[ip.String()]
	if !ok {
		return nil, errors.New("not found")
	}
	c := &geoip2.Country{}
	c.Country.IsoCode = iso
	return c, nil
}

func (fakeReader) Close() error { return nil }

func TestOpenEmptyPathDisablesCheck(t *testing.T) {
	c, err := Open("  ")
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	if c != nil {
		t.Fatal("Open with empty path should return nil checker")
	}
	if c.Mismatch(domain.AllocationRecord{AddressFamily: "ipv4", RangeStart: "1.1.1.0", CountryCode: "AU"}) {
		t.Fatal("nil checker reported a mismatch")
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close on nil checker returned %v", err)
	}
}

func TestOpenMissingFile(t *testing.T) {
	if _, err := Open("/nonexistent/GeoLite2-Country.mmdb"); err == nil {
		t.Fatal("expected error for missing database")
	}
}

func TestMismatch(t *testing.T) {
	c := &Checker{reader: fakeReader{byIP: map[string]string{
		"24.152.8.0": "BR",
		"10.0.0.0":   "US",
		"2001:200::": "JP",
	}}}

	cases := []struct {
		name string
		rec  domain.AllocationRecord
		want bool
	}{
		{"matching ipv4", domain.AllocationRecord{AddressFamily: "ipv4", RangeStart: "24.152.8.0", CountryCode: "br"}, false},
		{"differing ipv4", domain.AllocationRecord{AddressFamily: "ipv4", RangeStart: "10.0.0.0", CountryCode: "CA"}, true},
		{"matching ipv6", domain.AllocationRecord{AddressFamily: "ipv6", RangeStart: "2001:200::", CountryCode: "JP"}, false},
		{"asn ignored", domain.AllocationRecord{AddressFamily: "asn", RangeStart: "1230", CountryCode: "ZA"}, false},
		{"unknown address", domain.AllocationRecord{AddressFamily: "ipv4", RangeStart: "192.0.2.0", CountryCode: "DE"}, false},
		{"reserved country", domain.AllocationRecord{AddressFamily: "ipv4", RangeStart: "10.0.0.0", CountryCode: "ZZ"}, false},
		{"garbage start", domain.AllocationRecord{AddressFamily: "ipv4", RangeStart: "x", CountryCode: "DE"}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := c.Mismatch(tc.rec); got != tc.want {
				t.Fatalf("Mismatch(%+v) = %v, want %v", tc.rec, got, tc.want)
			}
		})
	}

	recs := []domain.AllocationRecord{cases[0].rec, cases[1].rec, cases[1].rec}
	if got := c.CountMismatches("test", recs); got != 2 {
		t.Fatalf("CountMismatches = %d, want 2", got)
	}
}
