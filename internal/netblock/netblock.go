// Package netblock turns parsed allocation records into CIDR prefixes. It is
// a downstream view of the data and never used while parsing.
package netblock

import (
	"errors"
	"fmt"
	"math/bits"
	"net"
	"net/netip"

	"github.com/c-robinson/iplib"

	"rirstats/internal/domain"
)

const (
	familyIPv4 = "ipv4"
	familyIPv6 = "ipv6"
)

var (
	// ErrNotAddressBlock is returned for records that do not describe addresses (e.g. asn).
	ErrNotAddressBlock = errors.New("netblock: record is not an address block")
	// ErrInvalidRange is returned when the start address or size cannot form a valid block.
	ErrInvalidRange = errors.New("netblock: invalid range")
)

// Prefixes returns the CIDR prefixes covering rec. IPv4 records carry an
// address count, which may need several prefixes; IPv6 records carry a
// prefix length.
func Prefixes(rec domain.AllocationRecord) ([]netip.Prefix, error) {
	switch rec.AddressFamily {
	case familyIPv4:
		return ipv4Prefixes(rec.RangeStart, rec.BlockSize)
	case familyIPv6:
		return ipv6Prefix(rec.RangeStart, rec.BlockSize)
	default:
		return nil, fmt.Errorf("%w: family %q", ErrNotAddressBlock, rec.AddressFamily)
	}
}

// Strings is Prefixes rendered as strings.
func Strings(rec domain.AllocationRecord) ([]string, error) {
	prefixes, err := Prefixes(rec)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(prefixes))
	for _, p := range prefixes {
		out = append(out, p.String())
	}
	return out, nil
}

func ipv4Prefixes(start string, count uint32) ([]netip.Prefix, error) {
	ip := net.ParseIP(start).To4()
	if ip == nil {
		return nil, fmt.Errorf("%w: bad ipv4 start %q", ErrInvalidRange, start)
	}
	if count == 0 {
		return nil, fmt.Errorf("%w: empty block at %s", ErrInvalidRange, start)
	}

	first := uint64(iplib.IP4ToUint32(ip))
	last := first + uint64(count) - 1
	if last > 0xFFFFFFFF {
		return nil, fmt.Errorf("%w: %s + %d overflows ipv4", ErrInvalidRange, start, count)
	}

	var prefixes []netip.Prefix
	for cur := first; cur <= last; {
		// Largest block aligned at cur that still fits before last.
		size := uint(32)
		if cur != 0 {
			size = uint(bits.TrailingZeros32(uint32(cur)))
		}
		for size > 0 && cur+(uint64(1)<<size)-1 > last {
			size--
		}

		addr, ok := netip.AddrFromSlice(iplib.Uint32ToIP4(uint32(cur)).To4())
		if !ok {
			return nil, fmt.Errorf("%w: cannot convert %d", ErrInvalidRange, cur)
		}
		prefixes = append(prefixes, netip.PrefixFrom(addr, 32-int(size)))
		cur += uint64(1) << size
	}

	return prefixes, nil
}

func ipv6Prefix(start string, length uint32) ([]netip.Prefix, error) {
	addr, err := netip.ParseAddr(start)
	if err != nil || !addr.Is6() || addr.Is4In6() {
		return nil, fmt.Errorf("%w: bad ipv6 start %q", ErrInvalidRange, start)
	}
	if length > 128 {
		return nil, fmt.Errorf("%w: prefix length %d", ErrInvalidRange, length)
	}

	prefix := netip.PrefixFrom(addr, int(length))
	if prefix.Masked() != prefix {
		return nil, fmt.Errorf("%w: %s is not aligned to /%d", ErrInvalidRange, start, length)
	}
	return []netip.Prefix{prefix}, nil
}
