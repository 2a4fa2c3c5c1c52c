package delegation

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"rirstats/internal/domain"
)

const (
	lacnicLine  = "lacnic|BR|ipv4|24.152.8.0|1024|20200309|allocated|301675"
	afrinicLine = "afrinic|ZA|asn|1230|1|19910301|allocated|F36B9F4B"
)

var (
	lacnicRecord = domain.AllocationRecord{
		Registry:      "lacnic",
		CountryCode:   "BR",
		AddressFamily: "ipv4",
		RangeStart:    "24.152.8.0",
		BlockSize:     1024,
		Date:          "20200309",
		Status:        "allocated",
	}
	afrinicRecord = domain.AllocationRecord{
		Registry:      "afrinic",
		CountryCode:   "ZA",
		AddressFamily: "asn",
		RangeStart:    "1230",
		BlockSize:     1,
		Date:          "19910301",
		Status:        "allocated",
	}
)

func TestParseLine(t *testing.T) {
	cases := []struct {
		name string
		line string
		want domain.AllocationRecord
	}{
		{"ipv4 allocation", lacnicLine, lacnicRecord},
		{"asn with hexadecimal identifier", afrinicLine, afrinicRecord},
		{
			name: "ipv6 record",
			line: "apnic|JP|ipv6|2001:200::|35|19990813|allocated|A91A7381",
			want: domain.AllocationRecord{
				Registry: "apnic", CountryCode: "JP", AddressFamily: "ipv6",
				RangeStart: "2001:200::", BlockSize: 35, Date: "19990813", Status: "allocated",
			},
		},
		{
			name: "empty fields are accepted verbatim",
			line: "ripencc||unknown||0|||",
			want: domain.AllocationRecord{Registry: "ripencc", AddressFamily: "unknown"},
		},
		{
			name: "maximum block size",
			line: "arin|US|ipv4|0.0.0.0|4294967295|bogus-date|reserved|x",
			want: domain.AllocationRecord{
				Registry: "arin", CountryCode: "US", AddressFamily: "ipv4",
				RangeStart: "0.0.0.0", BlockSize: 4294967295, Date: "bogus-date", Status: "reserved",
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseLine(tc.line)
			if err != nil {
				t.Fatalf("ParseLine(%q) returned error: %v", tc.line, err)
			}
			if got != tc.want {
				t.Fatalf("ParseLine(%q) = %+v, want %+v", tc.line, got, tc.want)
			}
		})
	}
}

func TestParseLineWrongFieldCount(t *testing.T) {
	lines := []string{
		"",
		"2.3",
		"2.3|arin|header|junk",
		"arin|*|ipv4|*|54321|summary",
		"lacnic|BR|ipv4|24.152.8.0|1024|20200309|allocated",
		lacnicLine + "|extra",
	}

	for _, line := range lines {
		_, err := ParseLine(line)
		if !errors.Is(err, ErrWrongFieldCount) {
			t.Errorf("ParseLine(%q) error = %v, want ErrWrongFieldCount", line, err)
		}
	}
}

func TestParseLineInvalidBlockSize(t *testing.T) {
	sizes := []string{"abc", "-1", "+", "+-5", "++5", "", "4294967296", "+4294967296", "1.5", " 10", "0x10"}

	for _, size := range sizes {
		line := "lacnic|BR|ipv4|24.152.8.0|" + size + "|20200309|allocated|301675"
		_, err := ParseLine(line)
		if !errors.Is(err, ErrInvalidBlockSize) {
			t.Errorf("ParseLine with size %q error = %v, want ErrInvalidBlockSize", size, err)
		}
		if errors.Is(err, ErrWrongFieldCount) {
			t.Errorf("ParseLine with size %q reported both error kinds", size)
		}
	}
}

func TestParseLineAcceptsLeadingPlus(t *testing.T) {
	tests := []struct {
		size string
		want uint32
	}{
		{size: "+1024", want: 1024},
		{size: "+0", want: 0},
		{size: "+4294967295", want: 4294967295},
	}

	for _, tt := range tests {
		t.Run(tt.size, func(t *testing.T) {
			got, err := ParseLine("lacnic|BR|ipv4|24.152.8.0|" + tt.size + "|20200309|allocated|301675")
			if err != nil {
				t.Fatalf("ParseLine returned error: %v", err)
			}
			if got.BlockSize != tt.want {
				t.Fatalf("BlockSize = %d, want %d", got.BlockSize, tt.want)
			}
		})
	}
}

func TestParseLineKeepsTrailingCarriageReturnInDiscardedField(t *testing.T) {
	got, err := ParseLine(lacnicLine + "\r")
	if err != nil {
		t.Fatalf("ParseLine returned error: %v", err)
	}
	if got != lacnicRecord {
		t.Fatalf("ParseLine = %+v, want %+v", got, lacnicRecord)
	}
}

func TestParseBatch(t *testing.T) {
	document := strings.Join([]string{lacnicLine, "2.3", afrinicLine}, "\n")

	got := ParseBatch(document)
	want := []domain.AllocationRecord{lacnicRecord, afrinicRecord}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ParseBatch = %+v, want %+v", got, want)
	}
}

func TestParseBatchEmptyDocument(t *testing.T) {
	for _, doc := range []string{"", "\n", "\n\n\n"} {
		if got := ParseBatch(doc); len(got) != 0 {
			t.Fatalf("ParseBatch(%q) = %+v, want no records", doc, got)
		}
	}
}

func TestParseBatchPreservesOrderAndDuplicates(t *testing.T) {
	document := strings.Join([]string{
		"2|afrinic|20240101|3|19830101|20240101|+0000",
		"afrinic|*|asn|*|3|summary",
		afrinicLine,
		lacnicLine,
		"lacnic|BR|ipv4|24.152.8.0|abc|20200309|allocated|301675",
		afrinicLine,
		"",
	}, "\n")

	got := ParseBatch(document)
	want := []domain.AllocationRecord{afrinicRecord, lacnicRecord, afrinicRecord}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ParseBatch = %+v, want %+v", got, want)
	}
}

func TestParseBatchCRLF(t *testing.T) {
	lf := lacnicLine + "\n2.3\n" + afrinicLine + "\n"
	crlf := strings.ReplaceAll(lf, "\n", "\r\n")

	if got, want := ParseBatch(crlf), ParseBatch(lf); !reflect.DeepEqual(got, want) {
		t.Fatalf("ParseBatch(crlf) = %+v, want %+v", got, want)
	}
}

func TestParseBatchIdempotent(t *testing.T) {
	document := lacnicLine + "\n" + afrinicLine + "\nnoise\n"

	first := ParseBatch(document)
	second := ParseBatch(document)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("ParseBatch not idempotent: %+v vs %+v", first, second)
	}
}

func TestParseReportCounters(t *testing.T) {
	document := strings.Join([]string{
		"2.3|arin|20240101|100|19700101|20240101|-0500",
		"arin|*|ipv4|*|60000|summary",
		lacnicLine,
		"lacnic|BR|ipv4|24.152.8.0|-1|20200309|allocated|301675",
		afrinicLine,
	}, "\n")

	report := Parse(document)
	if report.Lines != 5 {
		t.Fatalf("Lines = %d, want 5", report.Lines)
	}
	if report.WrongFieldCount != 2 || report.InvalidBlockSize != 1 {
		t.Fatalf("counters = %d/%d, want 2/1", report.WrongFieldCount, report.InvalidBlockSize)
	}
	if report.Dropped() != 3 {
		t.Fatalf("Dropped = %d, want 3", report.Dropped())
	}
	if len(report.Records)+report.Dropped() != report.Lines {
		t.Fatalf("records and drops do not add up to lines: %+v", report)
	}
	if !reflect.DeepEqual(report.Records, ParseBatch(document)) {
		t.Fatal("Parse records differ from ParseBatch")
	}
}
