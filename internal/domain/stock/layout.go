package stock

import (
	"cmp"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Warehouse is the master data of a warehouse as seen by the ledger
type Warehouse struct {
	ID       uuid.UUID
	TenantID uuid.UUID
	Code     string
	Name     string
}

// BinLocation is a storage slot inside a warehouse
type BinLocation struct {
	ID          uuid.UUID
	TenantID    uuid.UUID
	WarehouseID uuid.UUID
	Code        string
	// Priority ranks bins for allocation; higher values are picked first.
	Priority int
}

// Reference returns the location reference of the bin
func (b BinLocation) Reference() LocationReference {
	return AtBinLocation(b.ID)
}

// Position parses the bin code into a physical position
func (b BinLocation) Position() (BinPosition, bool) {
	return ParseBinPosition(b.Code)
}

// StockContainer is a movable carrier of stock, optionally parked in a warehouse
type StockContainer struct {
	ID          uuid.UUID
	TenantID    uuid.UUID
	WarehouseID *uuid.UUID
	Code        string
}

// binCodePattern matches codes like A-01-R05-L02 (zone, aisle, rack, level)
var binCodePattern = regexp.MustCompile(`^([A-Z]{1,2})-(\d{2})-R(\d{2})-L(\d{2})$`)

// BinPosition is the physical coordinate of a bin
type BinPosition struct {
	Zone  string
	Aisle int
	Rack  int
	Level int
}

// ParseBinPosition parses a bin code of the form ZONE-AISLE-RRACK-LLEVEL
func ParseBinPosition(code string) (BinPosition, bool) {
	m := binCodePattern.FindStringSubmatch(strings.ToUpper(strings.TrimSpace(code)))
	if m == nil {
		return BinPosition{}, false
	}
	aisle, _ := strconv.Atoi(m[2])
	rack, _ := strconv.Atoi(m[3])
	level, _ := strconv.Atoi(m[4])
	return BinPosition{Zone: m[1], Aisle: aisle, Rack: rack, Level: level}, true
}

// Compare orders positions by zone, aisle, rack and level
func (p BinPosition) Compare(other BinPosition) int {
	if c := cmp.Compare(p.Zone, other.Zone); c != 0 {
		return c
	}
	if c := cmp.Compare(p.Aisle, other.Aisle); c != 0 {
		return c
	}
	if c := cmp.Compare(p.Rack, other.Rack); c != 0 {
		return c
	}
	return cmp.Compare(p.Level, other.Level)
}

// CompareCodesNatural compares codes treating digit runs as numbers, so "B2" < "B10"
func CompareCodesNatural(a, b string) int {
	for a != "" && b != "" {
		ad, arest := leadingDigits(a)
		bd, brest := leadingDigits(b)
		if ad != "" && bd != "" {
			an, _ := strconv.Atoi(ad)
			bn, _ := strconv.Atoi(bd)
			if c := cmp.Compare(an, bn); c != 0 {
				return c
			}
			a, b = arest, brest
			continue
		}
		if c := cmp.Compare(a[0], b[0]); c != 0 {
			return c
		}
		a, b = a[1:], b[1:]
	}
	return cmp.Compare(len(a), len(b))
}

func leadingDigits(s string) (string, string) {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	return s[:i], s[i:]
}
