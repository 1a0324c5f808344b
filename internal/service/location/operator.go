package location

import (
	"sort"
	"strconv"
	"strings"
)

// Operator is an Indian mobile network operator.
type Operator string

// Known operators.
const (
	OperatorJio    Operator = "jio"
	OperatorAirtel Operator = "airtel"
	OperatorVI     Operator = "vi"
	OperatorBSNL   Operator = "bsnl"
)

// ParseOperator returns the operator named by s, ignoring case and spaces.
func ParseOperator(s string) (Operator, bool) {
	switch op := Operator(strings.ToLower(strings.TrimSpace(s))); op {
	case OperatorJio, OperatorAirtel, OperatorVI, OperatorBSNL:
		return op, true
	default:
		return "", false
	}
}

// prefixRange maps an inclusive range of 4-digit number prefixes to an operator.
type prefixRange struct {
	low, high int
	operator  Operator
}

// defaultPrefixRanges is the operator number series table.
//
//nolint:gochecknoglobals // Immutable lookup table.
var defaultPrefixRanges = []prefixRange{
	{6000, 6009, OperatorJio},
	{7000, 7009, OperatorAirtel},
	{7400, 7409, OperatorVI},
	{7500, 7509, OperatorVI},
	{8000, 8009, OperatorAirtel},
	{8400, 8409, OperatorVI},
	{8500, 8509, OperatorVI},
	{9000, 9009, OperatorAirtel},
	{9400, 9409, OperatorVI},
	{9500, 9509, OperatorBSNL},
	{9600, 9609, OperatorBSNL},
	{9700, 9709, OperatorBSNL},
}

// Classifier detects the operator of a phone number from its numeric prefix.
// It is immutable after construction and safe for concurrent use.
type Classifier struct {
	// ranges are sorted by low bound and do not overlap.
	ranges []prefixRange
	// fallback is returned when no range matches.
	fallback Operator
}

// NewClassifier builds a classifier over the built-in prefix table.
// An unknown fallback name selects Jio.
func NewClassifier(fallback string) *Classifier {
	op, ok := ParseOperator(fallback)
	if !ok {
		op = OperatorJio
	}

	ranges := make([]prefixRange, len(defaultPrefixRanges))
	copy(ranges, defaultPrefixRanges)
	sort.Slice(ranges, func(i, j int) bool { return ranges[i].low < ranges[j].low })

	return &Classifier{
		ranges:   ranges,
		fallback: op,
	}
}

// Fallback returns the operator used when no range matches.
func (c *Classifier) Fallback() Operator {
	return c.fallback
}

// Detect classifies a phone number. The result depends only on the digits of the number.
func (c *Classifier) Detect(phoneNumber string) Operator {
	number := NormalizeNumber(phoneNumber)

	// Indian mobile numbers are ten digits starting with 6-9.
	if len(number) != 10 || number[0] < '6' {
		return c.fallback
	}

	prefix, err := strconv.Atoi(number[:4])
	if err != nil {
		return c.fallback
	}

	i := sort.Search(len(c.ranges), func(i int) bool { return c.ranges[i].high >= prefix })
	if i < len(c.ranges) && c.ranges[i].low <= prefix {
		return c.ranges[i].operator
	}

	return c.fallback
}

// NormalizeNumber strips formatting and the +91 country code from a phone number.
func NormalizeNumber(phoneNumber string) string {
	var b strings.Builder

	for _, r := range phoneNumber {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}

	digits := b.String()

	// Drop the country code, with or without the leading plus sign or trunk zero.
	switch {
	case len(digits) == 12 && strings.HasPrefix(digits, "91"):
		return digits[2:]
	case len(digits) == 11 && strings.HasPrefix(digits, "0"):
		return digits[1:]
	default:
		return digits
	}
}
