package currency

import (
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// Suffix follows every rendered amount.
const Suffix = " kr"

// DefaultTag is the number locale of the storefront: "1.234,56 kr".
var DefaultTag = language.German

// Formatter renders integer minor units with CLDR grouping and decimal
// separators for its language. The zero value uses DefaultTag.
type Formatter struct {
	tag     language.Tag
	printer *message.Printer
}

// NewFormatter parses a BCP-47 tag such as "de-DE" or "sv-SE". Blank or
// malformed tags use DefaultTag.
func NewFormatter(tag string) Formatter {
	parsed, err := language.Parse(strings.TrimSpace(tag))
	if err != nil || parsed == language.Und {
		parsed = DefaultTag
	}
	return Formatter{tag: parsed, printer: message.NewPrinter(parsed)}
}

// Tag returns the language the separators come from.
func (f Formatter) Tag() language.Tag {
	if f.printer == nil {
		return DefaultTag
	}
	return f.tag
}

// FormatMinor renders minor units with two decimals. A nil amount yields "".
func (f Formatter) FormatMinor(minor *int64) string {
	if minor == nil {
		return ""
	}
	return f.Format(*minor)
}

// Format renders a known amount of minor units.
func (f Formatter) Format(minor int64) string {
	p := f.printer
	if p == nil {
		p = defaultPrinter
	}
	return p.Sprint(number.Decimal(MinorToMajorFloat(minor), number.Scale(2))) + Suffix
}

var defaultPrinter = message.NewPrinter(DefaultTag)

// FormatMinor renders with DefaultTag.
func FormatMinor(minor *int64) string {
	return Formatter{}.FormatMinor(minor)
}

// MinorToMajor converts øre/cents into a decimal amount of kroner/dollars.
func MinorToMajor(minor int64) decimal.Decimal {
	return decimal.New(minor, -2)
}

// MajorToMinor converts a major-unit amount into minor units, rounding half away
// from zero.
func MajorToMinor(major decimal.Decimal) int64 {
	return major.Shift(2).Round(0).IntPart()
}

// MajorFloatToMinor is MajorToMinor for the float prices returned by rate lookups.
func MajorFloatToMinor(major float64) int64 {
	return MajorToMinor(decimal.NewFromFloat(major))
}

// MinorToMajorFloat converts minor units into the float major-unit amounts that
// payment payloads carry.
func MinorToMajorFloat(minor int64) float64 {
	f, _ := MinorToMajor(minor).Float64()
	return f
}
