package report

import "regexp"

// Formatter turns a raw field value into its display value.
type Formatter func(raw string) string

var anglePattern = regexp.MustCompile(`\d+\.?\d*`)

// formatters holds the non-identity formatters keyed by display name.
var formatters = map[string]Formatter{
	NameCrownAngle:    Angle,
	NamePavilionAngle: Angle,
}

// Format applies the formatter registered for name, or returns raw unchanged.
func Format(name, raw string) string {
	if fn, ok := formatters[name]; ok {
		return fn(raw)
	}
	return raw
}

// Angle extracts the first decimal number from raw ("34.5 degrees" -> "34.5").
// Values without a number are returned unchanged.
func Angle(raw string) string {
	if match := anglePattern.FindString(raw); match != "" {
		return match
	}
	return raw
}
