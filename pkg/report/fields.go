// Package report defines the GIA report field table, value formatting and
// the normalized record produced for every successfully checked report.
package report

// Field maps a raw XML element name of a report to its display name.
type Field struct {
	// Key is the element name below REPORT_DTL (e.g. "CRN_AG")
	Key string

	// Name is the human-readable column name (e.g. "Crown Angle")
	Name string
}

// Display names that receive non-identity formatting.
const (
	NameCrownAngle    = "Crown Angle"
	NamePavilionAngle = "Pavilion Angle"
)

// Fields is the fixed field table. Its order is the output column order.
var Fields = []Field{
	{Key: "REPORT_NO", Name: "Report No"},
	{Key: "LENGTH", Name: "Measurements"},
	{Key: "WEIGHT", Name: "Carat Weight"},
	{Key: "COLOR", Name: "Color Grade"},
	{Key: "CLARITY", Name: "Clarity Grade"},
	{Key: "FINAL_CUT", Name: "Cut Grade"},
	{Key: "DEPTH_PCT", Name: "Depth"},
	{Key: "TABLE_PCT", Name: "Table"},
	{Key: "CRN_AG", Name: NameCrownAngle},
	{Key: "CRN_HT", Name: "Crown Height"},
	{Key: "PAV_AG", Name: NamePavilionAngle},
	{Key: "PAV_DP", Name: "Pavillion Depth"},
	{Key: "STR_LN", Name: "Star Length"},
	{Key: "LR_HALF", Name: "Lower Half"},
	{Key: "GIRDLE", Name: "Girdle Type"},
	{Key: "GIRDLE_CONDITION", Name: "Girdle Condition"},
	{Key: "GIRDLE_PCT", Name: "Girdle"},
	{Key: "CULET_SIZE", Name: "Cutlet"},
	{Key: "POLISH", Name: "Polish"},
	{Key: "SYMMETRY", Name: "Symmetry"},
	{Key: "FLUORESCENCE_INTENSITY", Name: "Fluorescence"},
	{Key: "KEY_TO_SYMBOLS", Name: "Clarity Characteristics"},
	{Key: "REPORT_TYPE", Name: "Report Type"},
	{Key: "REPORT_DT", Name: "Date of Issue"},
	{Key: "INSCRIPTION", Name: "Inscription(s)"},
	{Key: "SHAPE", Name: "Shape"},
	{Key: "REPORT_COMMENTS", Name: "Comments"},
}

// Names returns the display names in column order.
func Names() []string {
	names := make([]string, len(Fields))
	for i, f := range Fields {
		names[i] = f.Name
	}
	return names
}

// Keys returns the raw element names in column order.
func Keys() []string {
	keys := make([]string, len(Fields))
	for i, f := range Fields {
		keys[i] = f.Key
	}
	return keys
}
