// Package patterns provides shared regex patterns and helper functions for telegram parsing.
// This file contains grok-style base patterns for use with the Compiler.

package patterns

// BasePatterns defines reusable regex components for grok-style pattern composition.
// These are referenced in format patterns using {PATTERN_NAME} syntax.
var BasePatterns = map[string]string{
	// Identifiers after SID/, TYP/, REG/. Unicode word characters: registrations
	// are often written in Cyrillic.
	"IDENT": `[\p{L}\p{N}_]+`,

	// Dates and times.
	"DATE6": `\d{6}`,   // YYMMDD
	"TIME":  `\d{4,5}`, // HHMM, occasionally with a trailing digit

	// Altitude band values, hundreds of feet.
	"ALT4": `\d{4}`,

	// Route waypoint: DDMM[NS]DDDMM[EW] written with a 5-digit longitude.
	"WAYPOINT": `\d{4}[NS]\d{5}[EW]`,

	// DEP/DEST point. Looser than WAYPOINT; tokens that do not decode are dropped.
	"POINT": `\d{4,5}[NS]\d{4,5}[EW]`,

	"LAT_DIR": `[NS]`,
	"LON_DIR": `[EW]`,
}
