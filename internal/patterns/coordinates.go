// Package patterns provides shared regex patterns and helper functions for telegram parsing.
// This file contains coordinate conversion utilities.

package patterns

import (
	"regexp"
	"strconv"
)

// coordPattern is the fixed DDMM[NS]DDDMM[EW] grammar. Anchored at both ends
// so a token either decodes completely or not at all.
var coordPattern = regexp.MustCompile(`^(\d{2})(\d{2})([NS])(\d{3})(\d{2})([EW])$`)

// DecodeCoordinate converts a DDMM[NS]DDDMM[EW] token to decimal degrees.
//
//	DecodeCoordinate("5542N03735E") = 55.7, 37.5833..., true
//
// S and W hemispheres give negative values. Any token that does not match the
// grammar exactly (wrong digit counts, wrong hemisphere letters) returns ok=false.
func DecodeCoordinate(token string) (lat, lon float64, ok bool) {
	m := coordPattern.FindStringSubmatch(token)
	if m == nil {
		return 0, 0, false
	}

	lat = degreesMinutes(m[1], m[2])
	lon = degreesMinutes(m[4], m[5])

	if m[3] == "S" {
		lat = -lat
	}
	if m[6] == "W" {
		lon = -lon
	}

	return lat, lon, true
}

// degreesMinutes returns deg + min/60. Inputs are digit-only by construction.
func degreesMinutes(deg, min string) float64 {
	d, _ := strconv.Atoi(deg)
	m, _ := strconv.Atoi(min)
	return float64(d) + float64(m)/60
}
