package patterns

import (
	"strconv"
	"strings"
	"time"
	"unicode"

	"cloud.google.com/go/civil"
)

// NormalizeTime converts a loosely formatted time token to a time of day.
//
// Every non-digit is stripped ("09:30" and "0930" are the same). The first four
// remaining digits are read as HHMM. Fewer than four digits, an hour of 24 or
// more, or minutes of 60 or more give nil.
func NormalizeTime(token string) *civil.Time {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, token)

	if len(digits) < 4 {
		return nil
	}

	hh, _ := strconv.Atoi(digits[0:2])
	mm, _ := strconv.Atoi(digits[2:4])
	if hh > 23 || mm > 59 {
		return nil
	}

	return &civil.Time{Hour: hh, Minute: mm}
}

// FlightDuration returns arr - dep on the reference date.
//
// An arrival earlier than departure is taken as next-day arrival (one
// rollover at most), so the result is never negative. Returns nil when either
// time is missing.
func FlightDuration(dep, arr *civil.Time, date civil.Date) *time.Duration {
	if dep == nil || arr == nil {
		return nil
	}

	depAt := civil.DateTime{Date: date, Time: *dep}.In(time.UTC)
	arrAt := civil.DateTime{Date: date, Time: *arr}.In(time.UTC)
	if arrAt.Before(depAt) {
		arrAt = arrAt.Add(24 * time.Hour)
	}

	d := arrAt.Sub(depAt)
	return &d
}

// ParseDate6 parses a YYMMDD token. Two-digit years 69-99 are 19xx, 00-68 are
// 20xx. Calendar-invalid dates (month 13, 30 Feb) give nil.
func ParseDate6(token string) *civil.Date {
	if len(token) != 6 {
		return nil
	}
	for _, r := range token {
		if !unicode.IsDigit(r) || r > unicode.MaxASCII {
			return nil
		}
	}

	yy, _ := strconv.Atoi(token[0:2])
	if yy >= 69 {
		yy += 1900
	} else {
		yy += 2000
	}

	d, err := civil.ParseDate(strconv.Itoa(yy) + "-" + token[2:4] + "-" + token[4:6])
	if err != nil {
		return nil
	}
	return &d
}
