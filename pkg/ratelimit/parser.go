// Package ratelimit parses provider rate-limit reset messages and persists
// hibernation context across process restarts, per spec §4.8.
package ratelimit

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// bareForm matches "...resets <h><am|pm> (UTC)".
var bareForm = regexp.MustCompile(`(?i)resets\s+(\d{1,2})\s*(am|pm)\s*\(UTC\)`)

// datedForm matches "...resets <Mon> <d>, <h><am|pm> (UTC)".
var datedForm = regexp.MustCompile(`(?i)resets\s+([A-Za-z]{3,9})\s+(\d{1,2}),\s*(\d{1,2})\s*(am|pm)\s*\(UTC\)`)

var monthByName = map[string]time.Month{}

func init() {
	for m := time.January; m <= time.December; m++ {
		name := m.String()
		monthByName[strings.ToLower(name)] = m
		monthByName[strings.ToLower(name[:3])] = m
	}
}

// hourOf converts a 12-hour clock value + am/pm marker to a 24-hour hour,
// per spec §4.8: 12am -> 0, 12pm -> 12, Xam -> X, Xpm -> X+12 (mod 12 first).
func hourOf(h int, meridiem string) int {
	h = h % 12
	if strings.EqualFold(meridiem, "pm") {
		h += 12
	}
	return h
}

// ParseRateLimitReset recognizes the two rate-limit message forms from
// spec §4.8/§6 and returns the next UTC instant at or after now+1s that the
// message refers to, or nil if the text matches neither form.
func ParseRateLimitReset(text string, now time.Time) *time.Time {
	now = now.UTC()

	if m := datedForm.FindStringSubmatch(text); m != nil {
		month, ok := monthByName[strings.ToLower(m[1])]
		if !ok {
			return nil
		}
		day, err := strconv.Atoi(m[2])
		if err != nil {
			return nil
		}
		hour, err := strconv.Atoi(m[3])
		if err != nil {
			return nil
		}
		h := hourOf(hour, m[4])

		year := now.Year()
		result := time.Date(year, month, day, h, 0, 0, 0, time.UTC)
		if result.Before(now.Add(time.Second)) {
			result = time.Date(year+1, month, day, h, 0, 0, 0, time.UTC)
		}
		return &result
	}

	if m := bareForm.FindStringSubmatch(text); m != nil {
		hour, err := strconv.Atoi(m[1])
		if err != nil {
			return nil
		}
		h := hourOf(hour, m[2])

		candidate := time.Date(now.Year(), now.Month(), now.Day(), h, 0, 0, 0, time.UTC)
		threshold := now.Add(time.Second)
		if candidate.Before(threshold) {
			candidate = candidate.Add(24 * time.Hour)
		}
		return &candidate
	}

	return nil
}
