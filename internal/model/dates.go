package model

import "time"

// dateLayouts are tried in order when parsing signal dates.
var dateLayouts = []string{"2006-01-02", "2006-01"}

// ParseSignalDate parses a signal date under the accepted layouts.
func ParseSignalDate(s string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
