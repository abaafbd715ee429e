package shared

import (
	"fmt"
	"strings"
	"time"
)

// isodatetime layouts accepted on read, most specific first.  Values
// without a zone are taken as UTC.
var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseISODateTime parses the isodatetime text stored in files.  Writers
// always emit RFC 3339; older files may carry naive timestamps or bare
// dates.
func ParseISODateTime(value string) (time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return time.Time{}, fmt.Errorf("empty isodatetime")
	}
	for _, layout := range isoLayouts {
		if parsed, err := time.Parse(layout, trimmed); err == nil {
			return parsed, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized isodatetime %q", trimmed)
}
