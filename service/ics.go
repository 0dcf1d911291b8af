package service

import (
	"fmt"
	"strings"
	"time"
)

// ICSEvent is the single event extracted from an .ics attachment.
type ICSEvent struct {
	Title       string
	StartDate   string // YYYY-MM-DD
	StartTime   string // HH:MM, empty for all-day
	EndDate     string
	EndTime     string
	Location    string
	Description string
}

// ParseICS extracts the first VEVENT with a DTSTART from iCalendar
// data. It handles folded lines, DATE vs DATE-TIME values, and text
// escaping. Recurrence rules and VTIMEZONE definitions are ignored;
// times are kept as wall-clock.
func ParseICS(data []byte) (*ICSEvent, error) {
	var (
		inEvent   bool
		haveStart bool
		ev        = &ICSEvent{}
	)

	for _, line := range unfoldICS(string(data)) {
		switch {
		case strings.EqualFold(line, "BEGIN:VEVENT"):
			inEvent = true
			continue
		case strings.EqualFold(line, "END:VEVENT"):
			if haveStart {
				if ev.Title == "" {
					ev.Title = "Untitled Event"
				}
				return ev, nil
			}
			inEvent = false
			ev = &ICSEvent{}
			continue
		}
		if !inEvent {
			continue
		}

		name, params, value, ok := splitICSLine(line)
		if !ok {
			continue
		}
		switch name {
		case "SUMMARY":
			ev.Title = unescapeICS(value)
		case "LOCATION":
			ev.Location = unescapeICS(value)
		case "DESCRIPTION":
			ev.Description = unescapeICS(value)
		case "DTSTART":
			date, tm := parseICSDateTime(value, params)
			if date == "" {
				continue
			}
			ev.StartDate, ev.StartTime = date, tm
			haveStart = true
		case "DTEND":
			date, tm := parseICSDateTime(value, params)
			if date == "" {
				continue
			}
			ev.EndDate, ev.EndTime = date, tm
		}
	}
	return nil, fmt.Errorf("no VEVENT with DTSTART found")
}

// unfoldICS splits raw iCalendar text into logical lines, joining
// continuation lines that start with a space or tab.
func unfoldICS(raw string) []string {
	raw = strings.ReplaceAll(raw, "\r\n", "\n")
	raw = strings.ReplaceAll(raw, "\r", "\n")
	var out []string
	for _, line := range strings.Split(raw, "\n") {
		if line == "" {
			continue
		}
		if (line[0] == ' ' || line[0] == '\t') && len(out) > 0 {
			out[len(out)-1] += line[1:]
			continue
		}
		out = append(out, line)
	}
	return out
}

// splitICSLine breaks "NAME;PARAM=x:value" into its parts. The value
// separator is the first colon outside quoted parameter values.
func splitICSLine(line string) (name string, params map[string]string, value string, ok bool) {
	inQuotes := false
	idx := -1
scan:
	for i, r := range line {
		switch r {
		case '"':
			inQuotes = !inQuotes
		case ':':
			if !inQuotes {
				idx = i
				break scan
			}
		}
	}
	if idx < 0 {
		return "", nil, "", false
	}

	head := line[:idx]
	value = line[idx+1:]
	parts := strings.Split(head, ";")
	name = strings.ToUpper(strings.TrimSpace(parts[0]))
	params = make(map[string]string, len(parts)-1)
	for _, p := range parts[1:] {
		k, v, found := strings.Cut(p, "=")
		if !found {
			continue
		}
		params[strings.ToUpper(k)] = strings.Trim(v, `"`)
	}
	return name, params, value, true
}

// parseICSDateTime turns an iCalendar DATE or DATE-TIME value into
// "YYYY-MM-DD" and "HH:MM" strings. Date-only values return an empty
// time.
func parseICSDateTime(value string, params map[string]string) (string, string) {
	value = strings.TrimSpace(value)
	if params["VALUE"] == "DATE" || len(value) == 8 {
		t, err := time.Parse("20060102", value)
		if err != nil {
			return "", ""
		}
		return t.Format("2006-01-02"), ""
	}

	value = strings.TrimSuffix(value, "Z")
	t, err := time.Parse("20060102T150405", value)
	if err != nil {
		if t, err = time.Parse("20060102T1504", value); err != nil {
			return "", ""
		}
	}
	return t.Format("2006-01-02"), t.Format("15:04")
}

func unescapeICS(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' || i+1 == len(s) {
			b.WriteByte(s[i])
			continue
		}
		i++
		switch s[i] {
		case 'n', 'N':
			b.WriteByte('\n')
		case ',', ';', '\\':
			b.WriteByte(s[i])
		default:
			b.WriteByte('\\')
			b.WriteByte(s[i])
		}
	}
	return b.String()
}
