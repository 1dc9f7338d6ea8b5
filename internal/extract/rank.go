package extract

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Weight bands. Same-day entries occupy [justNowWeight - elapsed minutes],
// yesterday sits in a fixed band below them offset by time of day, and
// older entries decay by calendar day. Downstream deduplication assumes
// the resulting newest-first order, so the band boundaries are a contract.
const (
	justNowWeight = 1_000_000
	yesterdayBase = 900_000
	absoluteBase  = 100_000
	dailyDecay    = 1_000
)

var clockPattern = regexp.MustCompile(`(\d{1,2})[.:]?(\d{2})?`)

// ruMonths maps Russian genitive month stems to month numbers.
var ruMonths = []struct {
	stem  string
	month time.Month
}{
	{"январ", time.January},
	{"феврал", time.February},
	{"март", time.March},
	{"апрел", time.April},
	{"мая", time.May},
	{"май", time.May},
	{"июн", time.June},
	{"июл", time.July},
	{"август", time.August},
	{"сентябр", time.September},
	{"октябр", time.October},
	{"ноябр", time.November},
	{"декабр", time.December},
}

// Weight scores a free-text creation time. Higher is newer. Unparseable
// or unknown text scores zero.
func Weight(dateText string, today time.Time) int64 {
	if dateText == "" || dateText == unknownTime {
		return 0
	}
	text := strings.ToLower(strings.TrimSpace(dateText))

	switch {
	case strings.Contains(text, "только что"):
		return justNowWeight
	case strings.Contains(text, "минут"):
		return justNowWeight - int64(extractNumber(text))
	case strings.Contains(text, "час"):
		return justNowWeight - int64(extractNumber(text))*60
	case strings.Contains(text, "вчера"):
		return yesterdayBase + int64(minutesOfDay(text))
	default:
		return absoluteDateWeight(text, today)
	}
}

// SortByRecency orders orders by descending weight. The sort is stable so
// equal-weight entries keep their encounter order.
func SortByRecency(orders []Order) {
	sort.SliceStable(orders, func(i, j int) bool {
		return orders[i].Weight > orders[j].Weight
	})
}

// absoluteDateWeight handles "02.11" / "02.11.2024" and named-month forms
// like "2 ноября". Dates further in the past weigh less, bottoming at 0.
func absoluteDateWeight(text string, today time.Time) int64 {
	orderDate, ok := parseAbsoluteDate(text, today)
	if !ok {
		return 0
	}
	days := int64(today.Sub(orderDate).Hours() / 24)
	weight := absoluteBase - days*dailyDecay
	if weight < 0 {
		return 0
	}
	return weight
}

func parseAbsoluteDate(text string, today time.Time) (time.Time, bool) {
	for _, m := range ruMonths {
		if strings.Contains(text, m.stem) {
			day := extractNumber(text)
			if day < 1 || day > 31 {
				return time.Time{}, false
			}
			return time.Date(today.Year(), m.month, day, 0, 0, 0, 0, today.Location()), true
		}
	}

	if strings.Contains(text, ".") {
		parts := strings.Split(text, ".")
		if len(parts) < 2 {
			return time.Time{}, false
		}
		day, err1 := strconv.Atoi(strings.TrimSpace(parts[0]))
		month, err2 := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err1 != nil || err2 != nil || month < 1 || month > 12 {
			return time.Time{}, false
		}
		year := today.Year()
		if len(parts) > 2 {
			if y, err := strconv.Atoi(strings.TrimSpace(parts[2])); err == nil {
				year = y
			}
		}
		return time.Date(year, time.Month(month), day, 0, 0, 0, 0, today.Location()), true
	}

	if day := extractNumber(text); day >= 1 && day <= 31 {
		return time.Date(today.Year(), today.Month(), day, 0, 0, 0, 0, today.Location()), true
	}
	return time.Time{}, false
}

// minutesOfDay parses the HH:MM (or HH.MM) inside "вчера в 10:00" into
// minutes since midnight. Later yesterday times rank higher.
func minutesOfDay(text string) int {
	m := clockPattern.FindStringSubmatch(text)
	if m == nil {
		return 0
	}
	hours, _ := strconv.Atoi(m[1])
	minutes := 0
	if m[2] != "" {
		minutes, _ = strconv.Atoi(m[2])
	}
	return hours*60 + minutes
}

func extractNumber(text string) int {
	digits := nonDigits.ReplaceAllString(text, "")
	if digits == "" {
		return 0
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0
	}
	return n
}
