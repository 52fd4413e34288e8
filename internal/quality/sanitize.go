// Package quality cleans raw scraped values before they become records.
package quality

import (
	"regexp"
	"strconv"
	"strings"
)

const (
	maxTitleLength = 80

	// Sanity bounds for a nightly/ticket price; anything outside is treated
	// as a failed extraction, not a real value.
	minPlausiblePrice = 10
	maxPlausiblePrice = 50000
)

var (
	digitsPattern     = regexp.MustCompile(`[\d,]+`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

// CleanTitle collapses whitespace and truncates overlong scraped names.
// Returns "" for titles that are only digits/currency noise.
func CleanTitle(raw string) string {
	title := whitespacePattern.ReplaceAllString(strings.TrimSpace(raw), " ")
	if title == "" {
		return ""
	}
	if isPriceNoise(title) {
		return ""
	}
	if len(title) > maxTitleLength {
		title = strings.TrimSpace(title[:maxTitleLength])
	}
	return title
}

// ParsePrice extracts the last integer group from a price string
// ("₹ 12,499 per night" -> 12499). Returns 0 when nothing usable parses.
func ParsePrice(raw string) int {
	groups := digitsPattern.FindAllString(raw, -1)
	if len(groups) == 0 {
		return 0
	}
	last := strings.ReplaceAll(groups[len(groups)-1], ",", "")
	price, err := strconv.Atoi(last)
	if err != nil {
		return 0
	}
	return price
}

// PlausiblePrice reports whether a parsed price is inside sanity bounds.
func PlausiblePrice(price int) bool {
	return price >= minPlausiblePrice && price <= maxPlausiblePrice
}

// ParseCount strips everything but digits ("4 Nights" -> 4).
func ParseCount(raw string) int {
	var digits strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	if digits.Len() == 0 {
		return 0
	}
	count, err := strconv.Atoi(digits.String())
	if err != nil {
		return 0
	}
	return count
}

// NormalizeImageURL resolves protocol-relative and host-relative image
// sources and rejects placeholder assets. Returns "" when unusable.
func NormalizeImageURL(src, baseHost string) string {
	src = strings.TrimSpace(src)
	if src == "" || len(src) < 20 {
		return ""
	}
	lowered := strings.ToLower(src)
	if strings.Contains(lowered, "placeholder") || strings.Contains(lowered, "loading") {
		return ""
	}

	switch {
	case strings.HasPrefix(src, "//"):
		return "https:" + src
	case strings.HasPrefix(src, "/"):
		if baseHost == "" {
			return ""
		}
		return "https://" + baseHost + src
	case strings.HasPrefix(lowered, "http"):
		return src
	default:
		return ""
	}
}

func isPriceNoise(value string) bool {
	for _, r := range value {
		switch {
		case r >= '0' && r <= '9':
		case r == ' ' || r == ',' || r == '.' || r == '₹' || r == '$':
		default:
			return false
		}
	}
	return true
}
