package extract

import (
	"fmt"
	"hash/fnv"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// unknownTime marks cards whose date element could not be located.
// Ranking gives these the lowest possible weight.
const unknownTime = "Неизвестно"

// lexicalVariants maps stemming-sensitive keywords to the substrings that
// should also count as a title match. The marketplace inflects these terms
// heavily, so a plain substring test misses most listings.
var lexicalVariants = map[string][]string{
	"юрист": {"юрист", "юридич", "юрид"},
}

var nonDigits = regexp.MustCompile(`[^0-9]`)

// Extract parses rendered results-page HTML and returns the order cards
// whose title matches keyword, ranked newest-first. The same inputs always
// produce the same output; "now" only enters through today.
func Extract(html, keyword string, sel Selectors, today time.Time) ([]Order, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse results page: %w", err)
	}

	cards := findCards(doc, sel.Cards)
	lowerKeyword := strings.ToLower(strings.TrimSpace(keyword))

	var orders []Order
	cards.Each(func(i int, card *goquery.Selection) {
		title := firstText(card, sel.Title)
		if title == "" {
			return
		}
		if !titleMatches(title, lowerKeyword) {
			return
		}

		created := firstText(card, sel.Time)
		if created == "" {
			created = unknownTime
		}

		orders = append(orders, Order{
			ID:          cardID(card, title, created),
			Title:       title,
			Price:       cleanPrice(firstText(card, sel.Price)),
			Description: firstText(card, sel.Description),
			CreatedText: created,
			Weight:      Weight(created, today),
		})
	})

	SortByRecency(orders)
	return orders, nil
}

// findCards tries each card selector in order and returns the first
// non-empty selection.
func findCards(doc *goquery.Document, selectors []string) *goquery.Selection {
	for _, s := range selectors {
		if found := doc.Find(strings.TrimSpace(s)); found.Length() > 0 {
			return found
		}
	}
	return doc.Find("") // empty selection
}

// firstText returns the trimmed text of the first selector that matches an
// element with non-empty text. First match wins; this is the tie-break
// policy for fallback lists.
func firstText(card *goquery.Selection, selectors []string) string {
	for _, s := range selectors {
		text := strings.TrimSpace(card.Find(strings.TrimSpace(s)).First().Text())
		if text != "" {
			return text
		}
	}
	return ""
}

func titleMatches(title, lowerKeyword string) bool {
	if lowerKeyword == "" {
		return false
	}
	lowerTitle := strings.ToLower(title)
	if strings.Contains(lowerTitle, lowerKeyword) {
		return true
	}
	for _, variant := range lexicalVariants[lowerKeyword] {
		if strings.Contains(lowerTitle, variant) {
			return true
		}
	}
	return false
}

// cardID prefers the element's own id attribute. Cards without one get a
// digest of title and date text so the id stays stable across runs; a
// wall-clock id would defeat downstream deduplication.
func cardID(card *goquery.Selection, title, created string) string {
	if id, ok := card.Attr("id"); ok && strings.TrimSpace(id) != "" {
		return strings.TrimSpace(id)
	}
	h := fnv.New64a()
	h.Write([]byte(title))
	h.Write([]byte{0})
	h.Write([]byte(created))
	return fmt.Sprintf("card_%x", h.Sum64())
}

func cleanPrice(price string) string {
	digits := nonDigits.ReplaceAllString(price, "")
	if digits == "" {
		return "0"
	}
	return digits
}
