// Package extract turns a rendered search-results page into ranked order
// records. Everything here is pure: input HTML and keyword in, sorted
// orders out. Selectors are data, supplied by the caller.
package extract

// Order is one work listing pulled off the results page.
// ID is the identity used for deduplication and seen-set membership.
type Order struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Price       string `json:"price"`
	Description string `json:"description"`
	CreatedText string `json:"created_text"`
	Weight      int64  `json:"weight"`
}

// Selectors holds the ordered CSS selector fallback lists for every field
// of an order card. For each field the first selector that yields
// non-empty text wins.
type Selectors struct {
	Cards       []string `yaml:"cards" json:"cards"`
	Title       []string `yaml:"title" json:"title"`
	Price       []string `yaml:"price" json:"price"`
	Description []string `yaml:"description" json:"description"`
	Time        []string `yaml:"time" json:"time"`
}
