package intake

import (
	_ "embed"
	"fmt"
	"strings"
	"unicode/utf8"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalogYAML []byte

// MaxSuggestions bounds the length of a suggestion list.
const MaxSuggestions = 5

const minSuggestPrefix = 2

// Option is one selectable value of a fixed option set.
type Option struct {
	ID    string `yaml:"id" json:"id"`
	Label string `yaml:"label" json:"label"`
}

// Catalog holds the fixed option sets and suggestion corpora of the form.
type Catalog struct {
	Services       []Option            `yaml:"services" json:"services"`
	Timelines      []Option            `yaml:"timelines" json:"timelines"`
	Budgets        []Option            `yaml:"budgets" json:"budgets"`
	Industries     []string            `yaml:"industries" json:"industries"`
	ContactMethods []Option            `yaml:"contact_methods" json:"contact_methods"`
	Suggestions    map[string][]string `yaml:"suggestions" json:"-"`
}

// LoadCatalog parses a YAML catalog document.
func LoadCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("intake: parse catalog: %w", err)
	}
	if len(c.Services) == 0 {
		return nil, fmt.Errorf("intake: catalog has no services")
	}
	if len(c.Timelines) == 0 || len(c.Budgets) == 0 {
		return nil, fmt.Errorf("intake: catalog needs timelines and budgets")
	}
	return &c, nil
}

// DefaultCatalog returns the catalog embedded in the binary.
func DefaultCatalog() *Catalog {
	c, err := LoadCatalog(defaultCatalogYAML)
	if err != nil {
		panic(err)
	}
	return c
}

func hasOption(opts []Option, id string) bool {
	for _, o := range opts {
		if o.ID == id {
			return true
		}
	}
	return false
}

// HasService reports whether id names a catalog service.
func (c *Catalog) HasService(id string) bool { return hasOption(c.Services, id) }

// HasTimeline reports whether id is a known timeline option.
func (c *Catalog) HasTimeline(id string) bool { return hasOption(c.Timelines, id) }

// HasBudget reports whether id is a known budget option.
func (c *Catalog) HasBudget(id string) bool { return hasOption(c.Budgets, id) }

// ServiceLabel returns the display label for a service id, or the id itself.
func (c *Catalog) ServiceLabel(id string) string {
	for _, o := range c.Services {
		if o.ID == id {
			return o.Label
		}
	}
	return id
}

// Suggest returns up to MaxSuggestions candidates for field whose text
// contains prefix, ignoring case. Only fields with a corpus produce results.
func (c *Catalog) Suggest(field Field, prefix string) []string {
	if utf8.RuneCountInString(prefix) < minSuggestPrefix {
		return []string{}
	}
	corpus := c.Suggestions[string(field)]
	needle := strings.ToLower(prefix)
	out := make([]string, 0, MaxSuggestions)
	for _, candidate := range corpus {
		if strings.Contains(strings.ToLower(candidate), needle) {
			out = append(out, candidate)
			if len(out) == MaxSuggestions {
				break
			}
		}
	}
	return out
}
