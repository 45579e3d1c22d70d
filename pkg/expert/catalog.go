// Package expert loads the expert personas and coaching options offered
// to users. A default catalog is embedded; deployments can replace or
// extend it with their own YAML file.
package expert

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/teslashibe/go-voice-agent/pkg/conversation"
)

//go:embed data/catalog.yaml
var defaultCatalog []byte

var (
	// ErrNotFound is returned when no expert or option matches.
	ErrNotFound = errors.New("expert: not found")

	// ErrInvalidCatalog is returned for a catalog that fails validation.
	ErrInvalidCatalog = errors.New("expert: invalid catalog")
)

// Entry is an expert persona plus catalog-only fields.
type Entry struct {
	conversation.Expert `yaml:",inline"`

	// SpeechVoice is the synthesis voice used when speaking as this expert.
	SpeechVoice   string  `json:"speech_voice,omitempty" yaml:"speech_voice"`
	Rating        float64 `json:"rating,omitempty" yaml:"rating"`
	TotalSessions int     `json:"total_sessions,omitempty" yaml:"total_sessions"`
}

// ID is the URL-safe slug of the expert's name.
func (e Entry) ID() string { return Slug(e.Name) }

// CoachingOption is a session type.
type CoachingOption struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
	Duration    string `json:"duration" yaml:"duration"`
	Level       string `json:"level" yaml:"level"`
	Category    string `json:"category" yaml:"category"`
}

type catalogFile struct {
	Experts         []Entry          `yaml:"experts"`
	CoachingOptions []CoachingOption `yaml:"coaching_options"`
}

// Catalog holds experts and coaching options.
type Catalog struct {
	mu      sync.RWMutex
	experts map[string]*Entry
	order   []string
	options []CoachingOption
}

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{experts: make(map[string]*Entry)}
}

// Default returns a catalog with the embedded experts and options.
func Default() *Catalog {
	c := NewCatalog()
	if err := c.LoadYAML(defaultCatalog); err != nil {
		panic(fmt.Sprintf("expert: embedded catalog: %v", err))
	}
	return c
}

// LoadFile merges a YAML catalog file into c.
func (c *Catalog) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read catalog: %w", err)
	}
	return c.LoadYAML(data)
}

// LoadYAML merges a YAML catalog. Experts with an existing name replace
// the earlier entry; coaching options are appended unless already present.
func (c *Catalog) LoadYAML(data []byte) error {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}
	for i, e := range f.Experts {
		if strings.TrimSpace(e.Name) == "" {
			return fmt.Errorf("%w: expert %d has no name", ErrInvalidCatalog, i)
		}
		if strings.TrimSpace(e.Personality) == "" {
			return fmt.Errorf("%w: expert %q has no personality", ErrInvalidCatalog, e.Name)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range f.Experts {
		e := f.Experts[i]
		id := e.ID()
		if _, ok := c.experts[id]; !ok {
			c.order = append(c.order, id)
		}
		c.experts[id] = &e
	}
	for _, o := range f.CoachingOptions {
		if !c.hasOptionLocked(o.Name) {
			c.options = append(c.options, o)
		}
	}
	return nil
}

func (c *Catalog) hasOptionLocked(name string) bool {
	for _, o := range c.options {
		if strings.EqualFold(o.Name, name) {
			return true
		}
	}
	return false
}

// Get looks an expert up by name or slug, case-insensitively.
func (c *Catalog) Get(name string) (*Entry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if e, ok := c.experts[Slug(name)]; ok {
		cp := *e
		return &cp, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
}

// Experts returns all experts in load order.
func (c *Catalog) Experts() []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Entry, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, *c.experts[id])
	}
	return out
}

// ForOption returns the experts offering a coaching option, best rated
// first.
func (c *Catalog) ForOption(option string) []Entry {
	var out []Entry
	for _, e := range c.Experts() {
		for _, x := range e.Expertise {
			if strings.EqualFold(x, option) {
				out = append(out, e)
				break
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Rating > out[j].Rating })
	return out
}

// CoachingOptions returns the coaching options in load order.
func (c *Catalog) CoachingOptions() []CoachingOption {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]CoachingOption(nil), c.options...)
}

// CoachingOption looks an option up by name.
func (c *Catalog) CoachingOption(name string) (*CoachingOption, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, o := range c.options {
		if strings.EqualFold(o.Name, strings.TrimSpace(name)) {
			cp := o
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("%w: coaching option %s", ErrNotFound, name)
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// Slug lowercases name and joins its words with dashes:
// "Dr. Sarah Williams" becomes "dr-sarah-williams".
func Slug(name string) string {
	return strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(name), "-"), "-")
}
