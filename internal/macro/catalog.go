package macro

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// GroupInterestRates is the group whose spreads and maturity selection apply.
const GroupInterestRates = "interest_rates"

var (
	// ErrUnknownGroup is returned for a group key absent from the catalog.
	ErrUnknownGroup = errors.New("macro: unknown group")

	//go:embed indicators.yaml
	defaultCatalog []byte
)

// Spread names the operands of a derived long-minus-short series.
type Spread struct {
	Long  string `yaml:"long" json:"long"`
	Short string `yaml:"short" json:"short"`
}

// Indicator describes one series of a group.
type Indicator struct {
	Name          string  `yaml:"name" json:"name"`
	Source        string  `yaml:"source" json:"source,omitempty"`
	YoY           bool    `yaml:"yoy" json:"yoy"`
	SecondaryAxis bool    `yaml:"secondary_axis" json:"secondary_axis"`
	Hidden        bool    `yaml:"hidden" json:"hidden"`
	Bar           bool    `yaml:"bar" json:"bar"`
	DiffScale     float64 `yaml:"diff_scale" json:"diff_scale,omitempty"`
	Spread        *Spread `yaml:"spread" json:"spread,omitempty"`
}

// Fetched reports whether the indicator comes from the macro provider.
func (i Indicator) Fetched() bool {
	return i.Source != "" && i.Spread == nil
}

// Group is a named set of indicators plotted together.
type Group struct {
	Key        string      `yaml:"key" json:"key"`
	Title      string      `yaml:"title" json:"title"`
	YAxis      string      `yaml:"y_axis" json:"y_axis"`
	Y2Axis     string      `yaml:"y2_axis" json:"y2_axis,omitempty"`
	Indicators []Indicator `yaml:"indicators" json:"indicators"`
}

// Indicator looks up an indicator by name.
func (g Group) Indicator(name string) (Indicator, bool) {
	for _, ind := range g.Indicators {
		if ind.Name == name {
			return ind, true
		}
	}
	return Indicator{}, false
}

// Catalog holds every configured group.
type Catalog struct {
	Groups []Group `yaml:"groups"`
}

// DefaultCatalog parses the embedded indicator definitions.
func DefaultCatalog() (*Catalog, error) {
	return LoadCatalog(bytes.NewReader(defaultCatalog))
}

// LoadCatalog parses a YAML catalog and validates spread operands.
func LoadCatalog(r io.Reader) (*Catalog, error) {
	var c Catalog
	if err := yaml.NewDecoder(r).Decode(&c); err != nil {
		return nil, fmt.Errorf("decode macro catalog: %w", err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Catalog) validate() error {
	seen := make(map[string]struct{}, len(c.Groups))
	for _, g := range c.Groups {
		if g.Key == "" {
			return errors.New("macro catalog: group without key")
		}
		if _, dup := seen[g.Key]; dup {
			return fmt.Errorf("macro catalog: duplicate group %q", g.Key)
		}
		seen[g.Key] = struct{}{}

		for _, ind := range g.Indicators {
			if ind.Spread == nil {
				if ind.Source == "" {
					return fmt.Errorf("macro catalog: %s/%s has neither source nor spread", g.Key, ind.Name)
				}
				continue
			}
			for _, operand := range []string{ind.Spread.Long, ind.Spread.Short} {
				op, ok := g.Indicator(operand)
				if !ok || !op.Fetched() {
					return fmt.Errorf("macro catalog: spread %s/%s references unknown series %q", g.Key, ind.Name, operand)
				}
			}
		}
	}
	return nil
}

// Group looks up a group by key.
func (c *Catalog) Group(key string) (Group, error) {
	for _, g := range c.Groups {
		if g.Key == key {
			return g, nil
		}
	}
	return Group{}, fmt.Errorf("%w: %q", ErrUnknownGroup, key)
}

// Keys lists group keys in catalog order.
func (c *Catalog) Keys() []string {
	keys := make([]string, len(c.Groups))
	for i, g := range c.Groups {
		keys[i] = g.Key
	}
	return keys
}
