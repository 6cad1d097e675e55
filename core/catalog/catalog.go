// Package catalog loads the read-only zone and scenario catalog and tracks
// which concrete locations are held by active calls.
package catalog

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/kilianp07/regiondispatch/core/model"
)

// ErrUnknownScenario is returned when a scenario name is not in the catalog.
var ErrUnknownScenario = errors.New("unknown scenario")

// Catalog is the immutable set of zones and scenarios.
type Catalog struct {
	Zones     []*model.Zone
	Scenarios []*model.Scenario

	byName     map[string]*model.Scenario
	byCategory map[string][]*model.Scenario
	zones      map[string]*model.Zone
}

// Load reads a catalog from a JSON or YAML file.
func Load(path string) (*Catalog, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	return Decode(bytes.NewReader(b), ext)
}

// Decode reads a catalog in the given format ("yaml" or "json") from r,
// validates it and builds the model.
func Decode(r io.Reader, format string) (*Catalog, error) {
	var f File
	switch strings.ToLower(format) {
	case "yaml", "yml":
		if err := yaml.NewDecoder(r).Decode(&f); err != nil {
			return nil, fmt.Errorf("decode catalog: %w", err)
		}
	case "json":
		dec := json.NewDecoder(r)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&f); err != nil {
			return nil, fmt.Errorf("decode catalog: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported catalog format: %s", format)
	}
	if err := Validate(f); err != nil {
		return nil, err
	}
	return Build(f)
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and cross references of a catalog file.
func Validate(f File) error {
	if err := validate.Struct(f); err != nil {
		return fmt.Errorf("invalid catalog: %w", err)
	}
	categories := make(map[string]bool)
	names := make(map[string]bool)
	for _, s := range f.Scenarios {
		if names[s.Name] {
			return fmt.Errorf("invalid catalog: duplicate scenario %s", s.Name)
		}
		names[s.Name] = true
		categories[s.Category] = true
	}
	zoneIDs := make(map[string]bool)
	locIDs := make(map[string]bool)
	for _, z := range f.Zones {
		if zoneIDs[z.ID] {
			return fmt.Errorf("invalid catalog: duplicate zone %s", z.ID)
		}
		zoneIDs[z.ID] = true
		for c := range z.Categories {
			if !categories[c] {
				return fmt.Errorf("invalid catalog: zone %s references unknown category %s", z.ID, c)
			}
		}
		for _, l := range z.Locations {
			if locIDs[l.ID] {
				return fmt.Errorf("invalid catalog: duplicate location %s", l.ID)
			}
			locIDs[l.ID] = true
		}
	}
	return nil
}

// Build converts a validated file into a Catalog.
func Build(f File) (*Catalog, error) {
	c := &Catalog{
		byName:     make(map[string]*model.Scenario),
		byCategory: make(map[string][]*model.Scenario),
		zones:      make(map[string]*model.Zone),
	}
	for _, sf := range f.Scenarios {
		code, err := model.ParseResponseCode(sf.ResponseCode)
		if err != nil {
			return nil, err
		}
		mult, err := multipliers(sf.Multipliers)
		if err != nil {
			return nil, fmt.Errorf("scenario %s: %w", sf.Name, err)
		}
		s := &model.Scenario{
			Name:            sf.Name,
			Category:        sf.Category,
			Priority:        model.Priority(sf.Priority),
			RequiredUnits:   sf.RequiredUnits,
			ResponseCode:    code,
			LocationTypes:   append([]string(nil), sf.LocationTypes...),
			Descriptions:    append([]string(nil), sf.Descriptions...),
			BaseProbability: sf.Probability,
			Multipliers:     mult,
		}
		c.Scenarios = append(c.Scenarios, s)
		c.byName[s.Name] = s
		c.byCategory[s.Category] = append(c.byCategory[s.Category], s)
	}
	for _, zf := range f.Zones {
		z := &model.Zone{
			ID:           zf.ID,
			Name:         zf.Name,
			Size:         zf.Size,
			Population:   zf.Population,
			SocialClass:  zf.SocialClass,
			AverageCalls: make(map[model.TimePeriod]int, len(zf.AverageCalls)),
			Categories:   make(map[string]model.Multipliers, len(zf.Categories)),
		}
		for k, v := range zf.AverageCalls {
			p, err := model.ParseTimePeriod(k)
			if err != nil {
				return nil, fmt.Errorf("zone %s: %w", zf.ID, err)
			}
			z.AverageCalls[p] = v
		}
		for cat, m := range zf.Categories {
			mult, err := multipliers(m)
			if err != nil {
				return nil, fmt.Errorf("zone %s: %w", zf.ID, err)
			}
			z.Categories[cat] = mult
		}
		for _, lf := range zf.Locations {
			z.Locations = append(z.Locations, &model.Location{
				ID:       lf.ID,
				Type:     lf.Type,
				Position: model.Position{X: lf.X, Y: lf.Y},
				ZoneID:   zf.ID,
			})
		}
		c.Zones = append(c.Zones, z)
		c.zones[z.ID] = z
	}
	return c, nil
}

func multipliers(in map[string]float64) (model.Multipliers, error) {
	out := make(model.Multipliers, len(in))
	for k, v := range in {
		p, err := model.ParseTimePeriod(k)
		if err != nil {
			return nil, err
		}
		out[p] = v
	}
	return out, nil
}

// Scenario returns the scenario with the given name.
func (c *Catalog) Scenario(name string) (*model.Scenario, error) {
	s, ok := c.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownScenario, name)
	}
	return s, nil
}

// Zone returns the zone with the given id.
func (c *Catalog) Zone(id string) (*model.Zone, bool) {
	z, ok := c.zones[id]
	return z, ok
}

// ScenariosIn returns the scenarios of a category.
func (c *Catalog) ScenariosIn(category string) []*model.Scenario {
	return c.byCategory[category]
}

// Categories returns a sorted list of every scenario category.
func (c *Catalog) Categories() []string {
	out := make([]string, 0, len(c.byCategory))
	for k := range c.byCategory {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// ZonesFor returns the zones in which the scenario may happen.
func (c *Catalog) ZonesFor(s *model.Scenario) []*model.Zone {
	var out []*model.Zone
	for _, z := range c.Zones {
		if _, ok := z.Categories[s.Category]; ok {
			out = append(out, z)
		}
	}
	return out
}
