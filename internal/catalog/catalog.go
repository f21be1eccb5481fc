// Package catalog loads the immutable templates resources, actions and
// incidents are instantiated from.
package catalog

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/MRamiBalles/colony/server/internal/domain/action"
	"github.com/MRamiBalles/colony/server/internal/domain/incident"
	"github.com/MRamiBalles/colony/server/internal/domain/resource"
)

// ErrUnknownTemplate is returned when an id is not in the catalog.
var ErrUnknownTemplate = errors.New("unknown template")

//go:embed catalog.yaml
var defaultYAML []byte

//go:embed catalog.schema.json
var schemaJSON []byte

const schemaURL = "https://colony.schemas.local/catalog.schema.json"

// Catalog is the decoded content. It is read-only once loaded.
type Catalog struct {
	Version         int            `yaml:"version"`
	StartingActions []string       `yaml:"starting_actions"`
	Resources       []resource.Def `yaml:"resources"`
	Actions         []action.Def   `yaml:"actions"`
	Incidents       []incident.Def `yaml:"incidents"`

	resources map[string]resource.Def
	actions   map[string]action.Def
	incidents map[string]incident.Def
}

// Default returns the embedded catalog.
func Default() (*Catalog, error) {
	return Parse(defaultYAML)
}

// MustDefault is Default for binaries and tests; the embedded file is
// validated by the test suite.
func MustDefault() *Catalog {
	c, err := Default()
	if err != nil {
		panic(err)
	}
	return c
}

// LoadFile reads a catalog from disk.
func LoadFile(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog %s: %w", path, err)
	}
	return Parse(raw)
}

// Parse validates raw YAML against the schema, decodes it and checks that
// every id reference resolves.
func Parse(raw []byte) (*Catalog, error) {
	if err := validateSchema(raw); err != nil {
		return nil, err
	}

	var c Catalog
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil {
		return nil, fmt.Errorf("failed to decode catalog: %w", err)
	}
	if err := c.index(); err != nil {
		return nil, err
	}
	return &c, nil
}

func validateSchema(raw []byte) error {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft7
	if err := compiler.AddResource(schemaURL, bytes.NewReader(schemaJSON)); err != nil {
		return fmt.Errorf("catalog schema load failed: %w", err)
	}
	schema, err := compiler.Compile(schemaURL)
	if err != nil {
		return fmt.Errorf("catalog schema compile failed: %w", err)
	}

	// The validator expects JSON values, so YAML goes through a JSON round trip.
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("failed to parse catalog: %w", err)
	}
	asJSON, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to convert catalog: %w", err)
	}
	var generic any
	if err := json.Unmarshal(asJSON, &generic); err != nil {
		return fmt.Errorf("failed to convert catalog: %w", err)
	}
	if err := schema.Validate(generic); err != nil {
		return fmt.Errorf("catalog schema validation failed: %w", err)
	}
	return nil
}

func (c *Catalog) index() error {
	c.resources = make(map[string]resource.Def, len(c.Resources))
	c.actions = make(map[string]action.Def, len(c.Actions))
	c.incidents = make(map[string]incident.Def, len(c.Incidents))

	var errs []error
	for _, r := range c.Resources {
		if _, dup := c.resources[r.ID]; dup {
			errs = append(errs, fmt.Errorf("duplicate resource %q", r.ID))
		}
		c.resources[r.ID] = r
	}
	for _, a := range c.Actions {
		if _, dup := c.actions[a.ID]; dup {
			errs = append(errs, fmt.Errorf("duplicate action %q", a.ID))
		}
		c.actions[a.ID] = a
	}
	for _, in := range c.Incidents {
		if _, dup := c.incidents[in.ID]; dup {
			errs = append(errs, fmt.Errorf("duplicate incident %q", in.ID))
		}
		c.incidents[in.ID] = in
	}

	costs := func(owner string, list []resource.Cost) {
		for _, cost := range list {
			if _, ok := c.resources[cost.ResourceID]; !ok {
				errs = append(errs, fmt.Errorf("%s: resource %q: %w", owner, cost.ResourceID, ErrUnknownTemplate))
			}
		}
	}
	actionRefs := func(owner string, ids []string) {
		for _, id := range ids {
			if _, ok := c.actions[id]; !ok {
				errs = append(errs, fmt.Errorf("%s: action %q: %w", owner, id, ErrUnknownTemplate))
			}
		}
	}

	actionRefs("starting_actions", c.StartingActions)
	for _, a := range c.Actions {
		owner := "action " + a.ID
		costs(owner, a.Consume)
		costs(owner, a.Give)
		actionRefs(owner, a.Unlock)
		actionRefs(owner, a.Lock)
	}
	for _, in := range c.Incidents {
		owner := "incident " + in.ID
		costs(owner, in.Consume)
		costs(owner, in.Give)
		costs(owner, in.GivePool)
	}
	return errors.Join(errs...)
}

// Get returns the template with the given id, whatever its kind.
func (c *Catalog) Get(id string) (any, error) {
	if r, ok := c.resources[id]; ok {
		return r, nil
	}
	if a, ok := c.actions[id]; ok {
		return a, nil
	}
	if in, ok := c.incidents[id]; ok {
		return in, nil
	}
	return nil, fmt.Errorf("%q: %w", id, ErrUnknownTemplate)
}

func (c *Catalog) Resource(id string) (resource.Def, error) {
	r, ok := c.resources[id]
	if !ok {
		return resource.Def{}, fmt.Errorf("resource %q: %w", id, ErrUnknownTemplate)
	}
	return r, nil
}

func (c *Catalog) Action(id string) (action.Def, error) {
	a, ok := c.actions[id]
	if !ok {
		return action.Def{}, fmt.Errorf("action %q: %w", id, ErrUnknownTemplate)
	}
	return a, nil
}

func (c *Catalog) Incident(id string) (incident.Def, error) {
	in, ok := c.incidents[id]
	if !ok {
		return incident.Def{}, fmt.Errorf("incident %q: %w", id, ErrUnknownTemplate)
	}
	return in, nil
}

// SortedResources returns the resource templates in display order.
func (c *Catalog) SortedResources() []resource.Def {
	out := append([]resource.Def(nil), c.Resources...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}
