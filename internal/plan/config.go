// Package plan turns a user request config into a normalized retrieval plan:
// one entry per (source, variable, contiguous day run), each classified as
// cache hit or miss.
package plan

import (
	"fmt"
	"sort"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/kacper-wojtaszczyk/weathermart/internal/model"
	"github.com/kacper-wojtaszczyk/weathermart/internal/retriever"
)

// UnrecognizedConfigKeyError reports a config key that is neither a reserved
// option nor a registered source. Typos fail fast instead of being silently
// ignored.
type UnrecognizedConfigKeyError struct {
	Key string
}

func (e *UnrecognizedConfigKeyError) Error() string {
	return fmt.Sprintf("unrecognized config key %q", e.Key)
}

// Request asks for one or more canonical variables from one source.
type Request struct {
	Source    model.Source
	Variables []model.CanonicalVariable
}

// Config is the normalized user request: the days to cover, the per-source
// variable lists in config order, and the shared extra parameters.
type Config struct {
	Days         []model.Date
	Requests     []Request
	Options      model.ExtraParams
	ForceRefresh bool
}

var validate = validator.New()

// optionLimits mirrors the bounded options for validation.
type optionLimits struct {
	UseLimitation int `validate:"omitempty,min=1,max=40"`
}

// Validate checks the config invariants shared by every entry point.
func (c *Config) Validate() error {
	if len(c.Days) == 0 {
		return fmt.Errorf("config must request at least one date")
	}
	if len(c.Requests) == 0 {
		return fmt.Errorf("config must request at least one source")
	}
	for _, req := range c.Requests {
		if err := req.Source.Validate(); err != nil {
			return err
		}
		if len(req.Variables) == 0 {
			return fmt.Errorf("source %q has no variables", req.Source)
		}
	}
	if err := validate.Struct(optionLimits{UseLimitation: c.Options.UseLimitation}); err != nil {
		return &retriever.InvalidParameterError{
			Name:   "use_limitation",
			Reason: fmt.Sprintf("must be between 1 and %d", model.MaxUseLimitation),
		}
	}
	return nil
}

// ParseYAML decodes a request document, e.g.
//
//	dates: ["2024-01-01", "2024-01-02"]
//	OPERA: TOT_PREC
//	SURFACE: [T_2M, TOT_PREC]
//	use_limitation: 30
//
// Source order is preserved from the document. Keys that are neither
// reserved options nor source requests surface later as
// UnrecognizedConfigKeyError when the plan is built.
func ParseYAML(data []byte) (*Config, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) != 1 || doc.Content[0].Kind != yaml.MappingNode {
		return nil, fmt.Errorf("config must be a mapping")
	}
	mapping := doc.Content[0]

	cfg := &Config{}
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		key := mapping.Content[i].Value
		value := mapping.Content[i+1]
		if err := cfg.apply(key, value); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromMap builds a config from an in-memory document. Source order follows
// sorted key order for determinism, since Go maps carry none.
func FromMap(doc map[string]any) (*Config, error) {
	keys := make([]string, 0, len(doc))
	for k := range doc {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	cfg := &Config{}
	for _, key := range keys {
		node := &yaml.Node{}
		if err := node.Encode(doc[key]); err != nil {
			return nil, fmt.Errorf("config key %q: %w", key, err)
		}
		if err := cfg.apply(key, node); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) apply(key string, value *yaml.Node) error {
	switch key {
	case "dates":
		var raw []string
		if err := decodeScalarOrList(value, &raw); err != nil {
			return fmt.Errorf("config key %q: %w", key, err)
		}
		for _, s := range raw {
			d, err := model.ParseDate(s)
			if err != nil {
				return fmt.Errorf("config key %q: %w", key, err)
			}
			c.Days = append(c.Days, d)
		}
		c.Days = model.SortDates(c.Days)
	case "bounds":
		var edges []float64
		if err := value.Decode(&edges); err != nil {
			return fmt.Errorf("config key %q: %w", key, err)
		}
		if len(edges) != 4 {
			return &retriever.InvalidParameterError{Name: "bounds", Reason: "must be [min_lon, min_lat, max_lon, max_lat]"}
		}
		b := model.NewBounds(edges[0], edges[1], edges[2], edges[3])
		c.Options.Bounds = &b
	case "target_crs":
		return value.Decode(&c.Options.TargetCRS)
	case "ensemble_members":
		return decodeScalarOrList(value, &c.Options.EnsembleMembers)
	case "step_hours":
		return decodeScalarOrList(value, &c.Options.StepHours)
	case "levels":
		return decodeScalarOrList(value, &c.Options.Levels)
	case "use_limitation":
		if err := value.Decode(&c.Options.UseLimitation); err != nil {
			return fmt.Errorf("config key %q: %w", key, err)
		}
		// An explicit value must be in range even when it matches the
		// zero value, which the omitempty struct check would skip.
		if err := validate.Var(c.Options.UseLimitation, "min=1,max=40"); err != nil {
			return &retriever.InvalidParameterError{
				Name:   "use_limitation",
				Reason: fmt.Sprintf("must be between 1 and %d", model.MaxUseLimitation),
			}
		}
		return nil
	case "credentials_path":
		return value.Decode(&c.Options.CredentialsPath)
	case "force_refresh":
		return value.Decode(&c.ForceRefresh)
	default:
		// Any other key is a source request. Whether the source actually
		// exists is checked against the registry when planning. A repeated
		// source key merges into the earlier request so the planner never
		// sees the same (source, variable) twice.
		var vars []string
		if err := decodeScalarOrList(value, &vars); err != nil {
			return fmt.Errorf("config key %q: %w", key, err)
		}
		source := model.Source(key)
		idx := -1
		for i := range c.Requests {
			if c.Requests[i].Source == source {
				idx = i
				break
			}
		}
		if idx < 0 {
			c.Requests = append(c.Requests, Request{Source: source})
			idx = len(c.Requests) - 1
		}
		for _, v := range vars {
			variable := model.CanonicalVariable(v)
			if !containsVariable(c.Requests[idx].Variables, variable) {
				c.Requests[idx].Variables = append(c.Requests[idx].Variables, variable)
			}
		}
	}
	return nil
}

func containsVariable(vars []model.CanonicalVariable, v model.CanonicalVariable) bool {
	for _, have := range vars {
		if have == v {
			return true
		}
	}
	return false
}

// decodeScalarOrList accepts either a bare scalar or a sequence, so
// single-variable requests read naturally.
func decodeScalarOrList[T any](value *yaml.Node, out *[]T) error {
	if value.Kind == yaml.SequenceNode {
		return value.Decode(out)
	}
	var single T
	if err := value.Decode(&single); err != nil {
		return err
	}
	*out = []T{single}
	return nil
}
