package billing

import (
	"context"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/dmitrymomot/meterkit/pkg/metering"
)

// PlanSource provides read access to the plan catalog.
type PlanSource interface {
	Plan(ctx context.Context, id string) (Plan, error)
	Plans(ctx context.Context) ([]Plan, error)
}

// MemoryPlanSource is a fixed, validated plan catalog.
type MemoryPlanSource struct {
	plans map[string]Plan
}

// NewMemoryPlanSource validates plans and indexes them by id.
func NewMemoryPlanSource(plans ...Plan) (*MemoryPlanSource, error) {
	s := &MemoryPlanSource{plans: make(map[string]Plan, len(plans))}
	for _, p := range plans {
		if err := p.Validate(); err != nil {
			return nil, err
		}
		if _, ok := s.plans[p.ID]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicatePlan, p.ID)
		}
		s.plans[p.ID] = clonePlan(p)
	}
	return s, nil
}

func (s *MemoryPlanSource) Plan(_ context.Context, id string) (Plan, error) {
	p, ok := s.plans[id]
	if !ok {
		return Plan{}, fmt.Errorf("%w: %s", ErrPlanNotFound, id)
	}
	return clonePlan(p), nil
}

// Plans returns every plan sorted by id.
func (s *MemoryPlanSource) Plans(_ context.Context) ([]Plan, error) {
	ids := slices.Sorted(maps.Keys(s.plans))
	out := make([]Plan, 0, len(ids))
	for _, id := range ids {
		out = append(out, clonePlan(s.plans[id]))
	}
	return out, nil
}

func clonePlan(p Plan) Plan {
	p.Quotas = maps.Clone(p.Quotas)
	p.Prices = maps.Clone(p.Prices)
	return p
}

type yamlCatalog struct {
	Plans []yamlPlan `yaml:"plans"`
}

type yamlPlan struct {
	ID        string                    `yaml:"id"`
	Name      string                    `yaml:"name"`
	Version   int                       `yaml:"version"`
	Quotas    map[string]metering.Limit `yaml:"quotas"`
	Prices    map[string]string         `yaml:"prices"`
	TrialDays int                       `yaml:"trial_days"`
	CycleDays int                       `yaml:"cycle_days"`
	Active    *bool                     `yaml:"active"`
}

// NewYAMLSource reads a plan catalog document:
//
//	plans:
//	  - id: pro-v1
//	    quotas: {storage: 107374182400, processing: 600, apiCalls: unlimited, ...}
//	    prices: {USD: "29.00"}
//	    trial_days: 14
//
// Plans are active unless they set active: false.
func NewYAMLSource(r io.Reader) (*MemoryPlanSource, error) {
	var doc yamlCatalog
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFailedToLoadPlans, err)
	}

	plans := make([]Plan, 0, len(doc.Plans))
	for _, yp := range doc.Plans {
		p, err := yp.plan()
		if err != nil {
			return nil, err
		}
		plans = append(plans, p)
	}
	return NewMemoryPlanSource(plans...)
}

// LoadYAMLFile opens path and passes it to NewYAMLSource.
func LoadYAMLFile(path string) (*MemoryPlanSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFailedToLoadPlans, err)
	}
	defer f.Close()
	return NewYAMLSource(f)
}

func (yp yamlPlan) plan() (Plan, error) {
	p := Plan{
		ID:        yp.ID,
		Name:      yp.Name,
		Version:   yp.Version,
		Quotas:    make(map[metering.Resource]metering.Limit, len(yp.Quotas)),
		Prices:    make(map[string]decimal.Decimal, len(yp.Prices)),
		TrialDays: yp.TrialDays,
		CycleDays: yp.CycleDays,
		Active:    yp.Active == nil || *yp.Active,
	}
	for name, l := range yp.Quotas {
		r, err := metering.ParseResource(name)
		if err != nil {
			return Plan{}, fmt.Errorf("%w: %s: %w", ErrInvalidPlan, yp.ID, err)
		}
		p.Quotas[r] = l
	}
	for cur, raw := range yp.Prices {
		price, err := decimal.NewFromString(raw)
		if err != nil {
			return Plan{}, fmt.Errorf("%w: %s: price %q: %w", ErrInvalidPlan, yp.ID, raw, err)
		}
		p.Prices[strings.ToUpper(cur)] = price
	}
	return p, nil
}
