package domain

import (
	"errors"
	"fmt"
)

// Limits são as quotas gerais de um tier. Zero desliga a janela.
type Limits struct {
	PerMinute int `yaml:"per_minute"`
	PerHour   int `yaml:"per_hour"`
	PerDay    int `yaml:"per_day"`
}

// Override substitui minute/hour de um tier para um endpoint. Zero herda o geral.
// Não existe override diário.
type Override struct {
	PerMinute int `yaml:"per_minute"`
	PerHour   int `yaml:"per_hour"`
}

// PolicyTable é carregada uma vez no startup e tratada como imutável.
type PolicyTable struct {
	Tiers     map[Tier]Limits              `yaml:"tiers"`
	Endpoints map[string]map[Tier]Override `yaml:"endpoints"`
}

func DefaultPolicy() *PolicyTable {
	return &PolicyTable{
		Tiers: map[Tier]Limits{
			TierAnonymous:     {PerMinute: 20, PerHour: 100, PerDay: 1000},
			TierAuthenticated: {PerMinute: 60, PerHour: 1000, PerDay: 10000},
			TierAdmin:         {PerMinute: 200, PerHour: 5000, PerDay: 50000},
		},
		Endpoints: map[string]map[Tier]Override{
			"/ml/sentiment": {
				TierAnonymous:     {PerMinute: 5, PerHour: 50},
				TierAuthenticated: {PerMinute: 30, PerHour: 500},
				TierAdmin:         {PerMinute: 100, PerHour: 2000},
			},
			"/ml/extract-entities": {
				TierAnonymous:     {PerMinute: 3, PerHour: 30},
				TierAuthenticated: {PerMinute: 20, PerHour: 300},
				TierAdmin:         {PerMinute: 80, PerHour: 1500},
			},
			"/analytics/trending": {
				TierAnonymous:     {PerMinute: 10, PerHour: 100},
				TierAuthenticated: {PerMinute: 30, PerHour: 500},
				TierAdmin:         {PerMinute: 100, PerHour: 2000},
			},
		},
	}
}

// LimitsFor devolve as janelas aplicáveis (mais curta primeiro).
// Overrides de endpoint valem só para minute/hour; day é sempre o geral do tier.
func (p *PolicyTable) LimitsFor(tier Tier, endpoint string) []WindowLimit {
	general := p.Tiers[tier]
	minute, hour := general.PerMinute, general.PerHour
	if o, ok := p.Endpoints[endpoint][tier]; ok {
		if o.PerMinute > 0 {
			minute = o.PerMinute
		}
		if o.PerHour > 0 {
			hour = o.PerHour
		}
	}

	out := make([]WindowLimit, 0, len(Windows))
	for _, wl := range []WindowLimit{
		{Window: WindowMinute, Limit: minute},
		{Window: WindowHour, Limit: hour},
		{Window: WindowDay, Limit: general.PerDay},
	} {
		if wl.Limit > 0 {
			out = append(out, wl)
		}
	}
	return out
}

// EffectiveLimit é o limite aplicado numa janela para tier/endpoint (0 = desligada).
func (p *PolicyTable) EffectiveLimit(tier Tier, endpoint string, w Window) int {
	for _, wl := range p.LimitsFor(tier, endpoint) {
		if wl.Window == w {
			return wl.Limit
		}
	}
	return 0
}

// Validate exige todos os tiers e quotas estritamente crescentes
// anonymous < authenticated < admin em cada janela.
func (p *PolicyTable) Validate() error {
	if p == nil {
		return errors.New("policy table is nil")
	}
	for _, t := range Tiers {
		if _, ok := p.Tiers[t]; !ok {
			return fmt.Errorf("policy: missing tier %q", t)
		}
	}
	for endpoint, byTier := range p.Endpoints {
		for t := range byTier {
			if _, err := ParseTier(string(t)); err != nil {
				return fmt.Errorf("policy: endpoint %q: %w", endpoint, err)
			}
		}
	}

	check := func(scope string, limitOf func(Tier) int) error {
		for i := 1; i < len(Tiers); i++ {
			lo, hi := limitOf(Tiers[i-1]), limitOf(Tiers[i])
			if hi == 0 {
				continue
			}
			if lo == 0 || lo >= hi {
				return fmt.Errorf("policy: %s: %s (%d) must be below %s (%d)", scope, Tiers[i-1], lo, Tiers[i], hi)
			}
		}
		return nil
	}

	for _, w := range Windows {
		if err := check(w.Name, func(t Tier) int { return generalLimit(p.Tiers[t], w) }); err != nil {
			return err
		}
	}
	for endpoint := range p.Endpoints {
		for _, w := range []Window{WindowMinute, WindowHour} {
			scope := endpoint + " " + w.Name
			if err := check(scope, func(t Tier) int { return p.EffectiveLimit(t, endpoint, w) }); err != nil {
				return err
			}
		}
	}
	return nil
}

func generalLimit(l Limits, w Window) int {
	switch w {
	case WindowMinute:
		return l.PerMinute
	case WindowHour:
		return l.PerHour
	case WindowDay:
		return l.PerDay
	}
	return 0
}
