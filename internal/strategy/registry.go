package strategy

import (
	"fmt"
	"sort"
	"sync"

	"github.com/alanyoungcy/stratbot/internal/config"
)

// builder constructs one strategy from configuration and reports whether it
// is enabled.
type builder func(cfg config.StrategiesConfig, common Common) (Strategy, ExitPolicy, bool)

// builders is the closed set of strategies, keyed by name.
var builders = map[string]builder{
	LatencyArbitrageName: func(cfg config.StrategiesConfig, common Common) (Strategy, ExitPolicy, bool) {
		c := cfg.LatencyArbitrage
		return NewLatencyArbitrage(c, common), exitPolicy(c.Exit), c.Enabled
	},
	BinaryHedgingName: func(cfg config.StrategiesConfig, common Common) (Strategy, ExitPolicy, bool) {
		return NewBinaryHedging(cfg.BinaryHedging, common), ExitPolicy{}, cfg.BinaryHedging.Enabled
	},
	CombinatorialArbitrageName: func(cfg config.StrategiesConfig, common Common) (Strategy, ExitPolicy, bool) {
		return NewCombinatorialArbitrage(cfg.CombinatorialArbitrage, common), ExitPolicy{}, cfg.CombinatorialArbitrage.Enabled
	},
	MarketMakingName: func(cfg config.StrategiesConfig, common Common) (Strategy, ExitPolicy, bool) {
		c := cfg.MarketMaking
		return NewMarketMaking(c, common), exitPolicy(c.Exit), c.Enabled
	},
}

func exitPolicy(c config.ExitConfig) ExitPolicy {
	return ExitPolicy{TakeProfit: c.TakeProfit, StopLoss: c.StopLoss, MaxHold: c.MaxHold.Duration}
}

// Names lists every known strategy name in sorted order.
func Names() []string {
	names := make([]string, 0, len(builders))
	for n := range builders {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// StrategyInfo holds runtime info for a registered strategy (for status APIs).
type StrategyInfo struct {
	Name     string `json:"name"`
	Priority int    `json:"priority"`
	Enabled  bool   `json:"enabled"`
	Exit     string `json:"exit,omitempty"`
}

// Registry holds the enabled strategies and every strategy's exit policy. It
// is safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	strategies map[string]Strategy
	exits      map[string]ExitPolicy
	infos      []StrategyInfo
}

// NewRegistry builds every strategy in the lookup table and keeps the
// enabled ones.
func NewRegistry(cfg config.StrategiesConfig, common Common) *Registry {
	r := &Registry{
		strategies: make(map[string]Strategy),
		exits:      make(map[string]ExitPolicy),
	}
	for _, name := range Names() {
		s, exit, enabled := builders[name](cfg, common)
		r.exits[name] = exit
		info := StrategyInfo{Name: name, Priority: s.Priority(), Enabled: enabled}
		if !exit.IsZero() {
			info.Exit = fmt.Sprintf("tp=%.2fx sl=%.2fx max_hold=%s", exit.TakeProfit, exit.StopLoss, exit.MaxHold)
		}
		r.infos = append(r.infos, info)
		if enabled {
			r.strategies[name] = s
		}
	}
	return r
}

// Get retrieves an enabled strategy by name.
func (r *Registry) Get(name string) (Strategy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.strategies[name]
	if !ok {
		return nil, fmt.Errorf("strategy %q: not registered", name)
	}
	return s, nil
}

// Enabled returns the enabled strategies ordered by (priority, name).
func (r *Registry) Enabled() []Strategy {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Strategy, 0, len(r.strategies))
	for _, s := range r.strategies {
		out = append(out, s)
	}
	sortByPriority(out)
	return out
}

// Exit returns the exit policy for a strategy name.
func (r *Registry) Exit(name string) ExitPolicy {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.exits[name]
}

// ListInfo returns info for every known strategy, enabled or not.
func (r *Registry) ListInfo() []StrategyInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]StrategyInfo(nil), r.infos...)
}

func sortByPriority(ss []Strategy) {
	sort.SliceStable(ss, func(i, j int) bool {
		if ss[i].Priority() != ss[j].Priority() {
			return ss[i].Priority() < ss[j].Priority()
		}
		return ss[i].Name() < ss[j].Name()
	})
}
