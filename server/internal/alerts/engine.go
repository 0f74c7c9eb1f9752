package alerts

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/obsidianstack/roomrelay/server/internal/config"
)

const (
	defaultCooldown = 15 * time.Minute
	maxHistoryLen   = 200
	recentWindow    = time.Hour
)

// Alert represents a single alert event produced by the rule engine.
type Alert struct {
	ID         string     `json:"id"`
	RuleName   string     `json:"rule_name"`
	Severity   string     `json:"severity"`
	Message    string     `json:"message"`
	Value      float64    `json:"value"`
	FiredAt    time.Time  `json:"fired_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	State      string     `json:"state"` // "firing" | "resolved"
}

type rule struct {
	config.AlertRule
	cond condition
}

// Engine evaluates alert rules against relay metric series and delivers
// webhook notifications when rules fire or resolve.
//
// Engine is safe for concurrent use.
type Engine struct {
	rules    []rule
	webhooks []config.WebhookConfig
	client   *http.Client
	now      func() time.Time

	mu       sync.Mutex
	active   map[string]*Alert    // key: rule name
	lastFire map[string]time.Time // last fire time per rule (for cooldown)
	history  []*Alert             // recently resolved alerts
	wg       sync.WaitGroup       // in-flight deliveries
}

// New creates an Engine from the alert configuration. Every rule condition
// is parsed up front; a malformed one is an error. An Engine with no rules
// is valid and Evaluate becomes a no-op.
func New(cfg config.AlertsConfig) (*Engine, error) {
	rules := make([]rule, 0, len(cfg.Rules))
	for _, r := range cfg.Rules {
		if r.Name == "" {
			return nil, fmt.Errorf("alerts: rule with condition %q has no name", r.Condition)
		}
		c, err := parseCondition(r.Condition)
		if err != nil {
			return nil, fmt.Errorf("alerts: rule %q: %w", r.Name, err)
		}
		rules = append(rules, rule{AlertRule: r, cond: c})
	}
	return &Engine{
		rules:    rules,
		webhooks: cfg.Webhooks,
		client:   &http.Client{Timeout: 10 * time.Second},
		now:      time.Now,
		active:   make(map[string]*Alert),
		lastFire: make(map[string]time.Time),
	}, nil
}

// Evaluate tests all rules against series. Rules that fire are recorded and
// webhook delivery starts in the background. Firing rules whose condition no
// longer holds are resolved.
func (e *Engine) Evaluate(series map[string]float64) {
	if len(e.rules) == 0 {
		return
	}

	now := e.now()
	for _, r := range e.rules {
		fires, value := r.cond.eval(series)

		e.mu.Lock()
		a, firing := e.active[r.Name]
		switch {
		case fires && !firing:
			cooldown := r.Cooldown
			if cooldown <= 0 {
				cooldown = defaultCooldown
			}
			if last, ok := e.lastFire[r.Name]; ok && now.Sub(last) < cooldown {
				e.mu.Unlock()
				continue
			}
			sev := r.Severity
			if sev == "" {
				sev = "warning"
			}
			a = &Alert{
				ID:       fmt.Sprintf("%s:%d", r.Name, now.UnixNano()),
				RuleName: r.Name,
				Severity: sev,
				Value:    value,
				Message:  fmt.Sprintf("[%s] %s fired: %s (value %.2f)", sev, r.Name, r.Condition, value),
				FiredAt:  now,
				State:    "firing",
			}
			e.active[r.Name] = a
			e.lastFire[r.Name] = now
			alertCopy := *a
			e.mu.Unlock()

			slog.Warn("alerts: fired", "rule", r.Name, "value", value, "severity", sev)
			e.deliverAsync(&alertCopy)

		case fires && firing:
			a.Value = value
			e.mu.Unlock()

		case !fires && firing:
			resolved := now
			a.State = "resolved"
			a.ResolvedAt = &resolved
			delete(e.active, r.Name)

			e.history = append(e.history, a)
			if len(e.history) > maxHistoryLen {
				e.history = e.history[len(e.history)-maxHistoryLen:]
			}
			alertCopy := *a
			e.mu.Unlock()

			slog.Info("alerts: resolved", "rule", r.Name, "value", value)
			e.deliverAsync(&alertCopy)

		default:
			e.mu.Unlock()
		}
	}
}

// Run evaluates the rules against source every interval until ctx is
// cancelled, then waits for in-flight webhook deliveries.
func (e *Engine) Run(ctx context.Context, interval time.Duration, source func() (map[string]float64, error)) {
	defer e.wg.Wait()
	if len(e.rules) == 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			series, err := source()
			if err != nil {
				slog.Error("alerts: read metrics", "err", err)
				continue
			}
			e.Evaluate(series)
		}
	}
}

// Active returns copies of all currently firing alerts plus any alerts
// resolved within the past hour, newest first.
func (e *Engine) Active() []*Alert {
	e.mu.Lock()
	defer e.mu.Unlock()

	cutoff := e.now().Add(-recentWindow)
	out := make([]*Alert, 0, len(e.active))

	for _, a := range e.active {
		cp := *a
		out = append(out, &cp)
	}
	for _, a := range e.history {
		if a.ResolvedAt != nil && a.ResolvedAt.After(cutoff) {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FiredAt.After(out[j].FiredAt) })
	return out
}

func (e *Engine) deliverAsync(a *Alert) {
	if len(e.webhooks) == 0 {
		return
	}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.deliver(a)
	}()
}
