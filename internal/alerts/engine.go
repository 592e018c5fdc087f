package alerts

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/obsidianstack/entropyscan/internal/config"
	"github.com/obsidianstack/entropyscan/internal/stats"
	"github.com/obsidianstack/entropyscan/internal/store"
)

const (
	defaultCooldown = 15 * time.Minute
	maxHistoryLen   = 200
	recentWindow    = time.Hour
)

// Alert states.
const (
	StateFiring   = "firing"
	StateResolved = "resolved"
)

// Alert represents a single alert event produced by the rule engine.
type Alert struct {
	ID         string     `json:"id"`
	RuleName   string     `json:"rule_name"`
	Subject    string     `json:"subject"` // file path or scan target
	Field      string     `json:"field"`
	Condition  string     `json:"condition"`
	Severity   string     `json:"severity"`
	Message    string     `json:"message"`
	Value      float64    `json:"value"`
	FiredAt    time.Time  `json:"fired_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	State      string     `json:"state"`
}

type rule struct {
	config.AlertRule
	cond condition
}

// Engine evaluates alert rules and delivers webhook notifications when
// rules fire or resolve.
//
// Engine is safe for concurrent use.
type Engine struct {
	rules    []rule
	webhooks []config.WebhookConfig

	mu       sync.Mutex
	active   map[string]*Alert    // key: rule name + subject
	lastFire map[string]time.Time // last fire time per key (for cooldown)
	history  []*Alert             // recently resolved alerts
	client   *http.Client
	now      func() time.Time
	wg       sync.WaitGroup
}

// New creates an Engine from the alert configuration. A condition that
// cannot be parsed is an error. An Engine with no rules is valid; Evaluate
// is then a no-op.
func New(cfg config.AlertsConfig) (*Engine, error) {
	e := &Engine{
		webhooks: cfg.Webhooks,
		active:   make(map[string]*Alert),
		lastFire: make(map[string]time.Time),
		client:   &http.Client{Timeout: 10 * time.Second},
		now:      time.Now,
	}
	for _, r := range cfg.Rules {
		c, err := parseCondition(r.Condition)
		if err != nil {
			return nil, fmt.Errorf("alerts: rule %s: %w", r.Name, err)
		}
		if r.Severity == "" {
			r.Severity = "warning"
		}
		if r.Cooldown <= 0 {
			r.Cooldown = defaultCooldown
		}
		e.rules = append(e.rules, rule{AlertRule: r, cond: c})
	}
	return e, nil
}

// Evaluate tests every rule against in. Alerts that fire are stored and
// delivered asynchronously; firing alerts whose condition no longer holds
// (including files that disappeared) are resolved.
func (e *Engine) Evaluate(in Input) {
	if len(e.rules) == 0 {
		return
	}

	var outbox []Alert
	e.mu.Lock()
	now := e.now()
	for _, r := range e.rules {
		hits := r.cond.hits(in)

		for subject, value := range hits {
			key := alertKey(r.Name, subject)
			if _, firing := e.active[key]; firing {
				continue
			}
			if last, ok := e.lastFire[key]; ok && now.Sub(last) < r.Cooldown {
				continue
			}
			a := &Alert{
				ID:       uuid.NewString(),
				RuleName: r.Name,
				Subject:   subject,
				Field:     r.cond.field,
				Condition: r.Condition,
				Severity:  r.Severity,
				Value:     value,
				FiredAt:   now,
				State:     StateFiring,
			}
			a.Message = a.summary()
			e.active[key] = a
			e.lastFire[key] = now
			outbox = append(outbox, *a)
		}

		for key, a := range e.active {
			if a.RuleName != r.Name {
				continue
			}
			if _, still := hits[a.Subject]; still {
				continue
			}
			resolved := now
			a.State = StateResolved
			a.ResolvedAt = &resolved
			a.Message = a.summary()
			delete(e.active, key)
			e.history = append(e.history, a)
			outbox = append(outbox, *a)
		}
	}
	if len(e.history) > maxHistoryLen {
		e.history = e.history[len(e.history)-maxHistoryLen:]
	}
	e.mu.Unlock()

	for i := range outbox {
		a := outbox[i]
		if a.State == StateFiring {
			slog.Warn("alert fired",
				"rule", a.RuleName, "subject", a.Subject,
				"value", a.Value, "severity", a.Severity)
		} else {
			slog.Info("alert resolved", "rule", a.RuleName, "subject", a.Subject)
		}
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			e.deliver(&a)
		}()
	}
}

// Active returns copies of all currently firing alerts plus any alerts
// resolved within the past hour, sorted newest first.
func (e *Engine) Active() []Alert {
	e.mu.Lock()
	defer e.mu.Unlock()

	cutoff := e.now().Add(-recentWindow)
	out := make([]Alert, 0, len(e.active))
	for _, a := range e.active {
		out = append(out, *a)
	}
	for _, a := range e.history {
		if a.ResolvedAt != nil && a.ResolvedAt.After(cutoff) {
			out = append(out, *a)
		}
	}
	slices.SortFunc(out, func(a, b Alert) int { return cmp.Compare(b.latest().UnixNano(), a.latest().UnixNano()) })
	return out
}

// Run evaluates the rules against st every interval, whenever the store
// changed since the previous evaluation. Run blocks until ctx is cancelled
// and then waits for pending deliveries.
func (e *Engine) Run(ctx context.Context, st *store.Store, target string, interval time.Duration) {
	defer e.wg.Wait()
	if len(e.rules) == 0 {
		return
	}

	t := time.NewTicker(interval)
	defer t.Stop()

	var seen time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			updated := st.UpdatedAt()
			if updated.Equal(seen) {
				continue
			}
			seen = updated
			e.Evaluate(InputFromStore(st, target))
		}
	}
}

// InputFromStore builds an Input from the current contents of st.
func InputFromStore(st *store.Store, target string) Input {
	files, discovered := st.Scores()
	s, _ := stats.Summarize(target, discovered, files)
	outliers, _ := stats.Outliers(files)
	return Input{Stats: s, Files: files, Outliers: outliers}
}

func (a Alert) latest() time.Time {
	if a.ResolvedAt != nil {
		return *a.ResolvedAt
	}
	return a.FiredAt
}

func alertKey(rule, subject string) string {
	return rule + "\x00" + subject
}
