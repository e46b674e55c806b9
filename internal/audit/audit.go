// Package audit reports tenants holding more of a category than their plan
// allows. Under soft enforcement concurrent creations can overshoot a cap;
// the audit makes that state visible.
package audit

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/mbd888/fieldwork/internal/entitlement"
	"github.com/mbd888/fieldwork/internal/plans"
	"github.com/mbd888/fieldwork/internal/subscription"
)

// Subscriptions lists the subscriptions to audit.
type Subscriptions interface {
	ListActive(ctx context.Context) ([]*subscription.Subscription, error)
}

// UsageReader reports usage against caps. *entitlement.Gate satisfies it.
type UsageReader interface {
	Usage(ctx context.Context, tenantID string) (map[plans.Category]entitlement.UsageInfo, error)
}

// Finding is one tenant/category over its cap.
type Finding struct {
	TenantID string         `json:"tenantId"`
	Plan     string         `json:"plan"`
	Category plans.Category `json:"category"`
	Current  int64          `json:"current"`
	Cap      int64          `json:"cap"`
	Excess   int64          `json:"excess"`
}

// Report is the outcome of one run.
type Report struct {
	StartedAt time.Time     `json:"startedAt"`
	Duration  time.Duration `json:"durationNs"`
	Tenants   int           `json:"tenants"`
	Findings  []Finding     `json:"findings"`
	Failed    []string      `json:"failedTenants,omitempty"`
}

// Clean reports whether no tenant is over a cap.
func (r *Report) Clean() bool { return len(r.Findings) == 0 }

// Runner walks active subscriptions and compares usage to caps.
type Runner struct {
	subs   Subscriptions
	usage  UsageReader
	logger *slog.Logger
	now    func() time.Time

	mu   sync.RWMutex
	last *Report
}

// NewRunner creates an audit runner.
func NewRunner(subs Subscriptions, usage UsageReader, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{subs: subs, usage: usage, logger: logger, now: time.Now}
}

// Run audits every active subscription. A tenant whose usage cannot be
// read is listed in Failed and does not abort the run.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	start := r.now()
	defer func() { runDuration.Observe(time.Since(start).Seconds()) }()

	subs, err := r.subs.ListActive(ctx)
	if err != nil {
		runErrors.Inc()
		return nil, fmt.Errorf("list active subscriptions: %w", err)
	}

	rep := &Report{StartedAt: start.UTC(), Tenants: len(subs), Findings: []Finding{}}
	perCategory := make(map[plans.Category]int, len(plans.Categories))

	for _, sub := range subs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		usage, err := r.usage.Usage(ctx, sub.TenantID)
		if err != nil {
			runErrors.Inc()
			r.logger.Warn("audit: usage unavailable", "tenant", sub.TenantID, "error", err)
			rep.Failed = append(rep.Failed, sub.TenantID)
			continue
		}
		for _, cat := range plans.Categories {
			u := usage[cat]
			if u.Current <= u.Cap {
				continue
			}
			rep.Findings = append(rep.Findings, Finding{
				TenantID: sub.TenantID,
				Plan:     sub.PlanName,
				Category: cat,
				Current:  u.Current,
				Cap:      u.Cap,
				Excess:   u.Current - u.Cap,
			})
			perCategory[cat]++
		}
	}

	sort.Slice(rep.Findings, func(i, j int) bool {
		a, b := rep.Findings[i], rep.Findings[j]
		if a.TenantID != b.TenantID {
			return a.TenantID < b.TenantID
		}
		return a.Category < b.Category
	})
	rep.Duration = r.now().Sub(start)

	for _, cat := range plans.Categories {
		overLimit.WithLabelValues(string(cat)).Set(float64(perCategory[cat]))
	}
	if !rep.Clean() {
		r.logger.Warn("audit: tenants over limit", "findings", len(rep.Findings), "tenants", rep.Tenants)
	}

	r.mu.Lock()
	r.last = rep
	r.mu.Unlock()
	return rep, nil
}

// Last returns the most recent report, or nil before the first run.
func (r *Runner) Last() *Report {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.last
}
