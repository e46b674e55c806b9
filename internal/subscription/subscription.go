// Package subscription binds a tenant to a plan.
//
// A tenant has at most one subscription. Only an active subscription grants
// entitlements; a suspended one is treated the same as no subscription.
package subscription

import (
	"errors"
	"time"

	"github.com/mbd888/fieldwork/internal/plans"
)

var (
	ErrSubscriptionNotFound = errors.New("subscription: not found")
	ErrSubscriptionExists   = errors.New("subscription: tenant already has a subscription")
	ErrInvalidStatus        = errors.New("subscription: invalid status")
	ErrPlanChangeRefused    = errors.New("subscription: plan change refused")
)

// Status is the lifecycle state of a subscription.
type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s == StatusActive || s == StatusSuspended
}

// Subscription is a tenant's binding to a plan.
type Subscription struct {
	TenantID  string                   `json:"tenantId"`
	PlanName  string                   `json:"planName"`
	Status    Status                   `json:"status"`
	StartDate time.Time                `json:"startDate"`
	Caps      map[plans.Category]int64 `json:"caps"` // snapshot taken when the plan was bound
	CreatedAt time.Time                `json:"createdAt"`
	UpdatedAt time.Time                `json:"updatedAt"`
}

// Active reports whether the subscription grants entitlements.
func (s *Subscription) Active() bool {
	return s != nil && s.Status == StatusActive
}

// Clone returns a deep copy.
func (s *Subscription) Clone() *Subscription {
	cp := *s
	cp.Caps = plans.CloneCaps(s.Caps)
	return &cp
}

// startDate truncates t to its UTC calendar date.
func startDate(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
