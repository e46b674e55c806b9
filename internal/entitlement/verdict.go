package entitlement

import (
	"errors"
	"fmt"

	"github.com/mbd888/fieldwork/internal/plans"
	"github.com/mbd888/fieldwork/internal/subscription"
)

var (
	ErrDenied               = errors.New("entitlement: denied")
	ErrNoActiveSubscription = errors.New("entitlement: no active subscription")
	ErrDowngradeNotPossible = fmt.Errorf("entitlement: current usage exceeds target plan: %w", subscription.ErrPlanChangeRefused)
)

// Reason classifies a verdict.
type Reason string

const (
	ReasonOK                   Reason = "ok"
	ReasonNoActiveSubscription Reason = "no_active_subscription"
	ReasonUnknownCategory      Reason = "unknown_category"
	ReasonLimitReached         Reason = "limit_reached"
	ReasonPlanUnavailable      Reason = "plan_unavailable"
	ReasonDataAccessFailure    Reason = "data_access_failure"
)

// User-facing verdict messages.
const (
	MsgOK                   = "ok"
	MsgNoActiveSubscription = "no active subscription"
	MsgUnknownCategory      = "unknown resource category"
	MsgPlanUnavailable      = "your subscription plan is unavailable, contact support"
	MsgTemporarilyDown      = "entitlement check is temporarily unavailable, please try again"
)

// Verdict is the outcome of an entitlement check. Message is safe to show
// to end users.
type Verdict struct {
	Allowed  bool           `json:"allowed"`
	Message  string         `json:"message"`
	Reason   Reason         `json:"reason"`
	Plan     string         `json:"plan,omitempty"`
	Category plans.Category `json:"category"`
	Cap      int64          `json:"cap"`
	Current  int64          `json:"current"`
}

// Err returns nil for an allowing verdict and a *DeniedError otherwise.
func (v Verdict) Err() error {
	if v.Allowed {
		return nil
	}
	return &DeniedError{Verdict: v}
}

func deny(reason Reason, msg string, category plans.Category) Verdict {
	return Verdict{Allowed: false, Message: msg, Reason: reason, Category: category}
}

func limitMessage(plan string, category plans.Category, limit, current int64) string {
	return fmt.Sprintf("limit reached: plan %s allows %d %s, you have %d", plan, limit, category.Noun(), current)
}

// DeniedError carries a denying verdict through error returns.
type DeniedError struct {
	Verdict Verdict
}

func (e *DeniedError) Error() string {
	return e.Verdict.Message
}

// Is matches ErrDenied.
func (e *DeniedError) Is(target error) bool {
	return target == ErrDenied
}

// AsDenied extracts the verdict from err, if err is a denial.
func AsDenied(err error) (Verdict, bool) {
	var de *DeniedError
	if errors.As(err, &de) {
		return de.Verdict, true
	}
	return Verdict{}, false
}

// UsageInfo is a tenant's standing in one category.
type UsageInfo struct {
	Current   int64 `json:"current"`
	Cap       int64 `json:"cap"`
	Remaining int64 `json:"remaining"`
	Enabled   bool  `json:"enabled"`
}

func newUsageInfo(current, limit int64) UsageInfo {
	rem := limit - current
	if rem < 0 {
		rem = 0
	}
	return UsageInfo{Current: current, Cap: limit, Remaining: rem, Enabled: limit > 0}
}
