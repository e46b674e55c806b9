// Package plans is the plan catalog: named service tiers with per-category
// resource caps and a set of enabled modules.
package plans

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

// Errors
var (
	ErrPlanNotFound      = errors.New("plans: plan not found")
	ErrDuplicatePlanName = errors.New("plans: plan name already exists")
	ErrPlanInUse         = errors.New("plans: plan is referenced by subscriptions")
	ErrInvalidPlan       = errors.New("plans: invalid plan")
)

// Category identifies a countable tenant resource subject to a cap.
type Category string

const (
	CategoryUsers      Category = "max_users"
	CategoryVehicles   Category = "max_vehicles"
	CategoryClients    Category = "max_clients"
	CategoryProperties Category = "max_properties"
	CategoryStorageMB  Category = "max_storage_mb"
)

// Categories lists every known category in display order.
var Categories = []Category{
	CategoryUsers,
	CategoryVehicles,
	CategoryClients,
	CategoryProperties,
	CategoryStorageMB,
}

var nouns = map[Category]string{
	CategoryUsers:      "users",
	CategoryVehicles:   "vehicles",
	CategoryClients:    "clients",
	CategoryProperties: "properties",
	CategoryStorageMB:  "MB of storage",
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	_, ok := nouns[c]
	return ok
}

// Noun is the plural used in user-facing messages ("vehicles").
func (c Category) Noun() string {
	if n, ok := nouns[c]; ok {
		return n
	}
	return string(c)
}

// ParseCategory accepts a cap key ("max_vehicles") or its noun ("vehicles").
func ParseCategory(s string) (Category, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if c := Category(s); c.Valid() {
		return c, true
	}
	switch s {
	case "users", "staff":
		return CategoryUsers, true
	case "vehicles":
		return CategoryVehicles, true
	case "clients":
		return CategoryClients, true
	case "properties":
		return CategoryProperties, true
	case "storage", "storage_mb", "documents":
		return CategoryStorageMB, true
	}
	return "", false
}

// Plan is a named tier of service.
type Plan struct {
	ID           string             `json:"id"`
	Name         string             `json:"name"`
	Price        Money              `json:"price"`
	Caps         map[Category]int64 `json:"caps"` // 0 disables the category
	Modules      []string           `json:"modules"`
	DeprecatedAt *time.Time         `json:"deprecatedAt,omitempty"`
	CreatedAt    time.Time          `json:"createdAt"`
	UpdatedAt    time.Time          `json:"updatedAt"`
}

// Cap returns the cap for c. ok is false for categories the plan does not
// define.
func (p *Plan) Cap(c Category) (limit int64, ok bool) {
	if !c.Valid() {
		return 0, false
	}
	limit, ok = p.Caps[c]
	return limit, ok
}

// HasModule reports whether module is enabled on the plan.
func (p *Plan) HasModule(module string) bool {
	return slices.Contains(p.Modules, module)
}

// Deprecated reports whether the plan was soft-deleted.
func (p *Plan) Deprecated() bool {
	return p.DeprecatedAt != nil
}

// Clone returns a deep copy.
func (p *Plan) Clone() *Plan {
	cp := *p
	cp.Caps = CloneCaps(p.Caps)
	cp.Modules = slices.Clone(p.Modules)
	if p.DeprecatedAt != nil {
		t := *p.DeprecatedAt
		cp.DeprecatedAt = &t
	}
	return &cp
}

// CloneCaps copies a cap map, filling every known category (missing ones
// become 0, i.e. disabled).
func CloneCaps(caps map[Category]int64) map[Category]int64 {
	out := make(map[Category]int64, len(Categories))
	for _, c := range Categories {
		out[c] = caps[c]
	}
	return out
}

// ValidateCaps rejects unknown categories and negative caps.
func ValidateCaps(caps map[Category]int64) error {
	for c, v := range caps {
		if !c.Valid() {
			return fmt.Errorf("%w: unknown category %q", ErrInvalidPlan, c)
		}
		if v < 0 {
			return fmt.Errorf("%w: cap for %s must not be negative", ErrInvalidPlan, c)
		}
	}
	return nil
}

// NormalizeModules trims, drops empties and de-duplicates module names.
func NormalizeModules(modules []string) []string {
	out := make([]string, 0, len(modules))
	for _, m := range modules {
		m = strings.ToLower(strings.TrimSpace(m))
		if m == "" || slices.Contains(out, m) {
			continue
		}
		out = append(out, m)
	}
	slices.Sort(out)
	return out
}
