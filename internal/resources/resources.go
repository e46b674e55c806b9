// Package resources holds the tenant-owned records that plans cap: staff,
// vehicles, clients, properties and documents. Creation goes through the
// entitlement gate.
package resources

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/mbd888/fieldwork/internal/plans"
)

var (
	ErrResourceNotFound = errors.New("resources: not found")
	ErrInvalidResource  = errors.New("resources: invalid resource")
	ErrInvalidKind      = errors.New("resources: unknown kind")
	ErrInvalidMode      = errors.New("resources: unknown enforcement mode")
)

// Kind is a type of tenant resource.
type Kind string

const (
	KindStaff    Kind = "staff"
	KindVehicle  Kind = "vehicle"
	KindClient   Kind = "client"
	KindProperty Kind = "property"
	KindDocument Kind = "document"
)

// Kinds lists every kind.
var Kinds = []Kind{KindStaff, KindVehicle, KindClient, KindProperty, KindDocument}

type kindInfo struct {
	category plans.Category
	plural   string
	table    string
	idPrefix string
}

var kinds = map[Kind]kindInfo{
	KindStaff:    {plans.CategoryUsers, "staff", "staff", "stf_"},
	KindVehicle:  {plans.CategoryVehicles, "vehicles", "vehicles", "veh_"},
	KindClient:   {plans.CategoryClients, "clients", "clients", "cli_"},
	KindProperty: {plans.CategoryProperties, "properties", "properties", "prp_"},
	KindDocument: {plans.CategoryStorageMB, "documents", "documents", "doc_"},
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	_, ok := kinds[k]
	return ok
}

// Category is the plan category k counts against.
func (k Kind) Category() plans.Category { return kinds[k].category }

// Plural is the collection name used in URLs ("vehicles").
func (k Kind) Plural() string { return kinds[k].plural }

// ParseKind accepts a kind or its plural.
func ParseKind(s string) (Kind, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for k, info := range kinds {
		if s == string(k) || s == info.plural {
			return k, true
		}
	}
	return "", false
}

// KindFor returns the kind counted by category.
func KindFor(category plans.Category) (Kind, bool) {
	for k, info := range kinds {
		if info.category == category {
			return k, true
		}
	}
	return "", false
}

// Status of a resource. Only Active staff count toward the user cap.
type Status string

const (
	StatusActive   Status = "Active"
	StatusInactive Status = "Inactive"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s == StatusActive || s == StatusInactive
}

// Resource is one tenant-owned record.
type Resource struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenantId"`
	Kind      Kind      `json:"kind"`
	Name      string    `json:"name"`
	Status    Status    `json:"status"`
	SizeMB    int64     `json:"sizeMb,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// counts reports whether r contributes to its category's usage.
func (r *Resource) counts() bool {
	if r.Kind == KindStaff {
		return r.Status == StatusActive
	}
	return true
}

// weight is r's contribution to its category's usage.
func (r *Resource) weight() int64 {
	if !r.counts() {
		return 0
	}
	if r.Kind == KindDocument {
		return r.SizeMB
	}
	return 1
}

// NewResource is the input to Service.Create.
type NewResource struct {
	Kind   Kind   `json:"kind"`
	Name   string `json:"name"`
	Status Status `json:"status,omitempty"`
	SizeMB int64  `json:"sizeMb,omitempty"`
}

// AdmitFunc decides, given current usage, whether one more resource may be
// stored. A non-nil error refuses the write.
type AdmitFunc func(ctx context.Context, current int64) error

// lockKey identifies the admission lock for a tenant and category.
func lockKey(tenantID string, category plans.Category) string {
	return tenantID + "|" + string(category)
}
