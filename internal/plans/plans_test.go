package plans

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseCategory(t *testing.T) {
	tests := []struct {
		in   string
		want Category
		ok   bool
	}{
		{"max_vehicles", CategoryVehicles, true},
		{"vehicles", CategoryVehicles, true},
		{" Staff ", CategoryUsers, true},
		{"users", CategoryUsers, true},
		{"documents", CategoryStorageMB, true},
		{"max_storage_mb", CategoryStorageMB, true},
		{"max_boats", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseCategory(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestCategory_Noun(t *testing.T) {
	assert.Equal(t, "vehicles", CategoryVehicles.Noun())
	assert.Equal(t, "MB of storage", CategoryStorageMB.Noun())
	assert.Equal(t, "max_boats", Category("max_boats").Noun())
}

func TestPlan_CapUnknownCategory(t *testing.T) {
	p := &Plan{Caps: map[Category]int64{"max_boats": 4}}
	_, ok := p.Cap("max_boats")
	assert.False(t, ok)
}

func TestPlan_CloneIsDeep(t *testing.T) {
	p := &Plan{Name: "A", Caps: map[Category]int64{CategoryUsers: 1}, Modules: []string{"fleet"}}
	cp := p.Clone()
	cp.Caps[CategoryUsers] = 9
	cp.Modules[0] = "api"

	assert.Equal(t, int64(1), p.Caps[CategoryUsers])
	assert.Equal(t, "fleet", p.Modules[0])
	assert.True(t, p.HasModule("fleet"))
	assert.False(t, p.HasModule("api"))
}

func TestMoney(t *testing.T) {
	assert.NoError(t, USD(2900).Validate())
	assert.ErrorIs(t, Money{Amount: -1, Currency: "USD"}.Validate(), ErrInvalidPlan)

	s := USD(2900).String()
	assert.Contains(t, s, "$")
	assert.Contains(t, s, "29")
}
