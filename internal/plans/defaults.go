package plans

// Module names a plan may enable.
const (
	ModuleScheduling = "scheduling"
	ModuleInvoicing  = "invoicing"
	ModuleFleet      = "fleet"
	ModuleDocuments  = "documents"
	ModuleReporting  = "reporting"
	ModuleAPI        = "api"
)

// DefaultPlans is the catalog seeded into an empty database.
func DefaultPlans() []NewPlan {
	return []NewPlan{
		{
			Name:  "Starter",
			Price: USD(2900),
			Caps: map[Category]int64{
				CategoryUsers:      2,
				CategoryVehicles:   1,
				CategoryClients:    50,
				CategoryProperties: 25,
				CategoryStorageMB:  500,
			},
			Modules: []string{ModuleScheduling, ModuleInvoicing},
		},
		{
			Name:  "Professional",
			Price: USD(9900),
			Caps: map[Category]int64{
				CategoryUsers:      10,
				CategoryVehicles:   10,
				CategoryClients:    500,
				CategoryProperties: 250,
				CategoryStorageMB:  5000,
			},
			Modules: []string{ModuleScheduling, ModuleInvoicing, ModuleFleet, ModuleDocuments},
		},
		{
			Name:  "Enterprise",
			Price: USD(29900),
			Caps: map[Category]int64{
				CategoryUsers:      100,
				CategoryVehicles:   100,
				CategoryClients:    10000,
				CategoryProperties: 5000,
				CategoryStorageMB:  50000,
			},
			Modules: []string{ModuleScheduling, ModuleInvoicing, ModuleFleet, ModuleDocuments, ModuleReporting, ModuleAPI},
		},
	}
}
