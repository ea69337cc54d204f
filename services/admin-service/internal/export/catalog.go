package export

// TableInfo describes one exportable table for the back office.
type TableInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

// Catalog is a hand-maintained mirror of the store, in declaration
// order. It can drift from the live schema; keep it in sync when
// migrations land.
var Catalog = []TableInfo{
	{Name: "users", Description: "User accounts and credentials", Category: "identity"},
	{Name: "user_roles", Description: "Role assignments per user", Category: "identity"},
	{Name: "companies", Description: "Tenant companies and plan state", Category: "identity"},
	{Name: "refresh_sessions", Description: "Active refresh token sessions", Category: "identity"},
	{Name: "audit_events", Description: "Audit trail of sensitive actions", Category: "identity"},
	{Name: "plan_settings", Description: "Plan tier pricing configuration", Category: "billing"},
	{Name: "checkout_sessions", Description: "Stripe checkout session tracking", Category: "billing"},
	{Name: "provider_events", Description: "Deduplicated payment provider events", Category: "billing"},
	{Name: "units", Description: "Company locations", Category: "catalog"},
	{Name: "barbers", Description: "Staff members per unit", Category: "catalog"},
	{Name: "catalog_services", Description: "Offered services with duration and price", Category: "catalog"},
	{Name: "appointments", Description: "Scheduled and completed appointments", Category: "catalog"},
	{Name: "appointment_deletions", Description: "Tombstones for removed appointments", Category: "catalog"},
	{Name: "notifications", Description: "Owner-facing messages sent", Category: "operations"},
	{Name: "subscription_metrics", Description: "Daily subscription transition counts", Category: "operations"},
}

// IsExportable reports whether a table name is in the catalog. Export
// queries interpolate the name, so this is also the injection gate.
func IsExportable(name string) bool {
	for _, t := range Catalog {
		if t.Name == name {
			return true
		}
	}
	return false
}

// TableNames returns the catalog names in declaration order.
func TableNames() []string {
	out := make([]string, len(Catalog))
	for i, t := range Catalog {
		out[i] = t.Name
	}
	return out
}
