package export

import "strings"

// HelperSQL holds the reusable row-level security predicates. These
// must exist before any table policy that references them.
const HelperSQL = `-- Reusable RLS helper predicates
CREATE OR REPLACE FUNCTION is_super_admin(uid uuid) RETURNS boolean AS $$
  SELECT EXISTS (
    SELECT 1 FROM user_roles WHERE user_id = uid AND role = 'super_admin'
  );
$$ LANGUAGE sql STABLE;

CREATE OR REPLACE FUNCTION has_role(uid uuid, wanted text) RETURNS boolean AS $$
  SELECT EXISTS (
    SELECT 1 FROM user_roles WHERE user_id = uid AND role = wanted
  );
$$ LANGUAGE sql STABLE;

CREATE OR REPLACE FUNCTION user_owns_company(uid uuid, cid uuid) RETURNS boolean AS $$
  SELECT EXISTS (
    SELECT 1 FROM companies WHERE id = cid AND owner_user_id = uid
  );
$$ LANGUAGE sql STABLE;

CREATE OR REPLACE FUNCTION user_owns_unit(uid uuid, unit uuid) RETURNS boolean AS $$
  SELECT EXISTS (
    SELECT 1 FROM units u
    JOIN companies c ON c.id = u.company_id
    WHERE u.id = unit AND c.owner_user_id = uid
  );
$$ LANGUAGE sql STABLE;`

// tableSQL maps a catalog table to its declarative definition. The
// text is a documentation mirror, not a migration source; creation
// order is catalog order, which does not encode FK dependencies.
var tableSQL = map[string]string{
	"users": `CREATE TABLE users (
  id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
  company_id UUID REFERENCES companies(id),
  email TEXT NOT NULL UNIQUE,
  name TEXT NOT NULL,
  phone TEXT,
  password_hash TEXT NOT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
ALTER TABLE users ENABLE ROW LEVEL SECURITY;
CREATE POLICY users_self ON users
  USING (id = current_setting('app.user_id')::uuid OR is_super_admin(current_setting('app.user_id')::uuid));`,

	"user_roles": `CREATE TABLE user_roles (
  user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
  role TEXT NOT NULL CHECK (role IN ('owner', 'barber', 'super_admin')),
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  PRIMARY KEY (user_id, role)
);
ALTER TABLE user_roles ENABLE ROW LEVEL SECURITY;
CREATE POLICY user_roles_self ON user_roles
  USING (user_id = current_setting('app.user_id')::uuid OR is_super_admin(current_setting('app.user_id')::uuid));`,

	"companies": `CREATE TABLE companies (
  id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
  owner_user_id UUID NOT NULL REFERENCES users(id),
  name TEXT NOT NULL,
  plan_status TEXT NOT NULL DEFAULT 'trial'
    CHECK (plan_status IN ('trial', 'partner', 'active', 'cancelled', 'overdue')),
  trial_ends_at TIMESTAMPTZ,
  partner_ends_at TIMESTAMPTZ,
  is_blocked BOOLEAN NOT NULL DEFAULT false,
  stripe_customer_id TEXT,
  stripe_subscription_id TEXT,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
ALTER TABLE companies ENABLE ROW LEVEL SECURITY;
CREATE POLICY companies_owner ON companies
  USING (user_owns_company(current_setting('app.user_id')::uuid, id)
         OR is_super_admin(current_setting('app.user_id')::uuid));`,

	"refresh_sessions": `CREATE TABLE refresh_sessions (
  id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
  user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
  token_hash TEXT NOT NULL UNIQUE,
  expires_at TIMESTAMPTZ NOT NULL,
  revoked_at TIMESTAMPTZ,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
ALTER TABLE refresh_sessions ENABLE ROW LEVEL SECURITY;
CREATE POLICY refresh_sessions_self ON refresh_sessions
  USING (user_id = current_setting('app.user_id')::uuid OR is_super_admin(current_setting('app.user_id')::uuid));`,

	"audit_events": `CREATE TABLE audit_events (
  id BIGSERIAL PRIMARY KEY,
  event_type TEXT NOT NULL,
  actor_type TEXT,
  actor_id TEXT,
  company_id UUID,
  metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
ALTER TABLE audit_events ENABLE ROW LEVEL SECURITY;
CREATE POLICY audit_events_admin ON audit_events
  USING (is_super_admin(current_setting('app.user_id')::uuid));`,

	"plan_settings": `CREATE TABLE plan_settings (
  id INTEGER PRIMARY KEY DEFAULT 1 CHECK (id = 1),
  inicial_price NUMERIC(10,2) NOT NULL DEFAULT 99,
  inicial_annual_price NUMERIC(10,2) NOT NULL DEFAULT 79,
  profissional_price NUMERIC(10,2) NOT NULL DEFAULT 199,
  profissional_annual_price NUMERIC(10,2) NOT NULL DEFAULT 159,
  franquias_price NUMERIC(10,2) NOT NULL DEFAULT 499,
  franquias_annual_price NUMERIC(10,2) NOT NULL DEFAULT 399,
  annual_discount_percent NUMERIC(5,2) NOT NULL DEFAULT 20,
  default_trial_days INTEGER NOT NULL DEFAULT 14,
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
ALTER TABLE plan_settings ENABLE ROW LEVEL SECURITY;
CREATE POLICY plan_settings_read ON plan_settings FOR SELECT USING (true);
CREATE POLICY plan_settings_write ON plan_settings FOR UPDATE
  USING (is_super_admin(current_setting('app.user_id')::uuid));`,

	"checkout_sessions": `CREATE TABLE checkout_sessions (
  stripe_session_id TEXT PRIMARY KEY,
  company_id UUID NOT NULL REFERENCES companies(id),
  tier TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'created',
  url TEXT,
  return_token TEXT NOT NULL,
  stripe_customer_id TEXT,
  stripe_subscription_id TEXT,
  completed_at TIMESTAMPTZ,
  canceled_at TIMESTAMPTZ,
  return_seen_at TIMESTAMPTZ,
  expired_at TIMESTAMPTZ,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
ALTER TABLE checkout_sessions ENABLE ROW LEVEL SECURITY;
CREATE POLICY checkout_sessions_owner ON checkout_sessions
  USING (user_owns_company(current_setting('app.user_id')::uuid, company_id)
         OR is_super_admin(current_setting('app.user_id')::uuid));`,

	"provider_events": `CREATE TABLE provider_events (
  id BIGSERIAL PRIMARY KEY,
  provider TEXT NOT NULL,
  provider_event_id TEXT NOT NULL,
  event_type TEXT NOT NULL,
  payload JSONB NOT NULL,
  received_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  UNIQUE (provider, provider_event_id)
);
ALTER TABLE provider_events ENABLE ROW LEVEL SECURITY;
CREATE POLICY provider_events_admin ON provider_events
  USING (is_super_admin(current_setting('app.user_id')::uuid));`,

	"units": `CREATE TABLE units (
  id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
  company_id UUID NOT NULL REFERENCES companies(id) ON DELETE CASCADE,
  name TEXT NOT NULL,
  address TEXT,
  phone TEXT,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
ALTER TABLE units ENABLE ROW LEVEL SECURITY;
CREATE POLICY units_owner ON units
  USING (user_owns_company(current_setting('app.user_id')::uuid, company_id)
         OR is_super_admin(current_setting('app.user_id')::uuid));`,

	"barbers": `CREATE TABLE barbers (
  id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
  company_id UUID NOT NULL REFERENCES companies(id) ON DELETE CASCADE,
  unit_id UUID NOT NULL REFERENCES units(id),
  name TEXT NOT NULL,
  phone TEXT,
  photo_url TEXT,
  calendar_color TEXT NOT NULL DEFAULT '#4F46E5',
  commission_rate NUMERIC(5,2) NOT NULL DEFAULT 50
    CHECK (commission_rate >= 0 AND commission_rate <= 100),
  is_active BOOLEAN NOT NULL DEFAULT true,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
ALTER TABLE barbers ENABLE ROW LEVEL SECURITY;
CREATE POLICY barbers_owner ON barbers
  USING (user_owns_unit(current_setting('app.user_id')::uuid, unit_id)
         OR is_super_admin(current_setting('app.user_id')::uuid));`,

	"catalog_services": `CREATE TABLE catalog_services (
  id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
  company_id UUID NOT NULL REFERENCES companies(id) ON DELETE CASCADE,
  name TEXT NOT NULL,
  duration_minutes INTEGER NOT NULL CHECK (duration_minutes > 0),
  price NUMERIC(10,2) NOT NULL DEFAULT 0,
  description TEXT NOT NULL DEFAULT '',
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
ALTER TABLE catalog_services ENABLE ROW LEVEL SECURITY;
CREATE POLICY catalog_services_owner ON catalog_services
  USING (user_owns_company(current_setting('app.user_id')::uuid, company_id)
         OR is_super_admin(current_setting('app.user_id')::uuid));`,

	"appointments": `CREATE TABLE appointments (
  id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
  company_id UUID NOT NULL REFERENCES companies(id) ON DELETE CASCADE,
  unit_id UUID NOT NULL REFERENCES units(id),
  barber_id UUID NOT NULL REFERENCES barbers(id),
  service_id UUID NOT NULL REFERENCES catalog_services(id),
  client_name TEXT NOT NULL,
  start_time TIMESTAMPTZ NOT NULL,
  end_time TIMESTAMPTZ NOT NULL,
  price NUMERIC(10,2) NOT NULL DEFAULT 0,
  status TEXT NOT NULL DEFAULT 'scheduled'
    CHECK (status IN ('scheduled', 'completed', 'no_show', 'cancelled')),
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
ALTER TABLE appointments ENABLE ROW LEVEL SECURITY;
CREATE POLICY appointments_owner ON appointments
  USING (user_owns_unit(current_setting('app.user_id')::uuid, unit_id)
         OR is_super_admin(current_setting('app.user_id')::uuid));`,

	"appointment_deletions": `CREATE TABLE appointment_deletions (
  id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
  company_id UUID NOT NULL,
  appointment_id UUID NOT NULL,
  deleted_by UUID,
  reason TEXT,
  deleted_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
ALTER TABLE appointment_deletions ENABLE ROW LEVEL SECURITY;
CREATE POLICY appointment_deletions_owner ON appointment_deletions
  USING (user_owns_company(current_setting('app.user_id')::uuid, company_id)
         OR is_super_admin(current_setting('app.user_id')::uuid));`,

	"notifications": `CREATE TABLE notifications (
  id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
  company_id UUID NOT NULL,
  kind TEXT NOT NULL,
  channel TEXT NOT NULL,
  recipient TEXT NOT NULL,
  dedupe_key TEXT NOT NULL UNIQUE,
  status TEXT NOT NULL DEFAULT 'sent',
  error_reason TEXT,
  sent_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
ALTER TABLE notifications ENABLE ROW LEVEL SECURITY;
CREATE POLICY notifications_admin ON notifications
  USING (is_super_admin(current_setting('app.user_id')::uuid));`,

	"subscription_metrics": `CREATE TABLE subscription_metrics (
  company_id UUID NOT NULL,
  day DATE NOT NULL,
  activated_count INTEGER NOT NULL DEFAULT 0,
  canceled_count INTEGER NOT NULL DEFAULT 0,
  overdue_count INTEGER NOT NULL DEFAULT 0,
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  PRIMARY KEY (company_id, day)
);
ALTER TABLE subscription_metrics ENABLE ROW LEVEL SECURITY;
CREATE POLICY subscription_metrics_admin ON subscription_metrics
  USING (is_super_admin(current_setting('app.user_id')::uuid));`,
}

// TableSQL returns the definition for one catalog table.
func TableSQL(name string) (string, bool) {
	sql, ok := tableSQL[name]
	return sql, ok
}

// AllSQL concatenates the helper block followed by every table
// definition in catalog order.
func AllSQL() string {
	var b strings.Builder
	b.WriteString(HelperSQL)
	b.WriteString("\n\n")
	for _, t := range Catalog {
		if sql, ok := tableSQL[t.Name]; ok {
			b.WriteString(sql)
			b.WriteString("\n\n")
		}
	}
	return strings.TrimRight(b.String(), "\n") + "\n"
}
