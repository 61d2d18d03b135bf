// File: internal/storage/migrations.go
package storage

// Migration is one versioned schema change.
type Migration struct {
	Version     string
	Description string
	SQL         string
}

// GetSQLiteMigrations returns SQLite migration scripts
func GetSQLiteMigrations() []*Migration {
	return []*Migration{
		{
			Version:     "001",
			Description: "Create alerts table",
			SQL: `
				CREATE TABLE IF NOT EXISTS alerts (
					id TEXT PRIMARY KEY,
					type TEXT NOT NULL,
					severity TEXT NOT NULL,
					status TEXT NOT NULL,
					title TEXT NOT NULL,
					description TEXT NOT NULL,
					source TEXT NOT NULL,
					source_id TEXT,
					camera_id TEXT,
					site_id TEXT,
					zone TEXT,
					organization_id TEXT NOT NULL,
					confidence REAL DEFAULT 0,
					metadata TEXT, -- JSON
					evidence TEXT, -- JSON
					actions_taken TEXT, -- JSON
					autonomous_actions TEXT, -- JSON
					assigned_to TEXT,
					acknowledged_by TEXT,
					acknowledged_at DATETIME,
					resolved_by TEXT,
					resolved_at DATETIME,
					escalation_level INTEGER DEFAULT 0,
					escalated_at DATETIME,
					escalation_path TEXT, -- JSON
					notifications_sent TEXT, -- JSON
					created_at DATETIME NOT NULL,
					updated_at DATETIME,
					expires_at DATETIME
				);

				CREATE INDEX IF NOT EXISTS idx_alerts_organization ON alerts(organization_id);
				CREATE INDEX IF NOT EXISTS idx_alerts_status ON alerts(status);
				CREATE INDEX IF NOT EXISTS idx_alerts_type ON alerts(type);
				CREATE INDEX IF NOT EXISTS idx_alerts_severity ON alerts(severity);
				CREATE INDEX IF NOT EXISTS idx_alerts_created_at ON alerts(created_at);
				CREATE INDEX IF NOT EXISTS idx_alerts_site ON alerts(site_id);
			`,
		},
		{
			Version:     "002",
			Description: "Create alert_rules table",
			SQL: `
				CREATE TABLE IF NOT EXISTS alert_rules (
					id TEXT PRIMARY KEY,
					name TEXT NOT NULL,
					description TEXT,
					trigger_type TEXT NOT NULL,
					severity TEXT NOT NULL,
					conditions TEXT, -- JSON
					actions TEXT, -- JSON
					notify_channels TEXT, -- JSON
					notify_roles TEXT, -- JSON
					notify_users TEXT, -- JSON
					enable_escalation BOOLEAN DEFAULT FALSE,
					escalation_delay_minutes INTEGER DEFAULT 15,
					organization_id TEXT NOT NULL,
					sites TEXT, -- JSON
					cameras TEXT, -- JSON
					is_active BOOLEAN DEFAULT TRUE,
					priority INTEGER DEFAULT 1,
					created_at DATETIME NOT NULL,
					created_by TEXT,
					updated_at DATETIME
				);

				CREATE INDEX IF NOT EXISTS idx_alert_rules_organization ON alert_rules(organization_id);
				CREATE INDEX IF NOT EXISTS idx_alert_rules_trigger ON alert_rules(trigger_type);
				CREATE INDEX IF NOT EXISTS idx_alert_rules_active ON alert_rules(is_active);
			`,
		},
		{
			Version:     "003",
			Description: "Create escalation_rules table",
			SQL: `
				CREATE TABLE IF NOT EXISTS escalation_rules (
					id TEXT PRIMARY KEY,
					name TEXT NOT NULL,
					alert_types TEXT, -- JSON
					min_severity TEXT NOT NULL,
					escalation_levels TEXT NOT NULL, -- JSON
					organization_id TEXT NOT NULL,
					is_active BOOLEAN DEFAULT TRUE,
					created_at DATETIME NOT NULL
				);

				CREATE INDEX IF NOT EXISTS idx_escalation_rules_organization ON escalation_rules(organization_id);
				CREATE INDEX IF NOT EXISTS idx_escalation_rules_active ON escalation_rules(is_active);
			`,
		},
		{
			Version:     "004",
			Description: "Create alert_actions table",
			SQL: `
				CREATE TABLE IF NOT EXISTS alert_actions (
					id TEXT PRIMARY KEY,
					alert_id TEXT NOT NULL,
					action_type TEXT NOT NULL,
					status TEXT NOT NULL,
					executed_at DATETIME,
					completed_at DATETIME,
					success BOOLEAN DEFAULT FALSE,
					result TEXT, -- JSON
					error TEXT,
					target TEXT,
					created_at DATETIME NOT NULL
				);

				CREATE INDEX IF NOT EXISTS idx_alert_actions_alert ON alert_actions(alert_id);
				CREATE INDEX IF NOT EXISTS idx_alert_actions_type ON alert_actions(action_type);
			`,
		},
		{
			Version:     "005",
			Description: "Create notifications table",
			SQL: `
				CREATE TABLE IF NOT EXISTS notifications (
					id TEXT PRIMARY KEY,
					alert_id TEXT NOT NULL,
					channel TEXT NOT NULL,
					recipient_id TEXT,
					recipient_contact TEXT NOT NULL,
					subject TEXT,
					message TEXT NOT NULL,
					status TEXT NOT NULL,
					sent_at DATETIME,
					delivered_at DATETIME,
					read_at DATETIME,
					provider TEXT,
					provider_id TEXT,
					error TEXT,
					created_at DATETIME NOT NULL
				);

				CREATE INDEX IF NOT EXISTS idx_notifications_alert ON notifications(alert_id);
				CREATE INDEX IF NOT EXISTS idx_notifications_channel ON notifications(channel);
				CREATE INDEX IF NOT EXISTS idx_notifications_status ON notifications(status);
			`,
		},
	}
}

// GetPostgreSQLMigrations returns PostgreSQL migration scripts
func GetPostgreSQLMigrations() []*Migration {
	return []*Migration{
		{
			Version:     "001",
			Description: "Create alerts table",
			SQL: `
				CREATE TABLE IF NOT EXISTS alerts (
					id TEXT PRIMARY KEY,
					type TEXT NOT NULL,
					severity TEXT NOT NULL,
					status TEXT NOT NULL,
					title TEXT NOT NULL,
					description TEXT NOT NULL,
					source TEXT NOT NULL,
					source_id TEXT,
					camera_id TEXT,
					site_id TEXT,
					zone TEXT,
					organization_id TEXT NOT NULL,
					confidence DOUBLE PRECISION DEFAULT 0,
					metadata JSONB,
					evidence JSONB,
					actions_taken JSONB,
					autonomous_actions JSONB,
					assigned_to TEXT,
					acknowledged_by TEXT,
					acknowledged_at TIMESTAMPTZ,
					resolved_by TEXT,
					resolved_at TIMESTAMPTZ,
					escalation_level INTEGER DEFAULT 0,
					escalated_at TIMESTAMPTZ,
					escalation_path JSONB,
					notifications_sent JSONB,
					created_at TIMESTAMPTZ NOT NULL,
					updated_at TIMESTAMPTZ,
					expires_at TIMESTAMPTZ
				);

				CREATE INDEX IF NOT EXISTS idx_alerts_organization ON alerts(organization_id);
				CREATE INDEX IF NOT EXISTS idx_alerts_status ON alerts(status);
				CREATE INDEX IF NOT EXISTS idx_alerts_type ON alerts(type);
				CREATE INDEX IF NOT EXISTS idx_alerts_severity ON alerts(severity);
				CREATE INDEX IF NOT EXISTS idx_alerts_created_at ON alerts(created_at);
				CREATE INDEX IF NOT EXISTS idx_alerts_site ON alerts(site_id);
			`,
		},
		{
			Version:     "002",
			Description: "Create alert_rules table",
			SQL: `
				CREATE TABLE IF NOT EXISTS alert_rules (
					id TEXT PRIMARY KEY,
					name TEXT NOT NULL,
					description TEXT,
					trigger_type TEXT NOT NULL,
					severity TEXT NOT NULL,
					conditions JSONB,
					actions JSONB,
					notify_channels JSONB,
					notify_roles JSONB,
					notify_users JSONB,
					enable_escalation BOOLEAN DEFAULT FALSE,
					escalation_delay_minutes INTEGER DEFAULT 15,
					organization_id TEXT NOT NULL,
					sites JSONB,
					cameras JSONB,
					is_active BOOLEAN DEFAULT TRUE,
					priority INTEGER DEFAULT 1,
					created_at TIMESTAMPTZ NOT NULL,
					created_by TEXT,
					updated_at TIMESTAMPTZ
				);

				CREATE INDEX IF NOT EXISTS idx_alert_rules_organization ON alert_rules(organization_id);
				CREATE INDEX IF NOT EXISTS idx_alert_rules_trigger ON alert_rules(trigger_type);
				CREATE INDEX IF NOT EXISTS idx_alert_rules_active ON alert_rules(is_active);
			`,
		},
		{
			Version:     "003",
			Description: "Create escalation_rules table",
			SQL: `
				CREATE TABLE IF NOT EXISTS escalation_rules (
					id TEXT PRIMARY KEY,
					name TEXT NOT NULL,
					alert_types JSONB,
					min_severity TEXT NOT NULL,
					escalation_levels JSONB NOT NULL,
					organization_id TEXT NOT NULL,
					is_active BOOLEAN DEFAULT TRUE,
					created_at TIMESTAMPTZ NOT NULL
				);

				CREATE INDEX IF NOT EXISTS idx_escalation_rules_organization ON escalation_rules(organization_id);
				CREATE INDEX IF NOT EXISTS idx_escalation_rules_active ON escalation_rules(is_active);
			`,
		},
		{
			Version:     "004",
			Description: "Create alert_actions table",
			SQL: `
				CREATE TABLE IF NOT EXISTS alert_actions (
					id TEXT PRIMARY KEY,
					alert_id TEXT NOT NULL,
					action_type TEXT NOT NULL,
					status TEXT NOT NULL,
					executed_at TIMESTAMPTZ,
					completed_at TIMESTAMPTZ,
					success BOOLEAN DEFAULT FALSE,
					result JSONB,
					error TEXT,
					target TEXT,
					created_at TIMESTAMPTZ NOT NULL
				);

				CREATE INDEX IF NOT EXISTS idx_alert_actions_alert ON alert_actions(alert_id);
				CREATE INDEX IF NOT EXISTS idx_alert_actions_type ON alert_actions(action_type);
			`,
		},
		{
			Version:     "005",
			Description: "Create notifications table",
			SQL: `
				CREATE TABLE IF NOT EXISTS notifications (
					id TEXT PRIMARY KEY,
					alert_id TEXT NOT NULL,
					channel TEXT NOT NULL,
					recipient_id TEXT,
					recipient_contact TEXT NOT NULL,
					subject TEXT,
					message TEXT NOT NULL,
					status TEXT NOT NULL,
					sent_at TIMESTAMPTZ,
					delivered_at TIMESTAMPTZ,
					read_at TIMESTAMPTZ,
					provider TEXT,
					provider_id TEXT,
					error TEXT,
					created_at TIMESTAMPTZ NOT NULL
				);

				CREATE INDEX IF NOT EXISTS idx_notifications_alert ON notifications(alert_id);
				CREATE INDEX IF NOT EXISTS idx_notifications_channel ON notifications(channel);
				CREATE INDEX IF NOT EXISTS idx_notifications_status ON notifications(status);
			`,
		},
	}
}
