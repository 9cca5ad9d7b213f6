package repository

// Schema definitions for the Kestrel database.
// Compatible with both SQLite and PostgreSQL.

const schemaRecords = `
CREATE TABLE IF NOT EXISTS records (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    invoice_no TEXT NOT NULL,
    invoice_date TIMESTAMP NOT NULL,
    stock_code TEXT NOT NULL,
    description_clean TEXT,
    quantity BIGINT NOT NULL,
    unit_price REAL NOT NULL,
    order_value REAL NOT NULL,
    customer_id TEXT,
    country TEXT,
    customer_type TEXT,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_records_tenant ON records(tenant_id);
CREATE INDEX IF NOT EXISTS idx_records_invoice ON records(tenant_id, invoice_no);
CREATE INDEX IF NOT EXISTS idx_records_customer ON records(tenant_id, customer_id);
CREATE INDEX IF NOT EXISTS idx_records_returns ON records(tenant_id, quantity);
CREATE INDEX IF NOT EXISTS idx_records_invoice_date ON records(tenant_id, invoice_date);
`

const schemaClassifications = `
CREATE TABLE IF NOT EXISTS classifications (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    record_id TEXT NOT NULL,
    partition_name TEXT NOT NULL,
    timestamp TIMESTAMP NOT NULL,
    sales_labels TEXT,
    return_labels TEXT,
    screen_results TEXT,
    metadata TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_classifications_tenant ON classifications(tenant_id);
CREATE INDEX IF NOT EXISTS idx_classifications_record ON classifications(tenant_id, record_id);
CREATE INDEX IF NOT EXISTS idx_classifications_partition ON classifications(tenant_id, partition_name);
`

const schemaScreenConfigs = `
CREATE TABLE IF NOT EXISTS screen_configs (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT,
    version TEXT NOT NULL,
    expression TEXT NOT NULL,
    reason TEXT,
    severity TEXT NOT NULL DEFAULT 'review',
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, tenant_id, version)
);

CREATE INDEX IF NOT EXISTS idx_screen_configs_tenant ON screen_configs(tenant_id);
CREATE INDEX IF NOT EXISTS idx_screen_configs_enabled ON screen_configs(tenant_id, enabled);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaRecords,
		schemaClassifications,
		schemaScreenConfigs,
	}
}
