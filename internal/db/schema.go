package db

import (
	"context"
	"fmt"
)

// ChangeChannel is the LISTEN channel the row triggers notify on.
const ChangeChannel = "rentaldesk_changes"

const schema = `
CREATE TABLE IF NOT EXISTS products (
    id               TEXT PRIMARY KEY,
    name             TEXT NOT NULL,
    category_id      TEXT NOT NULL DEFAULT '',
    requires_setting BOOLEAN NOT NULL DEFAULT FALSE,
    updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS product_items (
    id              TEXT PRIMARY KEY,
    product_id      TEXT NOT NULL REFERENCES products(id),
    status          TEXT NOT NULL DEFAULT 'available' CHECK (status IN (
        'available', 'reserved', 'ready_for_delivery', 'rented', 'returned',
        'cleaning', 'maintenance', 'demo_cancelled', 'out_of_order', 'unknown')),
    condition       TEXT NOT NULL DEFAULT 'unknown',
    location        TEXT NOT NULL DEFAULT '',
    customer_name   TEXT,
    loan_start_date TIMESTAMPTZ,
    current_setting TEXT,
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS orders (
    id            TEXT PRIMARY KEY,
    customer_name TEXT NOT NULL,
    assigned_to   TEXT NOT NULL,
    carried_by    TEXT NOT NULL,
    status        TEXT NOT NULL CHECK (status IN (
        'pending', 'partial_approved', 'approved', 'ready', 'delivered', 'cancelled')),
    required_date TIMESTAMPTZ NOT NULL,
    notes         TEXT NOT NULL DEFAULT '',
    created_by    TEXT NOT NULL DEFAULT '',
    created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS order_items (
    id                     TEXT PRIMARY KEY,
    order_id               TEXT NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
    product_id             TEXT NOT NULL REFERENCES products(id),
    approval_status        TEXT NOT NULL CHECK (approval_status IN (
        'not_required', 'pending', 'approved', 'rejected')),
    item_processing_status TEXT NOT NULL CHECK (item_processing_status IN (
        'waiting', 'assigned', 'ready', 'delivered', 'cancelled')),
    assigned_unit_id       TEXT REFERENCES product_items(id),
    requested_setting      TEXT,
    approved_by            TEXT,
    approval_notes         TEXT,
    cancelled_by           TEXT,
    cancelled_reason       TEXT,
    updated_at             TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_order_items_order_id ON order_items(order_id);

CREATE TABLE IF NOT EXISTS item_histories (
    id           UUID PRIMARY KEY,
    unit_id      TEXT NOT NULL REFERENCES product_items(id),
    action       TEXT NOT NULL,
    from_status  TEXT NOT NULL,
    to_status    TEXT NOT NULL,
    performed_by TEXT NOT NULL,
    created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    metadata     JSONB NOT NULL DEFAULT '{}'::jsonb
);

CREATE INDEX IF NOT EXISTS idx_item_histories_unit ON item_histories(unit_id, created_at DESC);

CREATE TABLE IF NOT EXISTS outbox_tasks (
    id           UUID PRIMARY KEY,
    status       TEXT NOT NULL,
    payload      JSONB NOT NULL,
    topic        TEXT NOT NULL,
    msg_key      TEXT NOT NULL DEFAULT '',
    attempts     INTEGER NOT NULL DEFAULT 0,
    last_error   TEXT,
    created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    completed_at TIMESTAMPTZ
);

CREATE OR REPLACE FUNCTION touch_updated_at() RETURNS trigger AS $$
BEGIN
    NEW.updated_at = NOW();
    RETURN NEW;
END;
$$ LANGUAGE plpgsql;

CREATE OR REPLACE FUNCTION notify_row_change() RETURNS trigger AS $$
DECLARE
    rec RECORD;
BEGIN
    IF TG_OP = 'DELETE' THEN
        rec := OLD;
    ELSE
        rec := NEW;
    END IF;
    PERFORM pg_notify('` + ChangeChannel + `', json_build_object(
        'table', TG_TABLE_NAME,
        'type', lower(TG_OP),
        'row', row_to_json(rec)
    )::text);
    RETURN rec;
END;
$$ LANGUAGE plpgsql;
`

// migrations are applied in order after schema creation. Each must be
// idempotent. Append new migrations at the end.
var migrations = []string{
	// A unit may be bound by at most one live line. Delivered lines keep
	// their unit for the record and stop counting once it is rented out.
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_order_items_active_unit
	     ON order_items(assigned_unit_id)
	     WHERE assigned_unit_id IS NOT NULL
	       AND item_processing_status NOT IN ('cancelled', 'delivered')`,
	`CREATE INDEX IF NOT EXISTS idx_product_items_updated_at ON product_items(updated_at)`,
	`CREATE INDEX IF NOT EXISTS idx_orders_updated_at ON orders(updated_at)`,
	`CREATE INDEX IF NOT EXISTS idx_outbox_tasks_status ON outbox_tasks(status, updated_at)`,
}

// triggerTables receive both the updated_at and the change notification triggers.
var triggerTables = []string{"products", "product_items", "orders", "order_items"}

// Migrate creates the schema, applies migrations and (re)installs triggers.
func Migrate(ctx context.Context, db DB) error {
	if _, err := db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate: create schema: %w", err)
	}

	for i, m := range migrations {
		if _, err := db.Exec(ctx, m); err != nil {
			return fmt.Errorf("migrate: migration %d: %w", i+1, err)
		}
	}

	for _, table := range triggerTables {
		if _, err := db.Exec(ctx, triggerDDL(table)); err != nil {
			return fmt.Errorf("migrate: triggers on %s: %w", table, err)
		}
	}
	if _, err := db.Exec(ctx, touchTrigger("outbox_tasks")); err != nil {
		return fmt.Errorf("migrate: triggers on outbox_tasks: %w", err)
	}

	return nil
}

func touchTrigger(table string) string {
	return fmt.Sprintf(`
DROP TRIGGER IF EXISTS %[1]s_touch ON %[1]s;
CREATE TRIGGER %[1]s_touch BEFORE UPDATE ON %[1]s
    FOR EACH ROW EXECUTE FUNCTION touch_updated_at();`, table)
}

func triggerDDL(table string) string {
	return touchTrigger(table) + fmt.Sprintf(`
DROP TRIGGER IF EXISTS %[1]s_notify ON %[1]s;
CREATE TRIGGER %[1]s_notify AFTER INSERT OR UPDATE OR DELETE ON %[1]s
    FOR EACH ROW EXECUTE FUNCTION notify_row_change();`, table)
}
