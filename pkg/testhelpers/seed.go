package testhelpers

import (
	"context"
	"fmt"

	"github.com/ekaya-inc/ekaya-ask/pkg/database"
)

// Sample catalog: Customer, Sales Order with a Sales Order Item child table.
var seedStatements = []string{
	`INSERT INTO entity_types (name, is_child) VALUES
		('Customer', FALSE), ('Sales Order', FALSE), ('Sales Order Item', TRUE)
	 ON CONFLICT DO NOTHING`,
	`INSERT INTO entity_fields (entity_type, field_name, label, field_type, required, allowed_values, reference, position) VALUES
		('Customer', 'customer_name', 'Customer Name', 'text', TRUE, NULL, NULL, 1),
		('Customer', 'territory', 'Territory', 'text', FALSE, NULL, NULL, 2),
		('Sales Order', 'customer', 'Customer', 'reference', TRUE, NULL, 'Customer', 1),
		('Sales Order', 'status', 'Status', 'enumerated', FALSE, E'Draft\nTo Deliver\nCompleted', NULL, 2),
		('Sales Order', 'grand_total', 'Grand Total', 'number', FALSE, NULL, NULL, 3),
		('Sales Order Item', 'item_code', 'Item Code', 'text', TRUE, NULL, NULL, 1),
		('Sales Order Item', 'qty', 'Quantity', 'number', FALSE, NULL, NULL, 2)
	 ON CONFLICT DO NOTHING`,
	`INSERT INTO entity_children (parent, field_name, child_type) VALUES
		('Sales Order', 'items', 'Sales Order Item')
	 ON CONFLICT DO NOTHING`,
	`CREATE TABLE IF NOT EXISTS "tabCustomer" (
		name TEXT PRIMARY KEY,
		customer_name TEXT NOT NULL,
		territory TEXT,
		docstatus INTEGER NOT NULL DEFAULT 0,
		creation TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		modified TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		modified_by TEXT,
		owner TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS "tabSales Order" (
		name TEXT PRIMARY KEY,
		customer TEXT NOT NULL,
		status TEXT,
		grand_total NUMERIC(18, 2),
		docstatus INTEGER NOT NULL DEFAULT 0,
		creation TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		modified TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		modified_by TEXT,
		owner TEXT
	)`,
	`INSERT INTO "tabCustomer" (name, customer_name, territory, docstatus, modified) VALUES
		('CUST-0001', 'Acme Corp', 'North', 1, NOW() - INTERVAL '3 days'),
		('CUST-0002', 'Globex', 'South', 1, NOW() - INTERVAL '2 days'),
		('CUST-0003', 'Initech', 'North', 0, NOW() - INTERVAL '1 day')
	 ON CONFLICT DO NOTHING`,
	`INSERT INTO "tabSales Order" (name, customer, status, grand_total, docstatus) VALUES
		('SO-0001', 'CUST-0001', 'Completed', 1200.00, 1),
		('SO-0002', 'CUST-0001', 'To Deliver', 300.50, 1),
		('SO-0003', 'CUST-0002', 'Draft', 75.00, 0)
	 ON CONFLICT DO NOTHING`,
}

func seedCatalog(ctx context.Context, db *database.DB) error {
	for i, stmt := range seedStatements {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("seed statement %d: %w", i, err)
		}
	}
	return nil
}
