package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/netpesa/hotspot-billing/platform/go/persistence"
)

// Notes/constraints:
// - DDL is idempotent (CREATE ... IF NOT EXISTS); running it twice is safe.
// - The reconciler can also apply it on startup with BOOTSTRAP_SCHEMA=true.

// Command groups bootstrap helpers.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Bootstrap platform resources (database schema)",
	}

	cmd.AddCommand(schemaCommand())
	return cmd
}

func schemaCommand() *cobra.Command {
	var (
		databaseURL string
		schema      string
	)

	c := &cobra.Command{
		Use:   "schema",
		Short: "Apply the embedded DDL (tenants, routers, access grants, devices)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			pool, err := persistence.NewPool(ctx, persistence.PoolConfig{ConnString: databaseURL})
			if err != nil {
				return fmt.Errorf("init pool: %w", err)
			}
			defer persistence.ClosePool(pool)

			if err := persistence.BootstrapSchema(ctx, pool, schema); err != nil {
				return err
			}
			if err := ensureSchemaReady(ctx, pool, schema); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Schema %q is ready.\n", schema)
			return nil
		},
	}

	c.Flags().StringVar(&databaseURL, "database-url", "", "PostgreSQL connection string")
	c.Flags().StringVar(&schema, "schema", persistence.DefaultSchema, "Schema holding the hotspot tables")

	_ = c.MarkFlagRequired("database-url")

	return c
}

// ensureSchemaReady verifies every table the reconciler reads exists in schema.
func ensureSchemaReady(ctx context.Context, pool *pgxpool.Pool, schema string) error {
	schema = strings.TrimSpace(schema)
	for _, table := range []string{"tenants", "routers", "access_grants", "devices"} {
		var exists bool
		if err := pool.QueryRow(ctx, `
            SELECT EXISTS (
                SELECT 1
                FROM pg_class c
                JOIN pg_namespace n ON n.oid = c.relnamespace
                WHERE n.nspname = $1 AND c.relname = $2 AND c.relkind = 'r'
            )`, schema, table).Scan(&exists); err != nil {
			return fmt.Errorf("check %s table: %w", table, err)
		}
		if !exists {
			return fmt.Errorf("%s table not found in schema %q", table, schema)
		}
	}
	return nil
}
