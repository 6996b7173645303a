package tenantcmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/netpesa/hotspot-billing/domains/tenants/be/repo"
	"github.com/netpesa/hotspot-billing/domains/tenants/be/service"
	"github.com/netpesa/hotspot-billing/platform/go/persistence"
)

// Command groups tenant-related helpers.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Tenant utilities (create, register routers)",
	}

	cmd.AddCommand(createCommand())
	cmd.AddCommand(addRouterCommand())
	return cmd
}

func openService(ctx context.Context, databaseURL, schema string) (*service.Service, func(), error) {
	pool, err := persistence.NewPool(ctx, persistence.PoolConfig{ConnString: databaseURL})
	if err != nil {
		return nil, nil, fmt.Errorf("init pool: %w", err)
	}

	db := persistence.NewDB(persistence.DBConfig{Pool: pool, Schema: schema})
	store, err := persistence.NewTenantStore(db)
	if err != nil {
		persistence.ClosePool(pool)
		return nil, nil, fmt.Errorf("init tenant store: %w", err)
	}
	return service.New(repo.NewPostgresRepository(store)), func() { persistence.ClosePool(pool) }, nil
}

func createCommand() *cobra.Command {
	var (
		databaseURL string
		schema      string
		tenantSlug  string
		tenantName  string
		planName    string
		features    []string
	)

	c := &cobra.Command{
		Use:   "create",
		Short: "Register a tenant with its plan",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			svc, closeFn, err := openService(ctx, databaseURL, schema)
			if err != nil {
				return err
			}
			defer closeFn()

			plan := service.Plan{Name: planName}
			for _, f := range features {
				if f = strings.TrimSpace(f); f != "" {
					plan.Features = append(plan.Features, service.Feature(f))
				}
			}

			t, err := svc.Create(ctx, service.CreateInput{
				Slug:        tenantSlug,
				DisplayName: strPtrOrNil(tenantName),
				Plan:        plan,
			})
			if err != nil {
				return fmt.Errorf("create tenant: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Tenant created. Tenant: %s (%s) | Plan: %s\n", t.Slug, t.ID, t.Plan.Name)
			return nil
		},
	}

	c.Flags().StringVar(&databaseURL, "database-url", "", "PostgreSQL connection string")
	c.Flags().StringVar(&schema, "schema", persistence.DefaultSchema, "Schema holding the hotspot tables")
	c.Flags().StringVar(&tenantSlug, "slug", "", "Tenant slug (lowercase, dash separated)")
	c.Flags().StringVar(&tenantName, "name", "", "Display name for tenant")
	c.Flags().StringVar(&planName, "plan", "basic", "Plan name")
	c.Flags().StringSliceVar(&features, "features", []string{string(service.FeatureExpirySMS)}, "Plan features (e.g. expiry_sms,vouchers)")

	_ = c.MarkFlagRequired("database-url")
	_ = c.MarkFlagRequired("slug")

	return c
}

func addRouterCommand() *cobra.Command {
	var (
		databaseURL string
		schema      string
		tenantID    string
		name        string
		address     string
	)

	c := &cobra.Command{
		Use:   "add-router",
		Short: "Register a hotspot router under a tenant",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			id, err := uuid.Parse(tenantID)
			if err != nil {
				return fmt.Errorf("invalid tenant id: %w", err)
			}

			svc, closeFn, err := openService(ctx, databaseURL, schema)
			if err != nil {
				return err
			}
			defer closeFn()

			router, err := svc.AddRouter(ctx, id, service.AddRouterInput{Name: name, Address: address})
			if err != nil {
				return fmt.Errorf("add router: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Router registered. Router: %s (%s) @ %s\n", router.Name, router.ID, router.Address)
			return nil
		},
	}

	c.Flags().StringVar(&databaseURL, "database-url", "", "PostgreSQL connection string")
	c.Flags().StringVar(&schema, "schema", persistence.DefaultSchema, "Schema holding the hotspot tables")
	c.Flags().StringVar(&tenantID, "tenant-id", "", "Tenant UUID")
	c.Flags().StringVar(&name, "name", "", "Router name")
	c.Flags().StringVar(&address, "address", "", "Router management address")

	_ = c.MarkFlagRequired("database-url")
	_ = c.MarkFlagRequired("tenant-id")
	_ = c.MarkFlagRequired("name")
	_ = c.MarkFlagRequired("address")

	return c
}

func strPtrOrNil(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
