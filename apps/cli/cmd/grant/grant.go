package grant

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/netpesa/hotspot-billing/platform/go/persistence"
)

// Command groups access grant helpers, mostly for seeding test environments.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "grant",
		Short: "Access grant utilities (create, attach devices)",
	}

	cmd.AddCommand(createCommand())
	cmd.AddCommand(addDeviceCommand())
	return cmd
}

func openStore(ctx context.Context, databaseURL, schema string) (*persistence.GrantStore, func(), error) {
	pool, err := persistence.NewPool(ctx, persistence.PoolConfig{ConnString: databaseURL})
	if err != nil {
		return nil, nil, fmt.Errorf("init pool: %w", err)
	}

	store, err := persistence.NewGrantStore(persistence.NewDB(persistence.DBConfig{Pool: pool, Schema: schema}))
	if err != nil {
		persistence.ClosePool(pool)
		return nil, nil, fmt.Errorf("init grant store: %w", err)
	}
	return store, func() { persistence.ClosePool(pool) }, nil
}

func createCommand() *cobra.Command {
	var (
		databaseURL string
		schema      string
		tenantID    string
		phone       string
		expiresAt   string
		validFor    time.Duration
	)

	c := &cobra.Command{
		Use:   "create",
		Short: "Create an active access grant",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			rec := persistence.GrantRecord{GrantID: uuid.New(), Phone: phone, IsActive: true}
			if tenantID != "" {
				id, err := uuid.Parse(tenantID)
				if err != nil {
					return fmt.Errorf("invalid tenant id: %w", err)
				}
				rec.TenantID = &id
			}

			switch {
			case expiresAt != "":
				t, err := time.Parse(time.RFC3339, expiresAt)
				if err != nil {
					return fmt.Errorf("invalid expires-at: %w", err)
				}
				rec.ExpiresAt = &t
			case validFor != 0:
				t := time.Now().UTC().Add(validFor)
				rec.ExpiresAt = &t
			}

			store, closeFn, err := openStore(ctx, databaseURL, schema)
			if err != nil {
				return err
			}
			defer closeFn()

			created, err := store.CreateGrant(ctx, rec)
			if err != nil {
				return fmt.Errorf("create grant: %w", err)
			}

			expiry := "never"
			if created.ExpiresAt != nil {
				expiry = created.ExpiresAt.UTC().Format(time.RFC3339)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Grant created. Grant: %s | Phone: %s | Expires: %s\n", created.GrantID, created.Phone, expiry)
			return nil
		},
	}

	c.Flags().StringVar(&databaseURL, "database-url", "", "PostgreSQL connection string")
	c.Flags().StringVar(&schema, "schema", persistence.DefaultSchema, "Schema holding the hotspot tables")
	c.Flags().StringVar(&tenantID, "tenant-id", "", "Tenant UUID (omit for a legacy grant)")
	c.Flags().StringVar(&phone, "phone", "", "Subscriber phone number")
	c.Flags().StringVar(&expiresAt, "expires-at", "", "Expiry as RFC3339 timestamp")
	c.Flags().DurationVar(&validFor, "valid-for", 0, "Expiry relative to now (e.g. 1h, -5m)")

	_ = c.MarkFlagRequired("database-url")
	_ = c.MarkFlagRequired("phone")
	c.MarkFlagsMutuallyExclusive("expires-at", "valid-for")

	return c
}

func addDeviceCommand() *cobra.Command {
	var (
		databaseURL string
		schema      string
		grantID     string
		macAddress  string
		ipAddress   string
	)

	c := &cobra.Command{
		Use:   "add-device",
		Short: "Attach an active device to a grant",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			id, err := uuid.Parse(grantID)
			if err != nil {
				return fmt.Errorf("invalid grant id: %w", err)
			}

			rec := persistence.DeviceRecord{DeviceID: uuid.New(), GrantID: id, MACAddress: macAddress, IsActive: true}
			if ip := strings.TrimSpace(ipAddress); ip != "" {
				rec.IPAddress = &ip
			}

			store, closeFn, err := openStore(ctx, databaseURL, schema)
			if err != nil {
				return err
			}
			defer closeFn()

			created, err := store.CreateDevice(ctx, rec)
			if err != nil {
				return fmt.Errorf("create device: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Device attached. Device: %s | MAC: %s | Grant: %s\n", created.DeviceID, created.MACAddress, created.GrantID)
			return nil
		},
	}

	c.Flags().StringVar(&databaseURL, "database-url", "", "PostgreSQL connection string")
	c.Flags().StringVar(&schema, "schema", persistence.DefaultSchema, "Schema holding the hotspot tables")
	c.Flags().StringVar(&grantID, "grant-id", "", "Grant UUID")
	c.Flags().StringVar(&macAddress, "mac", "", "Device MAC address")
	c.Flags().StringVar(&ipAddress, "ip", "", "Device IP address")

	_ = c.MarkFlagRequired("database-url")
	_ = c.MarkFlagRequired("grant-id")
	_ = c.MarkFlagRequired("mac")

	return c
}
