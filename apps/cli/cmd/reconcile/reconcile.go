package reconcile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap/zapcore"

	accessrepo "github.com/netpesa/hotspot-billing/domains/access/be/repo"
	"github.com/netpesa/hotspot-billing/domains/access/be/scheduler"
	accessservice "github.com/netpesa/hotspot-billing/domains/access/be/service"
	tenantsrepo "github.com/netpesa/hotspot-billing/domains/tenants/be/repo"
	tenantsservice "github.com/netpesa/hotspot-billing/domains/tenants/be/service"
	platformlogging "github.com/netpesa/hotspot-billing/platform/go/logging"
	"github.com/netpesa/hotspot-billing/platform/go/persistence"
	"github.com/netpesa/hotspot-billing/platform/go/routeraccess"
	"github.com/netpesa/hotspot-billing/platform/go/runtrace"
	"github.com/netpesa/hotspot-billing/platform/go/sms"
	"github.com/netpesa/hotspot-billing/platform/go/storage"
)

// Command groups access reconciliation helpers.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Access reconciliation (one-shot passes, previews)",
	}

	cmd.AddCommand(runCommand())
	return cmd
}

type runOptions struct {
	databaseURL  string
	schema       string
	now          string
	workers      int
	callTimeout  time.Duration
	dryRun       bool
	logLevel     string
	reportDir    string
	notifyLegacy bool

	routerAgentURL   string
	routerAgentToken string
	smsGatewayURL    string
	smsAPIKey        string
	smsSenderID      string
	expiryMessage    string

	legacyRouterID      string
	legacyRouterName    string
	legacyRouterAddress string
}

func runCommand() *cobra.Command {
	var opts runOptions

	c := &cobra.Command{
		Use:   "run",
		Short: "Run one reconciliation pass and print the report",
		Long: "Deactivates every active grant whose expiry is at or before --now (default: current time), " +
			"revoking its devices on the tenant routers. With --dry-run only the matching grants are listed.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()
			return run(ctx, cmd.OutOrStdout(), opts)
		},
	}

	c.Flags().StringVar(&opts.databaseURL, "database-url", "", "PostgreSQL connection string")
	c.Flags().StringVar(&opts.schema, "schema", persistence.DefaultSchema, "Schema holding the hotspot tables")
	c.Flags().StringVar(&opts.now, "now", "", "Reference time as RFC3339 (default: current time)")
	c.Flags().IntVar(&opts.workers, "workers", 1, "Grants processed concurrently")
	c.Flags().DurationVar(&opts.callTimeout, "call-timeout", 10*time.Second, "Timeout for each router or SMS call")
	c.Flags().BoolVar(&opts.dryRun, "dry-run", false, "List matching grants without side effects")
	c.Flags().StringVar(&opts.logLevel, "log-level", "info", "Log level (logs go to stderr)")
	c.Flags().StringVar(&opts.reportDir, "report-dir", "", "Directory to archive the run report in (optional)")
	c.Flags().BoolVar(&opts.notifyLegacy, "notify-legacy", true, "Send expiry notices for grants without a tenant")
	c.Flags().StringVar(&opts.routerAgentURL, "router-agent-url", os.Getenv("ROUTER_AGENT_URL"), "Router agent base URL")
	c.Flags().StringVar(&opts.routerAgentToken, "router-agent-token", os.Getenv("ROUTER_AGENT_TOKEN"), "Router agent bearer token")
	c.Flags().StringVar(&opts.smsGatewayURL, "sms-gateway-url", os.Getenv("SMS_GATEWAY_URL"), "SMS gateway base URL (empty disables notices)")
	c.Flags().StringVar(&opts.smsAPIKey, "sms-api-key", os.Getenv("SMS_API_KEY"), "SMS gateway API key")
	c.Flags().StringVar(&opts.smsSenderID, "sms-sender-id", os.Getenv("SMS_SENDER_ID"), "SMS sender id")
	c.Flags().StringVar(&opts.expiryMessage, "expiry-message", os.Getenv("EXPIRY_MESSAGE"), "Expiry notice template ({phone} is replaced)")
	c.Flags().StringVar(&opts.legacyRouterID, "legacy-router-id", "", "UUID of the router serving grants without a tenant")
	c.Flags().StringVar(&opts.legacyRouterName, "legacy-router-name", "legacy", "Name of the legacy router")
	c.Flags().StringVar(&opts.legacyRouterAddress, "legacy-router-address", "", "Address of the legacy router (empty: none)")

	_ = c.MarkFlagRequired("database-url")

	return c
}

func run(ctx context.Context, out io.Writer, opts runOptions) error {
	now := time.Now().UTC()
	if opts.now != "" {
		parsed, err := time.Parse(time.RFC3339, opts.now)
		if err != nil {
			return fmt.Errorf("invalid --now: %w", err)
		}
		now = parsed
	}

	logger, err := platformlogging.NewLogger(platformlogging.Config{
		Component: "cli",
		Level:     opts.logLevel,
		Output:    zapcore.Lock(os.Stderr),
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	if !opts.dryRun && strings.TrimSpace(opts.routerAgentURL) == "" {
		return errors.New("--router-agent-url is required unless --dry-run is set")
	}

	legacy, err := legacyRouter(opts)
	if err != nil {
		return err
	}

	pool, err := persistence.NewPool(ctx, persistence.PoolConfig{ConnString: opts.databaseURL})
	if err != nil {
		return fmt.Errorf("init pool: %w", err)
	}
	defer persistence.ClosePool(pool)

	db := persistence.NewDB(persistence.DBConfig{Pool: pool, Schema: opts.schema})
	tenantStore, err := persistence.NewTenantStore(db)
	if err != nil {
		return fmt.Errorf("init tenant store: %w", err)
	}
	grantStore, err := persistence.NewGrantStore(db)
	if err != nil {
		return fmt.Errorf("init grant store: %w", err)
	}

	var routers accessservice.RouterClient = dryRunRouters{}
	if !opts.dryRun {
		routers = routeraccess.New(routeraccess.Config{
			BaseURL: opts.routerAgentURL,
			Token:   opts.routerAgentToken,
			Timeout: opts.callTimeout,
		})
	}

	var notifier accessservice.Notifier = sms.Disabled{}
	if strings.TrimSpace(opts.smsGatewayURL) != "" {
		notifier = sms.New(sms.Config{
			BaseURL:       opts.smsGatewayURL,
			APIKey:        opts.smsAPIKey,
			SenderID:      opts.smsSenderID,
			ExpiryMessage: opts.expiryMessage,
			Timeout:       opts.callTimeout,
		})
	}

	svc := accessservice.New(
		accessrepo.NewPostgresRepository(grantStore),
		accessservice.Deps{
			Tenants:  tenantsservice.New(tenantsrepo.NewPostgresRepository(tenantStore)),
			Routers:  routers,
			Notifier: notifier,
		},
		accessservice.Config{
			CallTimeout:  opts.callTimeout,
			Workers:      opts.workers,
			LegacyRouter: legacy,
			NotifyLegacy: opts.notifyLegacy,
		},
		logger,
	)

	if opts.dryRun {
		grants, err := svc.Expired(ctx, now)
		if err != nil {
			return err
		}
		return printGrants(out, now, grants)
	}

	var archive storage.Writer = storage.Discard{}
	if opts.reportDir != "" {
		archive = storage.NewLocalWriter(opts.reportDir, "")
	}

	runner := scheduler.NewRunner(scheduler.RunnerConfig{
		Reconciler: svc,
		Archive:    archive,
		Logger:     logger,
		Clock:      func() time.Time { return now },
	})

	result, err := runner.RunOnce(ctx, runtrace.TriggerCLI, "")
	if err != nil {
		return err
	}
	return printRun(out, result)
}

func legacyRouter(opts runOptions) (*tenantsservice.Router, error) {
	address := strings.TrimSpace(opts.legacyRouterAddress)
	if address == "" {
		return nil, nil
	}
	id := uuid.Nil
	if opts.legacyRouterID != "" {
		parsed, err := uuid.Parse(opts.legacyRouterID)
		if err != nil {
			return nil, fmt.Errorf("invalid --legacy-router-id: %w", err)
		}
		id = parsed
	}
	return &tenantsservice.Router{ID: id, Name: opts.legacyRouterName, Address: address}, nil
}

// dryRunRouters is never called; Expired does not touch routers.
type dryRunRouters struct{}

func (dryRunRouters) Revoke(context.Context, accessservice.RevokeRequest) accessservice.CallResult {
	return accessservice.Failed("dry run")
}

func printRun(out io.Writer, run scheduler.Run) error {
	r := run.Report
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Run\t%s\n", run.RunID)
	fmt.Fprintf(tw, "Now\t%s\n", r.Now.UTC().Format(time.RFC3339))
	fmt.Fprintf(tw, "Total matched\t%d\n", r.TotalMatched)
	fmt.Fprintf(tw, "Processed\t%d\n", r.Processed)
	fmt.Fprintf(tw, "Devices deactivated\t%d\n", r.DevicesDeactivated)
	fmt.Fprintf(tw, "Notifications sent\t%d\n", r.NotificationsSent)
	fmt.Fprintf(tw, "Notifications failed\t%d\n", r.NotificationsFailed)
	fmt.Fprintf(tw, "Notifications skipped\t%d\n", r.NotificationsSkipped)
	fmt.Fprintf(tw, "Revoke failures\t%d\n", r.RevokeFailures)
	fmt.Fprintf(tw, "Failed\t%d\n", r.Failed)
	fmt.Fprintf(tw, "Skipped\t%d\n", r.Skipped)
	fmt.Fprintf(tw, "Cancelled\t%d\n", r.Cancelled)
	return tw.Flush()
}

func printGrants(out io.Writer, now time.Time, grants []accessservice.Grant) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "GRANT\tTENANT\tPHONE\tEXPIRES\n")
	for _, g := range grants {
		tenant := "-"
		if g.TenantID != nil {
			tenant = g.TenantID.String()
		}
		expiry := "-"
		if g.ExpiresAt != nil {
			expiry = g.ExpiresAt.UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", g.ID, tenant, g.Phone, expiry)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(out, "%d grant(s) expired at %s\n", len(grants), now.UTC().Format(time.RFC3339))
	return err
}

