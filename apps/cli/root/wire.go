package root

import (
	"github.com/netpesa/hotspot-billing/apps/cli/cmd/bootstrap"
	"github.com/netpesa/hotspot-billing/apps/cli/cmd/grant"
	"github.com/netpesa/hotspot-billing/apps/cli/cmd/reconcile"
	tenantcmd "github.com/netpesa/hotspot-billing/apps/cli/cmd/tenant"
)

func init() {
	Root().AddCommand(bootstrap.Command())
	Root().AddCommand(tenantcmd.Command())
	Root().AddCommand(grant.Command())
	Root().AddCommand(reconcile.Command())
}
