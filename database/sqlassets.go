package sqlassets

import _ "embed"

//go:embed schema/hotspot/tenants.sql
var TenantsSQL string

//go:embed schema/hotspot/routers.sql
var RoutersSQL string

//go:embed schema/hotspot/access_grants.sql
var AccessGrantsSQL string

//go:embed schema/hotspot/devices.sql
var DevicesSQL string
