// Command fieldctl administers plans, tenants and entitlements.
//
// Usage:
//
//	fieldctl plan list
//	fieldctl tenant onboard "Acme Lawn" acme-lawn --plan Starter
//	fieldctl check <tenant-id> max_vehicles
//	fieldctl audit -o json
package main

import "github.com/mbd888/fieldwork/internal/cli"

func main() {
	cli.Execute()
}
