// Package main is the entry point for the porthole application.
package main

import (
	"github.com/porthole-app/porthole/cmd"
	"github.com/porthole-app/porthole/config"
	"github.com/porthole-app/porthole/internal/cache"
	"github.com/porthole-app/porthole/log"
	"github.com/porthole-app/porthole/network"
	"github.com/samber/lo"
)

func main() {
	lo.Must0(config.Setup())
	lo.Must0(log.Setup())
	network.Setup()

	// Prunes stale selection cache entries in the background.
	cache.CollectGarbage()

	cmd.Execute()
}
