// Command webreq sends rate-limited HTTP requests, drains paginated
// endpoints and runs a forwarding proxy that shares the same limiter.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
