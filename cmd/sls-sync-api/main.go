// Package main is the entry point for the Shiftline sync API server.
package main

import (
	"os"

	"github.com/shiftline/shiftline-sync-server/cmd/sls-sync-api/app"
)

func main() {
	if err := app.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
