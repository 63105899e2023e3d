// Command airq collects air quality readings from the data.gov.in feed into a
// JSON dataset.
//
//	airq collect <sink.json> <span-seconds>   one run, exit status reports success
//	airq serve                                scheduled runs plus a read-only HTTP API
//
// Settings come from an optional .env file, an optional --config file and
// AIRQ_* environment variables; AIRQ_API_KEY is required.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "airq:", err)
		os.Exit(1)
	}
}
