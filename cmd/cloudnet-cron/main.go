// Package main runs one cron enqueuer pass: -job freeze scans for
// volatile files old enough to freeze, -job qc scans yesterday's files
// for quality-control reruns. Both only publish tasks; the worker fleet
// does the actual work.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/golang/glog"

	"github.com/actris-cloudnet/cloudnet-processing/internal/alert"
	"github.com/actris-cloudnet/cloudnet-processing/internal/config"
	"github.com/actris-cloudnet/cloudnet-processing/internal/cron"
	"github.com/actris-cloudnet/cloudnet-processing/internal/metadata"
)

var job = flag.String("job", "", "cron job to run: freeze or qc")

func main() {
	os.Exit(run())
}

func run() int {
	flag.Parse()
	defer glog.Flush()

	cfg := config.LoadFromEnv()
	md := metadata.New(cfg)
	notifier := alert.New(cfg)
	ctx := context.Background()

	var err error
	switch *job {
	case "freeze":
		err = cron.NewFreezeJob(md, notifier, cfg).Run(ctx)
	case "qc":
		err = cron.NewQCJob(md, notifier).Run(ctx)
	default:
		fmt.Fprintf(os.Stderr, "usage: %s -job freeze|qc\n", os.Args[0])
		return 2
	}
	if err != nil {
		return 1
	}
	return 0
}
