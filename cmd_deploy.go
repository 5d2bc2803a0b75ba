package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
)

func deployCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "deploy",
		Short: "Verify and extract every configured runtime (the default command)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDeploy(cmd.Context(), o)
		},
	}
}

func runDeploy(ctx context.Context, o *rootOptions) (err error) {
	started := time.Now()

	var metrics *Metrics
	if o.MetricsFile != "" {
		metrics = NewMetrics()
		defer func() {
			metrics.RunFinished(err == nil, started)
			if writeErr := metrics.WriteTextfile(o.MetricsFile); writeErr != nil {
				sugar.Errorf("unable to write metrics to %s: %v", o.MetricsFile, writeErr)
				if err == nil {
					err = writeErr
				}
			}
		}()
	}

	config, err := o.loadConfiguration()
	if err != nil {
		return err
	}

	specs, err := BuildPackageSpecs(config, o.Arch)
	if err != nil {
		return err
	}
	sugar.Infof("deploying %d package(s) for %s into %s", len(specs), o.Arch, config.TargetDir)

	if err := os.MkdirAll(config.CacheDir, os.FileMode(0755)); err != nil {
		return fmt.Errorf("unable to create cache dir %s: %w", config.CacheDir, err)
	}

	var progress io.Writer = os.Stderr
	if o.Quiet {
		progress = nil
	}

	pipeline := NewPipeline(
		&CacheResolver{
			CacheDir: config.CacheDir,
			Fetcher:  NewSourceFetcher(config.S3Endpoint, progress),
			Metrics:  metrics,
		},
		Extractor{
			PreserveOwner: os.Geteuid() == 0,
			Metrics:       metrics,
		},
	)

	deployed, runErr := pipeline.Run(ctx, specs)
	if len(deployed) > 0 {
		// runtimes replaced before a failed extraction are recorded too
		if _, err := RecordDeployment(config.TargetDir, o.runID, o.Arch, specs, deployed); err != nil {
			if runErr != nil {
				sugar.Errorf("unable to update the deploy index: %v", err)
				return runErr
			}
			return fmt.Errorf("runtimes deployed but the deploy index was not updated: %w", err)
		}
	}
	return runErr
}
