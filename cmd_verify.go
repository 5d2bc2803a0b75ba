package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
)

func verifyCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Re-hash deployed runtimes against the deploy index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(o)
		},
	}
}

func runVerify(o *rootOptions) error {
	var targetDir string
	if o.TargetDir == "" {
		config, err := o.loadConfiguration()
		if err != nil {
			return err
		}
		targetDir = config.TargetDir
	} else {
		abs, err := filepath.Abs(o.TargetDir)
		if err != nil {
			return &ConfigError{Err: fmt.Errorf("invalid target dir: %w", err)}
		}
		targetDir = abs
	}

	index, err := LoadDeployIndex(targetDir)
	if err != nil {
		return err
	}
	if len(index.Runtimes) == 0 {
		sugar.Infof("no runtimes recorded in %s", targetDir)
		return nil
	}

	valid, invalid, err := VerifyDeployIndex(index)
	if err != nil {
		return err
	}
	for _, key := range valid {
		sugar.Infof("[ok] %s", key)
	}
	if len(invalid) > 0 {
		return fmt.Errorf("%w: %v", ErrRuntimeDrift, invalid)
	}
	return nil
}
