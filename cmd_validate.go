package main

import (
	"github.com/spf13/cobra"
)

func validateCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the config and print the resolved packages without downloading anything",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := runValidate(o)
			return err
		},
	}
}

func runValidate(o *rootOptions) ([]PackageSpec, error) {
	config, err := o.loadConfiguration()
	if err != nil {
		return nil, err
	}

	specs, err := BuildPackageSpecs(config, o.Arch)
	if err != nil {
		return nil, err
	}

	sugar.Infof("config %s is valid: %d package(s) for %s", o.ConfigPath, len(specs), o.Arch)
	for _, spec := range specs {
		sugar.Infof("  %s: %s -> %s (sha256 %s)", spec.Key, spec.URL, spec.DestDir, spec.ExpectedDigest)
	}
	return specs, nil
}
