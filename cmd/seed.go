package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Inserts the configured seed URLs into an empty page store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			if err := appInstance.Seed(cmd.Context()); err != nil {
				return err
			}
			appInstance.Logger().Info("seeded", zap.Strings("urls", appInstance.Config().Crawler.SeedURLs))
			return nil
		},
	}
}
