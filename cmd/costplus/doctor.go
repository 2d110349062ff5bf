package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"costplus/internal/woocommerce"
)

func newDoctorCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check store connectivity, credentials and WooCommerce version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, err := a.loadConfig(cmd, nil)
			if err != nil {
				return err
			}
			client, err := a.newClient(cfg)
			if err != nil {
				return err
			}

			fmt.Fprintf(a.stdout, "Store:        %s\n", cfg.StoreDomain())

			version, err := client.StoreVersion(ctx)
			if err != nil {
				return fmt.Errorf("reading store version: %w", err)
			}
			if err := woocommerce.CheckMinimumVersion(version, woocommerce.MinimumVersion); err != nil {
				fmt.Fprintf(a.stdout, "WooCommerce:  %s (unsupported)\n", version)
				return err
			}
			fmt.Fprintf(a.stdout, "WooCommerce:  %s (>= %s OK)\n", version, woocommerce.MinimumVersion)

			info, ok, err := client.CountProducts(ctx)
			if err != nil {
				return fmt.Errorf("counting products: %w", err)
			}
			if ok {
				fmt.Fprintf(a.stdout, "Products:     %d\n", info.Total)
			} else {
				fmt.Fprintln(a.stdout, "Products:     unknown (store omits X-WP-Total)")
			}
			return nil
		},
	}
}
