package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"toolbroker/internal/broker"
	"toolbroker/internal/logger"
	"toolbroker/internal/model"

	"github.com/spf13/cobra"
)

var (
	redeemOrigins []string
	redeemService string
	redeemTimeout time.Duration
)

var redeemCmd = &cobra.Command{
	Use:   "redeem CODE",
	Short: "Redeem an auth code against one or more broker origins",
	Long: `Redeem sends the code to each origin in turn and prints the first grant.
The code is consumed by whichever broker accepts it.`,
	Args: cobra.ExactArgs(1),
	RunE: runRedeem,
}

func init() {
	redeemCmd.Flags().StringSliceVar(&redeemOrigins, "origin", nil, "broker origin, repeatable")
	redeemCmd.Flags().StringVar(&redeemService, "service", "", "service the code was issued for")
	redeemCmd.Flags().DurationVar(&redeemTimeout, "timeout", 5*time.Second, "per-origin timeout")
	_ = redeemCmd.MarkFlagRequired("origin")
	_ = redeemCmd.MarkFlagRequired("service")
	rootCmd.AddCommand(redeemCmd)
}

func runRedeem(cmd *cobra.Command, args []string) error {
	svc, ok := model.ParseService(redeemService)
	if !ok {
		return fmt.Errorf("unknown service %q", redeemService)
	}

	discovery := broker.NewDiscovery(redeemOrigins, redeemTimeout, http.DefaultClient, logger.Discard())
	grant, err := discovery.Redeem(cmd.Context(), args[0], svc)
	if err != nil {
		return fmt.Errorf("redeem failed: %s", broker.Code(err))
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(grant)
}
