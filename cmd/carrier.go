package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kilianp07/fleetcore/core/model"
	"github.com/kilianp07/fleetcore/core/router"
)

var carrierCmd = &cobra.Command{
	Use:   "carrier",
	Short: "Operator actions on a carrier",
}

var carrierContinueCmd = &cobra.Command{
	Use:   "continue CARRIER",
	Short: "Resume the stopped leg of a carrier",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := publishRequest(router.KindContinueLeg, router.ContinueLeg{Carrier: args[0]}); err != nil {
			return err
		}
		_, err := fmt.Fprintf(cmd.OutOrStdout(), "continuation of %s requested\n", args[0])
		return err
	},
}

var carrierModeCmd = &cobra.Command{
	Use:   "mode CARRIER manual|emergency_stop on|off",
	Short: "Switch a carrier's manual or emergency stop mode",
	Long: "Switching a mode on takes the carrier out of service. Switching it off puts\n" +
		"the carrier back only when it was disabled for that same mode.",
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := carrierMode(args[0], args[1], args[2])
		if err != nil {
			return err
		}
		if err := publishRequest(router.KindCarrierMode, m); err != nil {
			return err
		}
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s requested\n", m.Carrier, m.Mode, args[2])
		return err
	},
}

func init() {
	carrierCmd.AddCommand(carrierContinueCmd, carrierModeCmd)
	rootCmd.AddCommand(carrierCmd)
}

func carrierMode(carrier, mode, state string) (router.CarrierMode, error) {
	m := router.CarrierMode{Carrier: carrier, Mode: model.DisableReason(mode)}
	if !m.Mode.Manual() {
		return m, fmt.Errorf("%w: %q", router.ErrInvalidMode, mode)
	}
	switch state {
	case "on":
		m.Enabled = true
	case "off":
	default:
		return m, fmt.Errorf("state must be on or off, got %q", state)
	}
	return m, nil
}
