package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kilianp07/fleetcore/config"
	"github.com/kilianp07/fleetcore/core/model"
	"github.com/kilianp07/fleetcore/core/router"
)

var dispatchAll bool

var dispatchCmd = &cobra.Command{
	Use:   "dispatch [FLEET...]",
	Short: "Ask the control plane for an optimal dispatch cycle of fleets",
	Long: "Publishes a trigger_optimal_dispatch request per fleet. With --all every\n" +
		"running fleet of the configured site file is triggered.",
	RunE: dispatchFleets,
}

func init() {
	dispatchCmd.Flags().BoolVar(&dispatchAll, "all", false, "trigger every running fleet of the site file")
	rootCmd.AddCommand(dispatchCmd)
}

func dispatchFleets(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	fleets := args
	if dispatchAll {
		if fleets, err = runningFleets(cfg.SiteFile); err != nil {
			return err
		}
	}
	if len(fleets) == 0 {
		return errors.New("name at least one fleet or pass --all")
	}
	reqs := make([]request, len(fleets))
	for i, f := range fleets {
		reqs[i] = request{kind: router.KindTriggerOptimalDispatch, payload: router.TriggerOptimalDispatch{Fleet: f}}
	}
	if err := publishRequests(cfg, reqs...); err != nil {
		return err
	}
	for _, f := range fleets {
		if _, err := fmt.Fprintf(cmd.OutOrStdout(), "dispatch of %s requested\n", f); err != nil {
			return err
		}
	}
	return nil
}

func runningFleets(siteFile string) ([]string, error) {
	if siteFile == "" {
		return nil, errors.New("--all needs site_file in the configuration")
	}
	site, err := config.LoadSite(siteFile)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, f := range site.Fleets {
		if f.Status == model.FleetRunning {
			out = append(out, f.Name)
		}
	}
	return out, nil
}
