package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kilianp07/fleetcore/config"
)

var siteCmd = &cobra.Command{
	Use:   "site",
	Short: "Site file related commands",
}

var siteValidateCmd = &cobra.Command{
	Use:   "validate [FILE]",
	Short: "Check a site file for broken references",
	Args:  cobra.MaximumNArgs(1),
	RunE:  siteValidate,
}

var siteLsCmd = &cobra.Command{
	Use:   "ls [FILE]",
	Short: "List fleets and their carriers",
	Args:  cobra.MaximumNArgs(1),
	RunE:  siteLs,
}

func init() {
	siteCmd.AddCommand(siteValidateCmd, siteLsCmd)
	rootCmd.AddCommand(siteCmd)
}

// sitePath resolves the site file from the argument or the configuration.
func sitePath(args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return "", fmt.Errorf("load config: %w", err)
	}
	if cfg.SiteFile == "" {
		return "", fmt.Errorf("site_file is not configured")
	}
	return cfg.SiteFile, nil
}

func siteValidate(cmd *cobra.Command, args []string) error {
	path, err := sitePath(args)
	if err != nil {
		return err
	}
	site, err := config.LoadSite(path)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s: %d fleets, %d stations, %d carriers, %d zones\n",
		path, len(site.Fleets), len(site.Stations), len(site.Carriers), len(site.Zones))
	return err
}

func siteLs(cmd *cobra.Command, args []string) error {
	path, err := sitePath(args)
	if err != nil {
		return err
	}
	site, err := config.LoadSite(path)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "FLEET\tSTATUS\tCARRIER\tPARKING")
	for _, f := range site.Fleets {
		n := 0
		for _, c := range site.Carriers {
			if c.Fleet != f.Name {
				continue
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", f.Name, f.Status, c.Name, c.ParkingStation)
			n++
		}
		if n == 0 {
			fmt.Fprintf(w, "%s\t%s\t-\t-\n", f.Name, f.Status)
		}
	}
	return w.Flush()
}
