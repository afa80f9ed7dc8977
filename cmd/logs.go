package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/fleetcore/config"
	dispatchlog "github.com/kilianp07/fleetcore/core/dispatch/logging"
	"github.com/kilianp07/fleetcore/pkg/export"
)

var (
	logsFleet   string
	logsCarrier string
	logsSince   string
	logsUntil   string
	logsFormat  string
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Print recorded dispatch cycles",
	Args:  cobra.NoArgs,
	RunE:  queryLogs,
}

func init() {
	logsCmd.Flags().StringVar(&logsFleet, "fleet", "", "only cycles of this fleet")
	logsCmd.Flags().StringVar(&logsCarrier, "carrier", "", "only cycles considering this carrier")
	logsCmd.Flags().StringVar(&logsSince, "since", "", "RFC3339 start time or a duration such as 1h")
	logsCmd.Flags().StringVar(&logsUntil, "until", "", "RFC3339 end time")
	logsCmd.Flags().StringVar(&logsFormat, "format", "json", "output format: json, csv or chart")
	rootCmd.AddCommand(logsCmd)
}

// parseSince accepts an absolute RFC3339 timestamp or a duration relative to now.
func parseSince(s string, now time.Time) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if d, err := time.ParseDuration(s); err == nil {
		return now.Add(-d), nil
	}
	return time.Parse(time.RFC3339, s)
}

func queryLogs(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	q := dispatchlog.LogQuery{Fleet: logsFleet, Carrier: logsCarrier}
	if q.Start, err = parseSince(logsSince, time.Now()); err != nil {
		return fmt.Errorf("invalid --since: %w", err)
	}
	if logsUntil != "" {
		if q.End, err = time.Parse(time.RFC3339, logsUntil); err != nil {
			return fmt.Errorf("invalid --until: %w", err)
		}
	}
	write, ok := map[string]func(io.Writer, []dispatchlog.LogRecord) error{
		"json":  export.WriteJSON,
		"csv":   export.WriteCSV,
		"chart": export.WriteChart,
	}[logsFormat]
	if !ok {
		return fmt.Errorf("unknown format %q", logsFormat)
	}
	store, err := dispatchlog.NewLogStore(cfg.Logging.StoreConfig())
	if err != nil {
		return fmt.Errorf("dispatch log: %w", err)
	}
	defer store.Close()
	records, err := store.Query(cmd.Context(), q)
	if err != nil {
		return err
	}
	return write(cmd.OutOrStdout(), records)
}
