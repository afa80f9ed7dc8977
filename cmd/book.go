package cmd

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/kilianp07/fleetcore/core/router"
	"github.com/kilianp07/fleetcore/core/trip"
)

var (
	bookPriority float64
	bookMeta     map[string]string
	bookBy       string
)

var bookCmd = &cobra.Command{
	Use:   "book STATION [STATION...]",
	Short: "Book a trip through the given stations",
	Args:  cobra.MinimumNArgs(1),
	RunE:  book,
}

func init() {
	bookCmd.Flags().Float64Var(&bookPriority, "priority", 1, "trip priority")
	bookCmd.Flags().StringToStringVar(&bookMeta, "meta", nil, "trip metadata, e.g. scheduled_start=2025-01-02T08:00:00Z")
	bookCmd.Flags().StringVar(&bookBy, "by", "cli", "requester recorded on the trip")
	rootCmd.AddCommand(bookCmd)
}

func book(cmd *cobra.Command, args []string) error {
	b := trip.Booking{
		BookingID: uuid.NewString(),
		Route:     args,
		Priority:  bookPriority,
		Metadata:  bookMeta,
		BookedBy:  bookBy,
	}
	if err := publishRequest(router.KindBook, b); err != nil {
		return err
	}
	_, err := fmt.Fprintf(cmd.OutOrStdout(), "booking %s sent: %s\n", b.BookingID, strings.Join(args, " -> "))
	return err
}
