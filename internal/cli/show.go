package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"oddsboard/internal/app"
)

var (
	showLimit int
	showSport string
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display recently stored odds snapshots",
	RunE: func(cmd *cobra.Command, args []string) error {
		if showLimit <= 0 {
			return fmt.Errorf("--limit must be greater than zero")
		}

		opts := app.ShowOptions{
			Limit: showLimit,
			Sport: showSport,
		}

		return getApp().Show(cmd.Context(), opts)
	},
}

func init() {
	showCmd.Flags().IntVar(&showLimit, "limit", 20, "Number of snapshots to display")
	showCmd.Flags().StringVar(&showSport, "sport", "", "Only show snapshots for this sport key")
}
