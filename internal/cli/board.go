package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"oddsboard/internal/app"
)

var (
	boardSport  string
	boardMarket string
)

var boardCmd = &cobra.Command{
	Use:   "board",
	Short: "Fetch and display the current odds board for a sport",
	RunE: func(cmd *cobra.Command, args []string) error {
		if boardSport == "" {
			return fmt.Errorf("--sport is required")
		}

		opts := app.BoardOptions{
			Sport:  boardSport,
			Market: boardMarket,
		}

		return getApp().Board(cmd.Context(), opts)
	},
}

func init() {
	boardCmd.Flags().StringVar(&boardSport, "sport", "", "Sport key, e.g. americanfootball_nfl")
	boardCmd.Flags().StringVar(&boardMarket, "market", "h2h", "Market to display (h2h, spreads, totals)")
}
