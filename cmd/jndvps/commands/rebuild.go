package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/04By0302/jnd-vps/internal/app"
	"github.com/04By0302/jnd-vps/internal/config"
	"github.com/04By0302/jnd-vps/internal/stats"
)

// NewRebuildDailyCommand recomputes one date's daily statistics from
// the committed draw rows.
func NewRebuildDailyCommand() *cobra.Command {
	var (
		configPath string
		date       string
	)

	cmd := &cobra.Command{
		Use:   "rebuild-daily",
		Short: "Recompute one date's daily statistics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			if date == "" {
				date = stats.DateOf(time.Now())
			}

			if _, err := time.Parse("2006-01-02", date); err != nil {
				return fmt.Errorf("invalid date %q: want YYYY-MM-DD", date)
			}

			log := buildLogger(cfg.Logging)

			a, err := app.New(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}

			return a.RebuildDaily(cmd.Context(), date)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to the config file")
	cmd.Flags().StringVar(&date, "date", "", "date to rebuild (YYYY-MM-DD, default today)")

	return cmd
}
