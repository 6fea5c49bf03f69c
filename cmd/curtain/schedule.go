package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func NewScheduleCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "schedule",
		Short:   "List scheduled moves",
		GroupID: gAdvanced,
		Long: `List scheduled moves and when they run next.

Schedules are configured in the daemon config file, e.g.

  schedules:
    - device: bedroom
      cron: "0 7 * * 1-5"
      position: 0`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			entries, err := apiClient.GetSchedules()
			if err != nil {
				return fmt.Errorf("failed to get schedules: %w", err)
			}

			if len(entries) == 0 {
				cmd.Println("No schedules configured.")
				return nil
			}

			for _, e := range entries {
				cmd.Printf("%s  %s -> %g%%  next: %s\n",
					bold("%s", e.Device), e.Cron, e.Position, e.Next.Local().Format(time.DateTime))
			}

			return nil
		},
	}
}
