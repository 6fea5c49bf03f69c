package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/charlie0129/curtain/pkg/types"
)

func NewStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "status [device]",
		GroupID: gBasic,
		Short:   "Get the current status of curtains",
		Long:    `Get the position, target and motion state of every curtain, or of one.`,
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var states []types.DeviceState
			if len(args) == 1 {
				st, err := apiClient.GetDevice(args[0])
				if err != nil {
					return fmt.Errorf("failed to get status: %w", err)
				}
				states = append(states, *st)
			} else {
				var err error
				states, err = apiClient.GetDevices()
				if err != nil {
					return fmt.Errorf("failed to get status: %w", err)
				}
			}

			for i, st := range states {
				if i > 0 {
					cmd.Println()
				}
				printDeviceState(cmd, st)
			}

			return nil
		},
	}
}

func printDeviceState(cmd *cobra.Command, st types.DeviceState) {
	cmd.Println(bold("%s:", st.Name))
	cmd.Println("  Ready: " + bool2Text(st.Ready))
	if !st.Ready {
		cmd.Println("    The device has not finished booting. Targets set now are applied once it is ready.")
	}
	cmd.Printf("  Position: %s (%d/%d steps)\n", bold("%d%%", st.CurrentPos), st.CurrentSteps, st.TotalSteps)
	cmd.Printf("  Target: %s (%d steps)\n", bold("%d%%", st.TargetPos), st.TargetSteps)
	cmd.Printf("  State: %s (driver %s)\n", stateText(st.State), st.Direction)
}
