package main

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/theckman/yacspin"

	"github.com/charlie0129/curtain/pkg/types"
	"github.com/charlie0129/curtain/pkg/version"
)

func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Print version",
		Annotations: localAnnotation,
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("%s %s\n", version.Version, version.GitCommit)
		},
	}
}

func NewSetCommand() *cobra.Command {
	wait := false
	timeout := 2 * time.Minute

	cmd := &cobra.Command{
		Use:     "set [device] <percentage>",
		Short:   "Move a curtain to a position",
		GroupID: gBasic,
		Long: `Move a curtain to a position.

The position is a percentage of the actuated height, from 0 (fully up) to 100
(fully down). The device name can be left out if only one curtain is configured.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := ""
			if len(args) == 2 {
				name = args[0]
			}
			percent, err := parsePercentArg(args[len(args)-1])
			if err != nil {
				return err
			}

			name, err = resolveDevice(name)
			if err != nil {
				return err
			}

			ret, err := apiClient.SetTarget(name, percent)
			if err != nil {
				return fmt.Errorf("failed to set target: %w", err)
			}
			if ret != "" {
				logrus.Infof("daemon responded: %s", ret)
			}

			if !wait {
				return nil
			}

			return waitForTarget(name, timeout)
		},
	}

	f := cmd.Flags()
	f.BoolVarP(&wait, "wait", "w", false, "Wait until the curtain reaches the target")
	f.DurationVar(&timeout, "timeout", timeout, "How long to wait with --wait")

	return cmd
}

func NewStopCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "stop [device]",
		Short:   "Stop a moving curtain where it is",
		GroupID: gBasic,
		Args:    cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			name := ""
			if len(args) == 1 {
				name = args[0]
			}
			name, err := resolveDevice(name)
			if err != nil {
				return err
			}

			ret, err := apiClient.Stop(name)
			if err != nil {
				return fmt.Errorf("failed to stop %s: %w", name, err)
			}
			if ret != "" {
				logrus.Infof("daemon responded: %s", ret)
			}

			return nil
		},
	}
}

// waitForTarget polls the daemon and shows a spinner until the device is
// idle at its target.
func waitForTarget(name string, timeout time.Duration) error {
	spinner, err := yacspin.New(yacspin.Config{
		Frequency:         100 * time.Millisecond,
		CharSet:           yacspin.CharSets[14],
		Suffix:            " " + name,
		SuffixAutoColon:   true,
		StopCharacter:     "✓",
		StopColors:        []string{"fgGreen"},
		StopFailCharacter: "✗",
		StopFailColors:    []string{"fgRed"},
	})
	if err != nil {
		return fmt.Errorf("failed to create spinner: %w", err)
	}
	if err := spinner.Start(); err != nil {
		return fmt.Errorf("failed to start spinner: %w", err)
	}

	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	var st *types.DeviceState
	for range ticker.C {
		st, err = apiClient.GetDevice(name)
		if err != nil {
			spinner.StopFailMessage(err.Error())
			_ = spinner.StopFail()
			return err
		}

		if !st.Ready {
			spinner.Message("waiting for the device to become ready")
		} else {
			spinner.Message(fmt.Sprintf("%d%% → %d%%", st.CurrentPos, st.TargetPos))
		}

		if st.Ready && st.CurrentSteps == st.TargetSteps && st.State == "stopped" {
			spinner.StopMessage(fmt.Sprintf("reached %d%%", st.CurrentPos))
			return spinner.Stop()
		}

		if time.Now().After(deadline) {
			spinner.StopFailMessage(fmt.Sprintf("still at %d%% after %s", st.CurrentPos, timeout))
			_ = spinner.StopFail()
			return fmt.Errorf("timed out waiting for %s to reach %d%%", name, st.TargetPos)
		}
	}

	return nil
}
