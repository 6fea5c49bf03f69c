package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/charlie0129/curtain/pkg/motor"
)

func NewPortsCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "ports",
		Short:       "List serial ports on this machine",
		GroupID:     gAdvanced,
		Annotations: localAnnotation,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ports, err := motor.ListPorts()
			if err != nil {
				return fmt.Errorf("failed to list serial ports: %w", err)
			}

			if len(ports) == 0 {
				cmd.Println("No serial ports found.")
				return nil
			}
			for _, p := range ports {
				cmd.Println(p)
			}
			return nil
		},
	}
}
