package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/charlie0129/curtain/pkg/config"
	daemonutils "github.com/charlie0129/curtain/pkg/utils/daemon"
)

// NewInstallCommand .
func NewInstallCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:         "install",
		Short:       "Install curtain as a systemd service",
		GroupID:     gInstallation,
		Annotations: localAnnotation,
		Long: `Install curtain daemon as a systemd service.

This makes curtain run in the background and automatically start on boot. You must run this command as root.

The config file is checked before anything is installed. To let non-root users control the curtains, set allow_non_root_access in the config file.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			conf, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("refusing to install with an invalid config: %w", err)
			}

			if conf.AllowNonRootAccess {
				logrus.Info("non-root users are allowed to access the curtain daemon.")
			} else {
				logrus.Info("only root user is allowed to access the curtain daemon.")
			}

			err = daemonutils.Install(configPath, unixSocketPath)
			if err != nil {
				// check if current user is root
				if os.Geteuid() != 0 {
					logrus.Errorf("you must run this command as root")
				}
				return fmt.Errorf("failed to install daemon: %v. Are you root?", err)
			}

			logrus.Infof("installation succeeded")

			exePath, _ := os.Executable()

			cmd.Printf("systemd will use the current binary (%s) at startup so please make sure you do not move it. Once it is moved or deleted, you will need to run `curtain install' again.\n", exePath)

			return nil
		},
	}

	return cmd
}

// NewUninstallCommand .
func NewUninstallCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:         "uninstall",
		Short:       "Uninstall the curtain systemd service",
		GroupID:     gInstallation,
		Annotations: localAnnotation,
		Long: `Uninstall the curtain systemd service.

This stops the daemon, which disables every motor driver, and removes the unit.
The position state file is kept so a reinstall resumes where it left off.

You must run this command as root.`,
		RunE: func(_ *cobra.Command, _ []string) error {
			err := daemonutils.Uninstall()
			if err != nil {
				// check if current user is root
				if os.Geteuid() != 0 {
					logrus.Errorf("you must run this command as root")
				}
				return fmt.Errorf("failed to uninstall daemon: %v", err)
			}

			logrus.Infof("successfully uninstalled curtain")
			return nil
		},
	}

	return cmd
}
