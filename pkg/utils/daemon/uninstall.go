package daemon

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"strings"

	"github.com/sirupsen/logrus"
)

func Uninstall() error {
	logrus.Infof("stopping curtain")

	out, err := exec.Command("systemctl", "disable", "--now", unitName).CombinedOutput()
	if err != nil {
		return fmt.Errorf("failed to disable %s: %w: %s. Are you root?", unitName, err, strings.TrimSpace(string(out)))
	}

	logrus.Infof("removing systemd unit")

	err = os.Remove(unitPath)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove %s: %w. Are you root?", unitPath, err)
	}

	if err := exec.Command("systemctl", "daemon-reload").Run(); err != nil {
		logrus.Warnf("systemctl daemon-reload failed: %v", err)
	}

	return nil
}
