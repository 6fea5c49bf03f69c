package main

import (
	"fmt"
	"strconv"

	"github.com/fatih/color"

	"github.com/charlie0129/curtain/pkg/version"
)

// annotationLocal marks commands that do not talk to a running daemon.
const annotationLocal = "curtain/local"

var localAnnotation = map[string]string{annotationLocal: "true"}

func getVersion() (clientVersion, daemonVersion string, err error) {
	daemonVersion, err = apiClient.GetVersion()
	if err != nil {
		return "", "", err
	}
	return version.Version, daemonVersion, nil
}

func parsePercentArg(arg string) (float64, error) {
	value, err := strconv.ParseFloat(arg, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid percentage: %v", err)
	}
	if value < 0 || value > 100 {
		return 0, fmt.Errorf("percentage must be between 0 and 100, got %g", value)
	}
	return value, nil
}

// resolveDevice returns name, or the only configured device when name is
// empty.
func resolveDevice(name string) (string, error) {
	if name != "" {
		return name, nil
	}

	states, err := apiClient.GetDevices()
	if err != nil {
		return "", err
	}
	switch len(states) {
	case 0:
		return "", fmt.Errorf("the daemon has no devices configured")
	case 1:
		return states[0].Name, nil
	default:
		return "", fmt.Errorf("%d devices are configured, please name one", len(states))
	}
}

func bool2Text(b bool) string {
	if b {
		return color.New(color.Bold, color.FgGreen).Sprint("✔")
	}
	return color.New(color.Bold, color.FgRed).Sprint("✘")
}

func bold(format string, a ...interface{}) string {
	return color.New(color.Bold).Sprintf(format, a...)
}

func stateText(state string) string {
	switch state {
	case "increasing":
		return color.CyanString("moving down")
	case "decreasing":
		return color.MagentaString("moving up")
	default:
		return color.GreenString("stopped")
	}
}
