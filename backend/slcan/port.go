package slcan

import (
	"errors"
	"fmt"
	"runtime"
	"strings"

	"go.bug.st/serial/enumerator"
)

// ListPorts returns the serial ports present on the host.
func ListPorts() ([]*enumerator.PortDetails, error) {
	return enumerator.GetDetailedPortsList()
}

// FindPort resolves name against the present ports. An empty name or "*"
// picks the first USB serial port.
func FindPort(name string) (string, error) {
	if runtime.GOOS == "windows" {
		name = strings.ToUpper(name)
	}
	ports, err := ListPorts()
	if err != nil {
		return "", err
	}
	if len(ports) == 0 {
		return "", errors.New("no serial ports found")
	}
	for _, port := range ports {
		if name == "" || name == "*" {
			if port.IsUSB {
				return port.Name, nil
			}
			continue
		}
		if port.Name == name {
			return port.Name, nil
		}
	}
	return "", fmt.Errorf("port %q not found", name)
}
