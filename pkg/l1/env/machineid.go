// Package env provides facts about the machine the daemon runs on.
package env

import (
	"os"

	"github.com/denisbrodbeck/machineid"
)

// appID salts the machine ID so it isn't exposed verbatim on the network.
const appID = "mcucomms"

// MachineID retrieves the unique ID identifying the machine.
func MachineID() (string, error) {
	return machineid.ProtectedID(appID)
}

// RobotID returns the machine ID shortened to a topic-friendly length,
// or the hostname if the machine has no ID.
func RobotID() string {
	if id, err := MachineID(); err == nil && len(id) >= 12 {
		return id[:12]
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "robot"
}
