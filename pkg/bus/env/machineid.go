// Package env sets up the bus for devices and clients from
// environment variables and command line flags.
package env

import (
	"os"

	"github.com/denisbrodbeck/machineid"
	"github.com/golang/glog"
)

// MachineID retrieves the unique ID identifying the machine.
// The hostname is used when the machine ID is not available.
func MachineID() string {
	id, err := machineid.ID()
	if err == nil && id != "" {
		return id
	}
	glog.V(1).Infof("machine id unavailable: %v", err)
	if host, err := os.Hostname(); err == nil {
		return host
	}
	return "unknown"
}

// AppMachineID derives an ID for the application from the machine ID.
// It doesn't expose the machine ID itself.
func AppMachineID(app string) string {
	id, err := machineid.ProtectedID(app)
	if err != nil {
		return MachineID()
	}
	return id[:16]
}
