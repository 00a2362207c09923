//go:build linux

package vl805

import "github.com/soypat/vl805/pcicfg"

// SupportedDevices lists PCI IDs this driver attaches to.
var SupportedDevices = []pcicfg.ID{
	{Vendor: VendorID, Device: DeviceID, Class: ClassName, Name: ChipName},
}

// Probe scans the PCI bus for a supported bridge and returns an
// uninitialized Device owning its config space. Returns
// pcicfg.ErrNoDevice if no supported chip is present. Failure to attach is
// fatal to this driver's registration only, never to the calling process.
func Probe() (*Device, error) {
	cfg, err := pcicfg.Find("", SupportedDevices)
	if err != nil {
		return nil, err
	}
	return New(cfg), nil
}
