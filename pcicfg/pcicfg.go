//go:build linux

// Package pcicfg accesses PCI configuration space through Linux sysfs.
// It covers exactly what a config-space tunneled programmer needs: find a
// device by vendor/device ID and read or write a handful of config offsets.
// Writing config space requires CAP_SYS_ADMIN (typically root).
package pcicfg

import (
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// DefaultSysfsPath is where the kernel exposes PCI devices.
const DefaultSysfsPath = "/sys/bus/pci/devices"

// ID identifies a supported PCI device. Class and Name are operator-facing
// identification strings, not match criteria.
type ID struct {
	Vendor uint16
	Device uint16
	Class  string
	Name   string
}

func (id ID) String() string {
	return id.Class + " " + id.Name
}

var ErrNoDevice = errors.New("pcicfg: no matching PCI device found")

// Device is an open handle to one PCI function's configuration space.
// Config space is little-endian. Accesses must be naturally aligned.
type Device struct {
	f      *os.File
	addr   string
	vendor uint16
	device uint16
}

// Open opens the config space of the device at the given bus address
// ("0000:01:00.0") for read-write access.
func Open(addr string) (*Device, error) {
	return open(DefaultSysfsPath, addr)
}

func open(root, addr string) (*Device, error) {
	dir := filepath.Join(root, addr)
	vendor, err := readHexAttr(filepath.Join(dir, "vendor"))
	if err != nil {
		return nil, err
	}
	device, err := readHexAttr(filepath.Join(dir, "device"))
	if err != nil {
		return nil, err
	}
	f, err := os.OpenFile(filepath.Join(dir, "config"), os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}
	return &Device{f: f, addr: addr, vendor: vendor, device: device}, nil
}

// Find scans the sysfs PCI tree rooted at root (DefaultSysfsPath if empty)
// and opens the first device matching any of ids, in bus address order.
func Find(root string, ids []ID) (*Device, error) {
	if root == "" {
		root = DefaultSysfsPath
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		vendor, err := readHexAttr(filepath.Join(root, e.Name(), "vendor"))
		if err != nil {
			continue
		}
		device, err := readHexAttr(filepath.Join(root, e.Name(), "device"))
		if err != nil {
			continue
		}
		for _, id := range ids {
			if id.Vendor == vendor && id.Device == device {
				return open(root, e.Name())
			}
		}
	}
	return nil, ErrNoDevice
}

// readHexAttr parses a sysfs attribute of the form "0x1106\n".
func readHexAttr(path string) (uint16, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	s := strings.TrimSpace(string(b))
	s = strings.TrimPrefix(s, "0x")
	v, err := strconv.ParseUint(s, 16, 16)
	if err != nil {
		return 0, err
	}
	return uint16(v), nil
}

// Addr returns the device's bus address, e.g. "0000:01:00.0".
func (d *Device) Addr() string { return d.addr }

func (d *Device) VendorID() uint16 { return d.vendor }

func (d *Device) DeviceID() uint16 { return d.device }

func (d *Device) ReadConfig8(off uint16) (uint8, error) {
	var buf [1]byte
	err := d.pread(buf[:], off)
	return buf[0], err
}

func (d *Device) ReadConfig16(off uint16) (uint16, error) {
	var buf [2]byte
	err := d.pread(buf[:], off)
	return binary.LittleEndian.Uint16(buf[:]), err
}

func (d *Device) ReadConfig32(off uint16) (uint32, error) {
	var buf [4]byte
	err := d.pread(buf[:], off)
	return binary.LittleEndian.Uint32(buf[:]), err
}

func (d *Device) WriteConfig8(off uint16, val uint8) error {
	return d.pwrite([]byte{val}, off)
}

func (d *Device) WriteConfig32(off uint16, val uint32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], val)
	return d.pwrite(buf[:], off)
}

func (d *Device) Close() error { return d.f.Close() }

func (d *Device) pread(buf []byte, off uint16) error {
	n, err := unix.Pread(int(d.f.Fd()), buf, int64(off))
	if err != nil {
		return err
	}
	if n != len(buf) {
		return errors.New("pcicfg: short config read")
	}
	return nil
}

func (d *Device) pwrite(buf []byte, off uint16) error {
	n, err := unix.Pwrite(int(d.f.Fd()), buf, int64(off))
	if err != nil {
		return err
	}
	if n != len(buf) {
		return errors.New("pcicfg: short config write")
	}
	return nil
}
