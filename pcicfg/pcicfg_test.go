//go:build linux

package pcicfg

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// writeFixture lays out a fake sysfs PCI tree with one device per entry.
func writeFixture(t *testing.T, devices map[string][2]uint16) string {
	t.Helper()
	root := t.TempDir()
	for addr, id := range devices {
		dir := filepath.Join(root, addr)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
		vendor := []byte{'0', 'x', hexdigit(id[0] >> 12), hexdigit(id[0] >> 8), hexdigit(id[0] >> 4), hexdigit(id[0]), '\n'}
		device := []byte{'0', 'x', hexdigit(id[1] >> 12), hexdigit(id[1] >> 8), hexdigit(id[1] >> 4), hexdigit(id[1]), '\n'}
		if err := os.WriteFile(filepath.Join(dir, "vendor"), vendor, 0o644); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(dir, "device"), device, 0o644); err != nil {
			t.Fatal(err)
		}
		cfg := make([]byte, 256)
		cfg[0] = byte(id[0])
		cfg[1] = byte(id[0] >> 8)
		cfg[2] = byte(id[1])
		cfg[3] = byte(id[1] >> 8)
		if err := os.WriteFile(filepath.Join(dir, "config"), cfg, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

func hexdigit(v uint16) byte {
	return "0123456789abcdef"[v&0xf]
}

func TestFind(t *testing.T) {
	root := writeFixture(t, map[string][2]uint16{
		"0000:00:02.0": {0x8086, 0x1234},
		"0000:01:00.0": {0x1106, 0x3483},
	})
	dev, err := Find(root, []ID{{Vendor: 0x1106, Device: 0x3483, Class: "VIA", Name: "VL805"}})
	if err != nil {
		t.Fatal(err)
	}
	defer dev.Close()
	if dev.Addr() != "0000:01:00.0" {
		t.Errorf("addr = %q", dev.Addr())
	}
	if dev.VendorID() != 0x1106 || dev.DeviceID() != 0x3483 {
		t.Errorf("id = %04x:%04x", dev.VendorID(), dev.DeviceID())
	}
}

func TestFindNoMatch(t *testing.T) {
	root := writeFixture(t, map[string][2]uint16{
		"0000:00:02.0": {0x8086, 0x1234},
	})
	_, err := Find(root, []ID{{Vendor: 0x1106, Device: 0x3483}})
	if !errors.Is(err, ErrNoDevice) {
		t.Fatalf("got %v, want ErrNoDevice", err)
	}
}

func TestConfigAccess(t *testing.T) {
	root := writeFixture(t, map[string][2]uint16{
		"0000:01:00.0": {0x1106, 0x3483},
	})
	dev, err := open(root, "0000:01:00.0")
	if err != nil {
		t.Fatal(err)
	}
	defer dev.Close()

	// Vendor/device words at the head of config space, little-endian.
	if got, _ := dev.ReadConfig16(0x00); got != 0x1106 {
		t.Errorf("vendor word = %#04x", got)
	}
	if got, _ := dev.ReadConfig32(0x00); got != 0x34831106 {
		t.Errorf("id dword = %#08x", got)
	}

	if err := dev.WriteConfig32(0x78, 0x000400fc); err != nil {
		t.Fatal(err)
	}
	got, err := dev.ReadConfig32(0x78)
	if err != nil || got != 0x000400fc {
		t.Fatalf("readback = %#08x, %v", got, err)
	}
	if err := dev.WriteConfig8(0x43, 0x01); err != nil {
		t.Fatal(err)
	}
	if got, _ := dev.ReadConfig8(0x43); got != 0x01 {
		t.Errorf("byte readback = %#02x", got)
	}
}
