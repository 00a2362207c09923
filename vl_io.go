package vl805

import "log/slog"

// vl_io.go contains the low level indirect register access protocol. Every
// internal register is reached in two steps: write the register address to
// cfgRegAddr, then access its value through cfgRegData. The pair is shared
// mutable state, which is why Device serializes all callers.

func (d *Device) setreg(reg Register, val uint32) error {
	if d._traceenabled {
		d.trace("setreg", slog.String("reg", reg.String()), slog.String("val", hex32(val)))
	}
	err := d.bus.WriteConfig32(cfgRegAddr, uint32(reg))
	if err != nil {
		return err
	}
	return d.bus.WriteConfig32(cfgRegData, val)
}

func (d *Device) getreg(reg Register) (uint32, error) {
	err := d.bus.WriteConfig32(cfgRegAddr, uint32(reg))
	if err != nil {
		return 0, err
	}
	val, err := d.bus.ReadConfig32(cfgRegData)
	if d._traceenabled {
		d.trace("getreg", slog.String("reg", reg.String()), slog.String("val", hex32(val)))
	}
	return val, err
}
