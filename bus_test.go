package vl805

import "errors"

// testBus is a scripted ConfigIO that records every config space access and
// models the indirect register window so tests can assert the exact
// register-level traffic a command produces.
type busOp struct {
	write bool
	width uint8 // 8 or 32.
	off   uint16
	val   uint32
}

var errInjected = errors.New("injected bus failure")

type testBus struct {
	ops     []busOp
	regs    map[Register]uint32
	regaddr Register
	// indata responses popped on each read of RegSPIIndata. When exhausted
	// reads return regs[RegSPIIndata].
	indata []uint32
	// failAt makes access number failAt (1-based) return errInjected.
	// Zero disables injection.
	failAt int
	closed int
}

func newTestBus() *testBus {
	return &testBus{regs: make(map[Register]uint32)}
}

func (b *testBus) step(op busOp) error {
	b.ops = append(b.ops, op)
	if b.failAt != 0 && len(b.ops) == b.failAt {
		return errInjected
	}
	return nil
}

func (b *testBus) ReadConfig8(off uint16) (uint8, error) {
	err := b.step(busOp{width: 8, off: off})
	return 0, err
}

func (b *testBus) ReadConfig32(off uint16) (uint32, error) {
	var val uint32
	switch off {
	case cfgFirmwareVersion:
		val = 0x00010400
	case cfgRegData:
		if b.regaddr == RegSPIIndata && len(b.indata) > 0 {
			val = b.indata[0]
			b.indata = b.indata[1:]
		} else {
			val = b.regs[b.regaddr]
		}
	}
	err := b.step(busOp{width: 32, off: off, val: val})
	return val, err
}

func (b *testBus) WriteConfig8(off uint16, val uint8) error {
	return b.step(busOp{write: true, width: 8, off: off, val: uint32(val)})
}

func (b *testBus) WriteConfig32(off uint16, val uint32) error {
	switch off {
	case cfgRegAddr:
		b.regaddr = Register(val)
	case cfgRegData:
		b.regs[b.regaddr] = val
	}
	return b.step(busOp{write: true, width: 32, off: off, val: val})
}

func (b *testBus) Close() error {
	b.closed++
	return nil
}

// regWrites returns the sequence of values written to an internal register.
func (b *testBus) regWrites(reg Register) (vals []uint32) {
	addr := Register(0xffffffff)
	for _, op := range b.ops {
		if !op.write || op.width != 32 {
			continue
		}
		switch op.off {
		case cfgRegAddr:
			addr = Register(op.val)
		case cfgRegData:
			if addr == reg {
				vals = append(vals, op.val)
			}
		}
	}
	return vals
}

// initializedDevice returns a Device ready for Transfer calls without the
// bring-up traffic polluting the recorded op list.
func initializedDevice(bus *testBus) *Device {
	d := New(bus)
	d.initialized = true
	return d
}
