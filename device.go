package vl805

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"log/slog"
)

// ConfigIO is the PCI configuration space of the bridge as seen by this
// driver. Implemented by pcicfg.Device for real hardware on Linux and by
// scripted fakes in tests. Accesses are little-endian as per PCI.
type ConfigIO interface {
	ReadConfig8(off uint16) (uint8, error)
	ReadConfig32(off uint16) (uint32, error)
	WriteConfig8(off uint16, val uint8) error
	WriteConfig32(off uint16, val uint32) error
}

// Device drives the VL805's internal SPI engine over the config space
// indirect register window. A Device exclusively owns its ConfigIO between
// Init and Shutdown. Methods serialize on an internal mutex; the two-step
// indirect addressing protocol is not safe under interleaving so a single
// handle must never be driven from two goroutines at once.
type Device struct {
	mu            sync.Mutex
	bus           ConfigIO
	logger        *slog.Logger
	clockDiv      uint32
	fwVersion     uint32
	initialized   bool
	_traceenabled bool
}

type Config struct {
	Logger *slog.Logger
	// ClockDiv overrides the SPI clock divider programmed during bring-up.
	// Zero selects the captured default of 0x0a.
	ClockDiv uint32
}

// New returns a Device that will drive the bridge reachable through bus.
// Call Init before issuing SPI commands.
func New(bus ConfigIO) *Device {
	return &Device{bus: bus}
}

// Init switches the controller into pass-through SPI mode by replaying a
// fixed register script captured from the vendor flash tool. Several of the
// registers and bits touched here have unconfirmed meaning; the sequence is
// replicated bit-for-bit rather than derived from documentation.
func (d *Device) Init(cfg Config) (err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.logger = cfg.Logger
	d._traceenabled = d.logger != nil && d.logger.Handler().Enabled(context.Background(), levelTrace)
	d.clockDiv = cfg.ClockDiv
	if d.clockDiv == 0 {
		d.clockDiv = defaultClockDiv
	}
	d.info("Init:start")
	start := time.Now()

	err = d.programmerActive(true)
	if err != nil {
		return errjoin(errors.New("failed to activate programmer"), err)
	}
	d.fwVersion, err = d.bus.ReadConfig32(cfgFirmwareVersion)
	if err != nil {
		return err
	}
	d.info("firmware version", slog.String("version", hex32(d.fwVersion)))
	err = d.programmerActive(false)
	if err != nil {
		return err
	}

	// Init sequence replay, copied from the logs.
	err = d.programmerActive(true)
	if err != nil {
		return err
	}
	err = d.setreg(RegChipEnableLevel, csInactive)
	if err != nil {
		return err
	}
	val, err := d.getreg(RegWriteBufEnable)
	if err != nil {
		return err
	}
	err = d.setreg(RegWriteBufEnable, (val&0xffffff00)|0x01)
	if err != nil {
		return err
	}
	val, err = d.getreg(RegStopPolling)
	if err != nil {
		return err
	}
	err = d.setreg(RegStopPolling, (val&0xffffff00)|0x01)
	if err != nil {
		return err
	}
	// The logs send 4 bytes of unspecified content to the flash chip here.
	err = d.setreg(RegSPITransaction, transactionCmd(windowSize))
	if err != nil {
		return err
	}
	err = d.setreg(RegClockDiv, d.clockDiv)
	if err != nil {
		return err
	}
	// Active off/on, as captured. Meaning unconfirmed.
	err = d.programmerActive(false)
	if err != nil {
		return err
	}
	err = d.programmerActive(true)
	if err != nil {
		return err
	}

	d.initialized = true
	d.info("Init:done", slog.Duration("took", time.Since(start)))
	return nil
}

// Shutdown deasserts the programmer-active bit, returning the SPI engine to
// the controller's own firmware, and closes the underlying transport if it
// is closeable. The Device must not be used afterwards without a new Init.
func (d *Device) Shutdown() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	err := d.programmerActive(false)
	d.initialized = false
	if c, ok := d.bus.(io.Closer); ok {
		err = errjoin(err, c.Close())
	}
	d.info("Shutdown", slog.Any("err", err))
	return err
}

// FirmwareVersion reports the controller firmware version read during Init.
// Informational only.
func (d *Device) FirmwareVersion() uint32 { return d.fwVersion }

// MaxDataRead is the maximum read size of one SPI command, excluding
// opcode and address bytes.
func (d *Device) MaxDataRead() int { return maxDataRead }

// MaxDataWrite is the maximum write size of one SPI command, excluding
// opcode and address bytes.
func (d *Device) MaxDataWrite() int { return maxDataWrite }

// Supports4BA reports whether the master passes 4-byte addressing commands
// through unmodified. The chunker is length-agnostic so it does.
func (d *Device) Supports4BA() bool { return true }

// programmerActive toggles host ownership of the SPI engine.
func (d *Device) programmerActive(b bool) error {
	var val uint8
	if b {
		val = 0x01
	}
	d.trace("programmerActive", slog.Bool("active", b))
	return d.bus.WriteConfig8(cfgProgrammerActive, val)
}

func (d *Device) acquire() error {
	d.mu.Lock()
	if !d.initialized {
		return errUninitialized
	}
	return nil
}

func (d *Device) release() {
	d.mu.Unlock()
}

func errjoin(errs ...error) error {
	return errors.Join(errs...)
}
