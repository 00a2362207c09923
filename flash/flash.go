// Package flash speaks the common serial NOR flash command set (JEDEC
// SPI flash: RDID probe, read, page program, sector erase) over any SPI
// master that can execute write-then-read commands, such as vl805.Device.
// It owns opcode framing and addressing mode; the master owns the wire.
package flash

import (
	"context"
	"errors"
	"time"

	"log/slog"

	"golang.org/x/exp/constraints"
)

// Master is the SPI command transport the chip is reached through. Transfer
// shifts out w then shifts len(r) response bytes into r under one
// chip-select bracket.
type Master interface {
	Transfer(w, r []byte) error
	// MaxDataRead and MaxDataWrite bound the data portion of one command,
	// excluding opcode and address bytes.
	MaxDataRead() int
	MaxDataWrite() int
	// Supports4BA reports whether the master passes 4-byte address
	// commands through unmodified.
	Supports4BA() bool
}

// SPI flash opcodes.
const (
	opWriteStatus = 0x01
	opPageProgram = 0x02
	opRead        = 0x03
	opReadStatus  = 0x05
	opWriteEnable = 0x06
	opRead4BA     = 0x13
	opPageProg4BA = 0x12
	opSectorErase = 0x20
	opSectErase4B = 0x21
	opReadJEDECID = 0x9f
	opEnter4BA    = 0xb7
	opChipErase   = 0xc7
	opBlockErase  = 0xd8
)

// Status register bits.
const (
	statusBusy        = 1 << 0 // Write in progress.
	statusWriteEnable = 1 << 1
)

const (
	PageSize   = 256
	SectorSize = 4096
)

// Worst case completion times from common datasheets, padded generously.
const (
	pageProgramTimeout = 50 * time.Millisecond
	sectorEraseTimeout = 2 * time.Second
	chipEraseTimeout   = 300 * time.Second
)

var (
	ErrOutOfRange    = errors.New("flash: address out of range")
	ErrMisaligned    = errors.New("flash: misaligned address")
	ErrNoChip        = errors.New("flash: no chip detected (JEDEC ID all zeros or all ones)")
	errReadyTimeout  = errors.New("flash: timeout waiting for write completion")
	errWriteTooLarge = errors.New("flash: write exceeds master limit")
)

type chipID [3]byte

// knownChips maps JEDEC IDs to marketing names. Capacity is derived from
// the third ID byte (1<<n bytes), which every chip in this table honors.
var knownChips = map[chipID]string{
	{0x20, 0xba, 0x16}: "Micron N25Q032",
	{0xc2, 0x20, 0x17}: "Macronix MX25L6405",
	{0xc2, 0x20, 0x18}: "Macronix MX25L12805",
	{0xef, 0x40, 0x17}: "Winbond W25Q64",
	{0xef, 0x40, 0x18}: "Winbond W25Q128",
	{0xef, 0x70, 0x18}: "Winbond W25Q128JV",
}

// Device is one serial NOR flash chip behind a Master.
type Device struct {
	spi    Master
	logger *slog.Logger
	id     chipID
	name   string
	size   int64
	is4ba  bool
}

type Config struct {
	Logger *slog.Logger
	// Size overrides the capacity derived from the JEDEC ID, for chips
	// that misreport it. Bytes.
	Size int64
}

// New probes the chip's JEDEC ID and returns a Device ready for I/O.
func New(spi Master, cfg Config) (*Device, error) {
	d := &Device{spi: spi, logger: cfg.Logger}
	err := d.spi.Transfer([]byte{opReadJEDECID}, d.id[:])
	if err != nil {
		return nil, err
	}
	if d.id == (chipID{}) || d.id == (chipID{0xff, 0xff, 0xff}) {
		return nil, ErrNoChip
	}
	d.name = knownChips[d.id]
	if d.name == "" {
		d.name = "unknown chip"
	}
	d.size = cfg.Size
	if d.size == 0 && d.id[2] >= 0x10 && d.id[2] <= 0x20 {
		// JEDEC capacity convention: third ID byte is log2 of the size.
		d.size = 1 << d.id[2]
	}
	d.info("flash probe",
		slog.String("id", hexID(d.id)),
		slog.String("name", d.name),
		slog.Int64("size", d.size),
	)
	if d.size > 1<<24 && d.spi.Supports4BA() {
		// Chips above 16 MiB need 4-byte addressing for the upper region.
		err = d.spi.Transfer([]byte{opEnter4BA}, nil)
		if err != nil {
			return nil, err
		}
		d.is4ba = true
	}
	return d, nil
}

// JEDECID returns the 3 identification bytes read during probe.
func (d *Device) JEDECID() [3]byte { return d.id }

func (d *Device) Name() string { return d.name }

// Size returns the chip capacity in bytes, or 0 if it could not be derived.
func (d *Device) Size() int64 { return d.size }

// ReadAt reads len(p) bytes starting at off, splitting into as many read
// commands as the master's read limit requires. Implements io.ReaderAt.
func (d *Device) ReadAt(p []byte, off int64) (n int, err error) {
	if err = d.checkRange(off, len(p)); err != nil {
		return 0, err
	}
	for n < len(p) {
		chunk := min(len(p)-n, d.spi.MaxDataRead())
		cmd := d.addrCmd(opRead, opRead4BA, off+int64(n))
		err = d.spi.Transfer(cmd, p[n:n+chunk])
		if err != nil {
			return n, err
		}
		n += chunk
	}
	return n, nil
}

// ProgramAt programs p starting at off. The destination must have been
// erased beforehand. Writes are split on page boundaries as the chip
// requires and on the master's write limit, each page bracketed by write
// enable and a busy-poll.
func (d *Device) ProgramAt(p []byte, off int64) error {
	if err := d.checkRange(off, len(p)); err != nil {
		return err
	}
	if d.spi.MaxDataWrite() < PageSize {
		return errWriteTooLarge
	}
	for len(p) > 0 {
		pageEnd := alignup(off+1, PageSize)
		chunk := min(int64(len(p)), pageEnd-off)
		err := d.writeEnable()
		if err != nil {
			return err
		}
		cmd := d.addrCmd(opPageProgram, opPageProg4BA, off)
		err = d.spi.Transfer(append(cmd, p[:chunk]...), nil)
		if err != nil {
			return err
		}
		err = d.waitReady(pageProgramTimeout)
		if err != nil {
			return err
		}
		off += chunk
		p = p[chunk:]
	}
	return nil
}

// EraseSector erases the 4 KiB sector at off, which must be sector aligned.
func (d *Device) EraseSector(off int64) error {
	if !isaligned(off, SectorSize) {
		return ErrMisaligned
	}
	if err := d.checkRange(off, SectorSize); err != nil {
		return err
	}
	err := d.writeEnable()
	if err != nil {
		return err
	}
	err = d.spi.Transfer(d.addrCmd(opSectorErase, opSectErase4B, off), nil)
	if err != nil {
		return err
	}
	return d.waitReady(sectorEraseTimeout)
}

// EraseChip erases the entire chip. Slow: minutes on large parts.
func (d *Device) EraseChip() error {
	err := d.writeEnable()
	if err != nil {
		return err
	}
	err = d.spi.Transfer([]byte{opChipErase}, nil)
	if err != nil {
		return err
	}
	return d.waitReady(chipEraseTimeout)
}

// Status reads the chip status register.
func (d *Device) Status() (uint8, error) {
	var sr [1]byte
	err := d.spi.Transfer([]byte{opReadStatus}, sr[:])
	return sr[0], err
}

func (d *Device) writeEnable() error {
	return d.spi.Transfer([]byte{opWriteEnable}, nil)
}

// waitReady polls the status register until the write-in-progress bit
// clears or the deadline passes.
func (d *Device) waitReady(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		sr, err := d.Status()
		if err != nil {
			return err
		}
		if sr&statusBusy == 0 {
			return nil
		}
		if time.Since(deadline) >= 0 {
			return errReadyTimeout
		}
		time.Sleep(500 * time.Microsecond)
	}
}

// addrCmd frames opcode+address, choosing the 4-byte address opcode when
// the chip was switched into 4BA mode.
func (d *Device) addrCmd(op, op4ba byte, addr int64) []byte {
	if d.is4ba {
		return []byte{op4ba, byte(addr >> 24), byte(addr >> 16), byte(addr >> 8), byte(addr)}
	}
	return []byte{op, byte(addr >> 16), byte(addr >> 8), byte(addr)}
}

func (d *Device) checkRange(off int64, n int) error {
	if off < 0 || (d.size != 0 && off+int64(n) > d.size) {
		return ErrOutOfRange
	}
	if d.size == 0 && !d.is4ba && off+int64(n) > 1<<24 {
		return ErrOutOfRange
	}
	return nil
}

func (d *Device) info(msg string, attrs ...slog.Attr) {
	if d.logger != nil {
		d.logger.LogAttrs(context.Background(), slog.LevelInfo, msg, attrs...)
	}
}

func hexID(id chipID) string {
	const hextable = "0123456789abcdef"
	b := make([]byte, 0, 6)
	for _, v := range id {
		b = append(b, hextable[v>>4], hextable[v&0xf])
	}
	return string(b)
}

// alignup rounds `val` up to nearest multiple of `align`. `align` must be a power of 2.
func alignup[T constraints.Integer](val, align T) T {
	return (val + align - 1) &^ (align - 1)
}

// isaligned checks if `val` is wholly divisible by `align`. `align` must be a power of 2.
func isaligned[T constraints.Integer](val, align T) bool {
	return val&(align-1) == 0
}
