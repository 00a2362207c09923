package vl805

import "errors"

// PCI identity of the VL805 xHCI controller. The enumeration framework
// matches on (vendor, device); class and name are operator-facing strings.
const (
	VendorID  = 0x1106 // VIA Technologies.
	DeviceID  = 0x3483
	ClassName = "VIA"
	ChipName  = "VL805"
)

// PCI configuration space offsets. The chip tunnels all SPI programmer
// traffic through these four offsets; no BAR mapping is needed at all.
const (
	cfgProgrammerActive = 0x43 // 8 bit. Nonzero grants the host access to the SPI engine.
	cfgFirmwareVersion  = 0x50 // 32 bit, read only.
	cfgRegAddr          = 0x78 // 32 bit. Selects the internal register.
	cfgRegData          = 0x7c // 32 bit. Accesses the selected register.
)

// Register is the address of an internal VL805 register, reached through the
// cfgRegAddr/cfgRegData indirect pair.
type Register uint32

// Internal register addresses captured from vendor flash tool logs. Some have
// unknown purpose and are only touched inside the init sequence replay.
const (
	Reg0x30004         Register = 0x00030004 // Unknown purpose.
	RegStopPolling     Register = 0x0004000c
	RegWriteBufEnable  Register = 0x00040020
	RegSPIOutdata      Register = 0x000400d0
	RegSPIIndata       Register = 0x000400e0
	RegSPITransaction  Register = 0x000400f0
	RegClockDiv        Register = 0x000400f8
	RegChipEnableLevel Register = 0x000400fc
)

func (r Register) String() (s string) {
	switch r {
	case Reg0x30004:
		s = "reg0x30004"
	case RegStopPolling:
		s = "stop_polling"
	case RegWriteBufEnable:
		s = "wb_en"
	case RegSPIOutdata:
		s = "spi_outdata"
	case RegSPIIndata:
		s = "spi_indata"
	case RegSPITransaction:
		s = "spi_transaction"
	case RegClockDiv:
		s = "clk_div"
	case RegChipEnableLevel:
		s = "spi_cs_level"
	default:
		s = "unknown"
	}
	return s
}

// Chip-select is active low: writing 0 to RegChipEnableLevel selects the
// flash chip, writing 1 deselects it.
const (
	csActive   = 0x00000000
	csInactive = 0x00000001
)

// The SPI engine exchanges at most 4 bytes per transaction trigger.
const windowSize = 4

// transactionCmd encodes a trigger word for RegSPITransaction: a fixed opcode
// base with the window byte length in bits 3-5. n must be in [0,4].
func transactionCmd(n int) uint32 {
	return 0x00000580 | uint32(n)<<3
}

// Declared limits of the SPI master, consumed by the flash chip library.
// Excludes opcode+address bytes.
const (
	maxDataRead  = 64 * 1024
	maxDataWrite = 256
)

const defaultClockDiv = 0x0000000a // Captured from logs, units unknown.

var (
	errUninitialized = errors.New("vl805 uninitialized, must call Init")
)
