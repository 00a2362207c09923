//go:build linux

// vl805dbg probes the PCI bus for a VL805, brings its SPI engine up and
// identifies the attached boot flash. Optionally dumps a flash region to a
// file. Requires root for config space writes.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"log/slog"

	"github.com/soypat/vl805"
	"github.com/soypat/vl805/flash"
)

func main() {
	verbose := flag.Bool("v", false, "Debug level logging.")
	trace := flag.Bool("vv", false, "Trace level logging, prints raw register traffic.")
	dump := flag.String("dump", "", "Dump flash contents to this file.")
	offset := flag.Int64("offset", 0, "Flash offset to dump from.")
	length := flag.Int64("n", 0, "Bytes to dump. 0 dumps to end of chip.")
	clkdiv := flag.Uint("clkdiv", 0, "SPI clock divider override. 0 uses the default.")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	if *trace {
		level = slog.LevelDebug - 1
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	dev, err := vl805.Probe()
	if err != nil {
		log.Fatal("probe: ", err)
	}
	err = dev.Init(vl805.Config{Logger: logger, ClockDiv: uint32(*clkdiv)})
	if err != nil {
		log.Fatal("init: ", err)
	}
	defer dev.Shutdown()
	fmt.Printf("%s %s firmware=%#08x\n", vl805.ClassName, vl805.ChipName, dev.FirmwareVersion())

	chip, err := flash.New(dev, flash.Config{Logger: logger})
	if err != nil {
		log.Fatal("flash probe: ", err)
	}
	id := chip.JEDECID()
	fmt.Printf("flash: %s id=%02x%02x%02x size=%d\n", chip.Name(), id[0], id[1], id[2], chip.Size())

	if *dump == "" {
		return
	}
	n := *length
	if n == 0 {
		n = chip.Size() - *offset
	}
	if n <= 0 {
		log.Fatal("nothing to dump: chip size unknown and no -n given")
	}
	buf := make([]byte, n)
	if _, err := chip.ReadAt(buf, *offset); err != nil {
		log.Fatal("read: ", err)
	}
	if err := os.WriteFile(*dump, buf, 0o644); err != nil {
		log.Fatal(err)
	}
	fmt.Printf("dumped %d bytes at offset %#x to %s\n", n, *offset, *dump)
}
