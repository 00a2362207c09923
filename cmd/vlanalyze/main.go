// vlanalyze decodes Saleae digital captures of the SPI bus between the
// VL805 and its boot flash into flash commands. Useful to verify that the
// indirect register window chunking shifts out exactly the bytes a logical
// command contains, with one chip-select bracket per command.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/soypat/saleae"
	"github.com/soypat/saleae/analyzers"
)

type BusCtl struct {
	MaxData      int
	OmitReadData bool
	OmitData     bool
}

func main() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "vlanalyze - Process binary Saleae digital data files of VL805 flash bus transactions.\n\tUsage:\n")
		flag.PrintDefaults()
	}
	mosi := flag.String("f-mosi", "digital_0.bin", "Input filename: SPI MOSI data.")
	miso := flag.String("f-miso", "digital_1.bin", "Input filename: SPI MISO data.")
	clk := flag.String("f-clk", "digital_2.bin", "Input filename: SPI clock.")
	enable := flag.String("f-cs", "digital_3.bin", "Input filename: SPI CS.")
	output := flag.String("o-cmd", "commands.txt", "Output filename of decoded flash commands.")
	maxData := flag.Int("max-data", 32, "Truncate printed data to this many bytes. 0 prints all.")
	omitReadData := flag.Bool("omit-read-data", false, "Choose to omit response data in output.")
	omitData := flag.Bool("omit-data", false, "Print command framing only, no data bytes.")
	flag.Parse()

	bus := BusCtl{
		MaxData:      *maxData,
		OmitReadData: *omitReadData,
		OmitData:     *omitData,
	}
	start := time.Now()
	if err := bus.run(*mosi, *miso, *clk, *enable, *output); err != nil {
		log.Fatal(err.Error())
	}
	log.Println("finished in", time.Since(start))
}

func (bus *BusCtl) run(fmosi, fmiso, fclk, fenable, output string) error {
	mosi, err := opendigital(fmosi)
	if err != nil {
		return err
	}
	miso, err := opendigital(fmiso)
	if err != nil {
		return err
	}
	clk, err := opendigital(fclk)
	if err != nil {
		return err
	}
	enable, err := opendigital(fenable)
	if err != nil {
		return err
	}
	spi := analyzers.SPI{}
	txs, _ := spi.Scan(clk, enable, mosi, miso)

	fp, err := os.Create(output)
	if err != nil {
		return err
	}
	defer fp.Close()

	for i, tx := range txs {
		cmd := CommandFromBytes(tx.SDO)
		fmt.Fprintf(fp, "tx%4d t=%f %s", i, tx.StartTime(), cmd.String())
		if !bus.OmitData {
			data := tx.SDO[cmd.Skip:]
			if bus.MaxData > 0 && len(data) > bus.MaxData {
				data = data[:bus.MaxData]
			}
			fmt.Fprintf(fp, " mosi=%#x", data)
			if !bus.OmitReadData && len(tx.SDI) > cmd.Skip {
				resp := tx.SDI[cmd.Skip:]
				if bus.MaxData > 0 && len(resp) > bus.MaxData {
					resp = resp[:bus.MaxData]
				}
				fmt.Fprintf(fp, " miso=%#x", resp)
			}
		}
		fmt.Fprintln(fp)
	}
	return nil
}

func opendigital(filename string) (*saleae.DigitalFile, error) {
	fp, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer fp.Close()
	df, err := saleae.ReadDigitalFile(fp)
	if err != nil {
		return nil, err
	}
	return df, nil
}

// FlashCmd is one decoded chip-select bracket on the flash bus.
type FlashCmd struct {
	Op   byte
	Name string
	Addr uint32
	// Skip is the number of framing bytes (opcode+address) before data.
	Skip int
}

func (cmd *FlashCmd) String() string {
	if cmd.Skip > 1 {
		return fmt.Sprintf("op=%#02x %-12s addr=%#06x", cmd.Op, cmd.Name, cmd.Addr)
	}
	return fmt.Sprintf("op=%#02x %-12s", cmd.Op, cmd.Name)
}

// opcodeNames covers the common serial NOR command set. Unknown opcodes
// print raw.
var opcodeNames = map[byte]string{
	0x01: "wrsr",
	0x02: "page-program",
	0x03: "read",
	0x04: "wrdi",
	0x05: "rdsr",
	0x06: "wren",
	0x0b: "fast-read",
	0x12: "pp-4ba",
	0x13: "read-4ba",
	0x20: "sector-erase",
	0x21: "se-4ba",
	0x5a: "sfdp-read",
	0x9f: "rdid",
	0xab: "release-pd",
	0xb7: "en4b",
	0xc7: "chip-erase",
	0xd8: "block-erase",
	0xe9: "ex4b",
}

// addressedOps maps opcodes carrying an address to their address width.
var addressedOps = map[byte]int{
	0x02: 3, 0x03: 3, 0x0b: 3, 0x20: 3, 0x5a: 3, 0xd8: 3,
	0x12: 4, 0x13: 4, 0x21: 4,
}

func CommandFromBytes(b []byte) (cmd FlashCmd) {
	if len(b) == 0 {
		cmd.Name = "empty"
		return cmd
	}
	cmd.Op = b[0]
	cmd.Skip = 1
	cmd.Name = opcodeNames[cmd.Op]
	if cmd.Name == "" {
		cmd.Name = "unknown"
	}
	if alen, ok := addressedOps[cmd.Op]; ok && len(b) > alen {
		for _, ab := range b[1 : 1+alen] {
			cmd.Addr = cmd.Addr<<8 | uint32(ab)
		}
		cmd.Skip = 1 + alen
	}
	return cmd
}
