package vl805

import "log/slog"

// Transfer executes one logical SPI command against the flash chip: shift
// out all of w, then shift r full of response bytes, under a single
// chip-select bracket. Either slice may be empty; a fully empty command
// still toggles chip-select and is not an error.
//
// The engine exchanges exactly one window of up to 4 bytes per transaction
// trigger regardless of logical boundaries, so the command is walked in
// 4-byte windows. Remaining write and read counts are tracked independently
// of the window index because a single window may straddle the write-to-read
// transition: trailing write bytes and leading read bytes share the boundary
// window, write bytes always occupying capacity first.
func (d *Device) Transfer(w, r []byte) (err error) {
	err = d.acquire()
	defer d.release()
	if err != nil {
		return err
	}
	if d._traceenabled {
		d.trace("Transfer:start", slog.Int("writecnt", len(w)), slog.Int("readcnt", len(r)))
	}
	return d.transfer(w, r)
}

// WriteThenRead is Transfer under the name flash chip libraries expect.
func (d *Device) WriteThenRead(w, r []byte) error {
	return d.Transfer(w, r)
}

func (d *Device) transfer(w, r []byte) (err error) {
	err = d.setreg(RegChipEnableLevel, csActive)
	if err != nil {
		return err
	}
	// Deassert chip-select on every exit path. Bailing out mid-command with
	// the chip still selected would wedge the flash until the next command.
	defer func() {
		errCS := d.setreg(RegChipEnableLevel, csInactive)
		if err == nil {
			err = errCS
		}
	}()

	total := len(w) + len(r)
	writesLeft := len(w)
	readsLeft := len(r)
	readPos := 0
	for j := 0; j < total; j += windowSize {
		curTotal := min(windowSize, total-j)
		curWrite := min(windowSize, writesLeft)
		curRead := min(windowSize-curWrite, readsLeft)

		out := packOutWord(w[len(w)-writesLeft:][:curWrite], curTotal)
		writesLeft -= curWrite
		err = d.setreg(RegSPIOutdata, out)
		if err != nil {
			return err
		}
		err = d.setreg(RegSPITransaction, transactionCmd(curTotal))
		if err != nil {
			return err
		}
		// The response word is read back even for pure-write windows; the
		// engine expects the full exchange per trigger.
		var in uint32
		in, err = d.getreg(RegSPIIndata)
		if err != nil {
			return err
		}
		unpackInWord(in, r[readPos:readPos+curRead])
		readPos += curRead
		readsLeft -= curRead
	}
	return nil
}
