package slcan

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/albenik/bcd"
)

/*
Bit 0 CAN receive FIFO queue full
Bit 1 CAN transmit FIFO queue full
Bit 2 Error warning (EI), see SJA1000 datasheet
Bit 3 Data Overrun (DOI), see SJA1000 datasheet
Bit 4 Not used.
Bit 5 Error Passive (EPI), see SJA1000 datasheet
Bit 6 Arbitration Lost (ALI), see SJA1000 datasheet
Bit 7 Bus Error (BEI), see SJA1000 datasheet
*/
var statusBits = [8]string{
	"CAN receive FIFO queue full",
	"CAN transmit FIFO queue full",
	"error warning (EI)",
	"data overrun (DOI)",
	"",
	"error passive (EPI)",
	"arbitration lost (ALI)",
	"bus error (BEI)",
}

// decodeStatus turns an "Fxx" reply into one error per raised flag.
func decodeStatus(rec []byte) []error {
	if len(rec) != 3 {
		return []error{fmt.Errorf("malformed status reply %q", rec)}
	}
	var b [1]byte
	if _, err := hex.Decode(b[:], rec[1:3]); err != nil {
		return []error{fmt.Errorf("malformed status reply %q: %v", rec, err)}
	}
	var out []error
	for bit, text := range statusBits {
		if text != "" && b[0]&(1<<bit) != 0 {
			out = append(out, errors.New(text))
		}
	}
	return out
}

// decodeVersion reads a "Vhhss" reply. Both fields are packed BCD.
func decodeVersion(rec []byte) (hw, sw uint8, err error) {
	if len(rec) != 5 {
		return 0, 0, fmt.Errorf("malformed version reply %q", rec)
	}
	var b [2]byte
	if _, err := hex.Decode(b[:], rec[1:5]); err != nil {
		return 0, 0, fmt.Errorf("malformed version reply %q: %v", rec, err)
	}
	return bcd.ToUint8(b[0]), bcd.ToUint8(b[1]), nil
}
