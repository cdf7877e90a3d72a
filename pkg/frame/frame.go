package frame

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/fatih/color"
)

// MaxStdID is the largest 11-bit identifier.
const MaxStdID = 0x7FF

// MaxDLC is the largest classic CAN payload length.
const MaxDLC = 8

var (
	ErrIdentifier = errors.New("identifier out of range")
	ErrLength     = errors.New("data length out of range")
)

// Frame is a classic CAN frame with a standard identifier.
type Frame struct {
	ID   uint32
	DLC  uint8
	RTR  bool
	Data [8]byte
}

// New builds a frame from id and up to eight payload bytes. Extra bytes are
// ignored, use Validate on frames built by hand.
func New(id uint32, data ...byte) Frame {
	f := Frame{ID: id}
	n := copy(f.Data[:], data)
	f.DLC = uint8(n)
	return f
}

// Validate reports whether the identifier and length fit a classic frame.
func (f Frame) Validate() error {
	if f.ID > MaxStdID {
		return fmt.Errorf("%w: 0x%X", ErrIdentifier, f.ID)
	}
	if f.DLC > MaxDLC {
		return fmt.Errorf("%w: %d", ErrLength, f.DLC)
	}
	return nil
}

// Payload returns the used part of Data.
func (f *Frame) Payload() []byte {
	n := int(f.DLC)
	if n > MaxDLC {
		n = MaxDLC
	}
	return f.Data[:n]
}

func (f Frame) String() string {
	var out strings.Builder
	fmt.Fprintf(&out, "0x%03X [%d]", f.ID, f.DLC)
	if f.RTR {
		out.WriteString(" RTR")
		return out.String()
	}
	for _, b := range f.Payload() {
		fmt.Fprintf(&out, " %02X", b)
	}
	return out.String()
}

var (
	blue  = color.New(color.FgHiBlue).SprintfFunc()
	red   = color.New(color.FgRed).SprintfFunc()
	green = color.New(color.FgGreen).SprintfFunc()
)

var printable = regexp.MustCompile("[^A-Za-z0-9.,!?]+")

// ColorString renders identifier, hex, binary and printable views for a
// terminal.
func (f Frame) ColorString() string {
	data := f.Payload()
	var out strings.Builder
	out.WriteString(green("0x%03X", f.ID) + " || ")

	var hexView strings.Builder
	for i, b := range data {
		hexView.WriteString(fmt.Sprintf("%02X", b))
		if i != len(data)-1 {
			hexView.WriteString(" ")
		}
	}
	out.WriteString(fmt.Sprintf("%-23s", hexView.String()))
	out.WriteString(" || ")

	var binView strings.Builder
	for i, b := range data {
		binView.WriteString(fmt.Sprintf("%08b", b))
		if i != len(data)-1 {
			binView.WriteString(" ")
		}
	}
	out.WriteString(red(fmt.Sprintf("%-71s", binView.String())))
	out.WriteString(" || ")
	out.WriteString(blue("%8s", printable.ReplaceAllString(string(data), ".")))
	return out.String()
}
