package mocan

import "strings"

// ErrorStatus holds the CAN error bits reported up to the protocol stack.
// Bit values follow the CANopen error status word; bus-state bits are not
// reported by message objects and are left out.
type ErrorStatus uint16

const (
	ErrorTxOverflow ErrorStatus = 0x0008
	ErrorPDOLate    ErrorStatus = 0x0080
	ErrorRxOverflow ErrorStatus = 0x0800
)

var errorNames = []struct {
	bit  ErrorStatus
	name string
}{
	{ErrorTxOverflow, "tx overflow"},
	{ErrorPDOLate, "pdo late"},
	{ErrorRxOverflow, "rx overflow"},
}

func (s ErrorStatus) Has(bit ErrorStatus) bool {
	return s&bit != 0
}

func (s ErrorStatus) String() string {
	if s == 0 {
		return "ok"
	}
	var out []string
	for _, n := range errorNames {
		if s.Has(n.bit) {
			out = append(out, n.name)
		}
	}
	return strings.Join(out, ", ")
}
