package boot

import "fmt"

// HAB status codes returned by the ROM's get-status command. More are
// defined depending on the part and installed bootloader; these cover
// the i.MX25-class ROMs.
const (
	// Successful operation complete.
	HABPassed uint32 = 0xF0F0F0F0
	// Failure not matching any other description.
	HABFailure uint32 = 0x39393939
	// Data specified is out of bounds.
	HABDataOutOfBounds uint32 = 0x8D8D8D8D
	// Error during assert verification.
	HABFailAssert uint32 = 0x55555555
	// Write operation to register failed.
	HABInvalidWriteReg uint32 = 0x66666666
)

// BootProtocolComplete is the status returned after a write-file
// request of an application image completes and the ROM is ready to
// transfer control.
const BootProtocolComplete uint32 = 0x88888888

var statusText = map[uint32]string{
	HABPassed:          "successful operation complete",
	HABFailure:         "failure not matching any other description",
	HABDataOutOfBounds: "data specified is out of bounds",
	HABFailAssert:      "error during assert verification",
	HABInvalidWriteReg: "write operation to register failed",
}

// StatusString returns the description for a HAB status code.
func StatusString(code uint32) string {
	if s, ok := statusText[code]; ok {
		return s
	}
	return fmt.Sprintf("unknown code 0x%08x", code)
}
