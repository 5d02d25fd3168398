// Package evt decodes the HCI event parameters this host consumes [Vol 4, Part E, 7.7].
// Every accessor has a WErr form reporting truncated events; the plain form returns a
// default instead.
package evt

// Event codes.
const (
	CommandCompleteCode = 0x0E
	CommandStatusCode   = 0x0F
	HardwareErrorCode   = 0x10
	LEMetaCode          = 0x3E
	VendorCode          = 0xFF
)

// HeaderLength is the size of the event header: code and parameter length.
const HeaderLength = 2

// CommandComplete is the parameters of a Command Complete event [Vol 4, Part E, 7.7.14].
type CommandComplete []byte

func (e CommandComplete) NumHCICommandPackets() uint8 {
	v, _ := e.NumHCICommandPacketsWErr()
	return v
}

func (e CommandComplete) CommandOpcode() uint16 {
	v, _ := e.CommandOpcodeWErr()
	return v
}

func (e CommandComplete) ReturnParameters() []byte {
	v, _ := e.ReturnParametersWErr()
	return v
}

// Status is the first return parameter, 0xFF when absent.
func (e CommandComplete) Status() uint8 {
	v, _ := e.StatusWErr()
	return v
}

// Valid reports whether the event carries an opcode and a status.
func (e CommandComplete) Valid() bool {
	_, err := e.StatusWErr()
	return err == nil
}

// CommandStatus is the parameters of a Command Status event [Vol 4, Part E, 7.7.15].
type CommandStatus []byte

func (e CommandStatus) Status() uint8 {
	v, _ := e.StatusWErr()
	return v
}

func (e CommandStatus) NumHCICommandPackets() uint8 {
	v, _ := e.NumHCICommandPacketsWErr()
	return v
}

func (e CommandStatus) CommandOpcode() uint16 {
	v, _ := e.CommandOpcodeWErr()
	return v
}

func (e CommandStatus) Valid() bool {
	return len(e) == 4
}

// HardwareError is the parameters of a Hardware Error event [Vol 4, Part E, 7.7.16].
type HardwareError []byte

func (e HardwareError) HardwareCode() uint8 {
	v, _ := e.HardwareCodeWErr()
	return v
}
