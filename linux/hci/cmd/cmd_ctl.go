package cmd

const (
	ogfHostControl = 0x03
	ogfInfoParam   = 0x04
)

// Reset implements Reset (0x03|0x0003) [Vol 4, Part E, 7.3.2]
type Reset struct{}

func (c *Reset) String() string { return "Reset (0x03|0x0003)" }

// OpCode returns the opcode of the command.
func (c *Reset) OpCode() int { return OpCode(ogfHostControl, 0x0003) }

// Len returns the length of the command.
func (c *Reset) Len() int { return 0 }

// Marshal serializes the command parameters into binary form.
func (c *Reset) Marshal(b []byte) error { return nil }

// ResetRP returns the return parameter of Reset
type ResetRP struct {
	Status uint8
}

// Unmarshal de-serializes the binary data and stores the result in the receiver.
func (c *ResetRP) Unmarshal(b []byte) error { return unmarshal(c, b) }

// ReadBDADDR implements Read BD_ADDR (0x04|0x0009) [Vol 4, Part E, 7.4.6]
type ReadBDADDR struct{}

func (c *ReadBDADDR) String() string { return "Read BD_ADDR (0x04|0x0009)" }

// OpCode returns the opcode of the command.
func (c *ReadBDADDR) OpCode() int { return OpCode(ogfInfoParam, 0x0009) }

// Len returns the length of the command.
func (c *ReadBDADDR) Len() int { return 0 }

// Marshal serializes the command parameters into binary form.
func (c *ReadBDADDR) Marshal(b []byte) error { return nil }

// ReadBDADDRRP returns the return parameter of Read BD_ADDR. BDADDR is in controller byte order.
type ReadBDADDRRP struct {
	Status uint8
	BDADDR [6]byte
}

// Unmarshal de-serializes the binary data and stores the result in the receiver.
func (c *ReadBDADDRRP) Unmarshal(b []byte) error { return unmarshal(c, b) }
