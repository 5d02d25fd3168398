package cmd

const ogfLE = 0x08

// LESetRandomAddress implements LE Set Random Address (0x08|0x0005) [Vol 4, Part E, 7.8.4]
type LESetRandomAddress struct {
	RandomAddress [6]byte
}

func (c *LESetRandomAddress) String() string { return "LE Set Random Address (0x08|0x0005)" }

// OpCode returns the opcode of the command.
func (c *LESetRandomAddress) OpCode() int { return OpCode(ogfLE, 0x0005) }

// Len returns the length of the command.
func (c *LESetRandomAddress) Len() int { return 6 }

// Marshal serializes the command parameters into binary form.
func (c *LESetRandomAddress) Marshal(b []byte) error { return marshal(c, b) }

// LEReadFilterAcceptListSize implements LE Read Filter Accept List Size (0x08|0x000F) [Vol 4, Part E, 7.8.14]
type LEReadFilterAcceptListSize struct{}

func (c *LEReadFilterAcceptListSize) String() string {
	return "LE Read Filter Accept List Size (0x08|0x000F)"
}

// OpCode returns the opcode of the command.
func (c *LEReadFilterAcceptListSize) OpCode() int { return OpCode(ogfLE, 0x000F) }

// Len returns the length of the command.
func (c *LEReadFilterAcceptListSize) Len() int { return 0 }

// Marshal serializes the command parameters into binary form.
func (c *LEReadFilterAcceptListSize) Marshal(b []byte) error { return nil }

// LEReadFilterAcceptListSizeRP returns the return parameter of LE Read Filter Accept List Size
type LEReadFilterAcceptListSizeRP struct {
	Status               uint8
	FilterAcceptListSize uint8
}

// Unmarshal de-serializes the binary data and stores the result in the receiver.
func (c *LEReadFilterAcceptListSizeRP) Unmarshal(b []byte) error { return unmarshal(c, b) }

// LEClearFilterAcceptList implements LE Clear Filter Accept List (0x08|0x0010) [Vol 4, Part E, 7.8.15]
type LEClearFilterAcceptList struct{}

func (c *LEClearFilterAcceptList) String() string { return "LE Clear Filter Accept List (0x08|0x0010)" }

// OpCode returns the opcode of the command.
func (c *LEClearFilterAcceptList) OpCode() int { return OpCode(ogfLE, 0x0010) }

// Len returns the length of the command.
func (c *LEClearFilterAcceptList) Len() int { return 0 }

// Marshal serializes the command parameters into binary form.
func (c *LEClearFilterAcceptList) Marshal(b []byte) error { return nil }

// LEAddDeviceToFilterAcceptList implements LE Add Device To Filter Accept List (0x08|0x0011) [Vol 4, Part E, 7.8.16]
type LEAddDeviceToFilterAcceptList struct {
	AddressType uint8
	Address     [6]byte
}

func (c *LEAddDeviceToFilterAcceptList) String() string {
	return "LE Add Device To Filter Accept List (0x08|0x0011)"
}

// OpCode returns the opcode of the command.
func (c *LEAddDeviceToFilterAcceptList) OpCode() int { return OpCode(ogfLE, 0x0011) }

// Len returns the length of the command.
func (c *LEAddDeviceToFilterAcceptList) Len() int { return 7 }

// Marshal serializes the command parameters into binary form.
func (c *LEAddDeviceToFilterAcceptList) Marshal(b []byte) error { return marshal(c, b) }

// LERemoveDeviceFromFilterAcceptList implements LE Remove Device From Filter Accept List (0x08|0x0012) [Vol 4, Part E, 7.8.17]
type LERemoveDeviceFromFilterAcceptList struct {
	AddressType uint8
	Address     [6]byte
}

func (c *LERemoveDeviceFromFilterAcceptList) String() string {
	return "LE Remove Device From Filter Accept List (0x08|0x0012)"
}

// OpCode returns the opcode of the command.
func (c *LERemoveDeviceFromFilterAcceptList) OpCode() int { return OpCode(ogfLE, 0x0012) }

// Len returns the length of the command.
func (c *LERemoveDeviceFromFilterAcceptList) Len() int { return 7 }

// Marshal serializes the command parameters into binary form.
func (c *LERemoveDeviceFromFilterAcceptList) Marshal(b []byte) error { return marshal(c, b) }

// LEAddDeviceToResolvingList implements LE Add Device To Resolving List (0x08|0x0027) [Vol 4, Part E, 7.8.38]
type LEAddDeviceToResolvingList struct {
	PeerIdentityAddressType uint8
	PeerIdentityAddress     [6]byte
	PeerIRK                 [16]byte
	LocalIRK                [16]byte
}

func (c *LEAddDeviceToResolvingList) String() string {
	return "LE Add Device To Resolving List (0x08|0x0027)"
}

// OpCode returns the opcode of the command.
func (c *LEAddDeviceToResolvingList) OpCode() int { return OpCode(ogfLE, 0x0027) }

// Len returns the length of the command.
func (c *LEAddDeviceToResolvingList) Len() int { return 39 }

// Marshal serializes the command parameters into binary form.
func (c *LEAddDeviceToResolvingList) Marshal(b []byte) error { return marshal(c, b) }

// LERemoveDeviceFromResolvingList implements LE Remove Device From Resolving List (0x08|0x0028) [Vol 4, Part E, 7.8.39]
type LERemoveDeviceFromResolvingList struct {
	PeerIdentityAddressType uint8
	PeerIdentityAddress     [6]byte
}

func (c *LERemoveDeviceFromResolvingList) String() string {
	return "LE Remove Device From Resolving List (0x08|0x0028)"
}

// OpCode returns the opcode of the command.
func (c *LERemoveDeviceFromResolvingList) OpCode() int { return OpCode(ogfLE, 0x0028) }

// Len returns the length of the command.
func (c *LERemoveDeviceFromResolvingList) Len() int { return 7 }

// Marshal serializes the command parameters into binary form.
func (c *LERemoveDeviceFromResolvingList) Marshal(b []byte) error { return marshal(c, b) }

// LEClearResolvingList implements LE Clear Resolving List (0x08|0x0029) [Vol 4, Part E, 7.8.40]
type LEClearResolvingList struct{}

func (c *LEClearResolvingList) String() string { return "LE Clear Resolving List (0x08|0x0029)" }

// OpCode returns the opcode of the command.
func (c *LEClearResolvingList) OpCode() int { return OpCode(ogfLE, 0x0029) }

// Len returns the length of the command.
func (c *LEClearResolvingList) Len() int { return 0 }

// Marshal serializes the command parameters into binary form.
func (c *LEClearResolvingList) Marshal(b []byte) error { return nil }

// LEReadResolvingListSize implements LE Read Resolving List Size (0x08|0x002A) [Vol 4, Part E, 7.8.41]
type LEReadResolvingListSize struct{}

func (c *LEReadResolvingListSize) String() string { return "LE Read Resolving List Size (0x08|0x002A)" }

// OpCode returns the opcode of the command.
func (c *LEReadResolvingListSize) OpCode() int { return OpCode(ogfLE, 0x002A) }

// Len returns the length of the command.
func (c *LEReadResolvingListSize) Len() int { return 0 }

// Marshal serializes the command parameters into binary form.
func (c *LEReadResolvingListSize) Marshal(b []byte) error { return nil }

// LEReadResolvingListSizeRP returns the return parameter of LE Read Resolving List Size
type LEReadResolvingListSizeRP struct {
	Status            uint8
	ResolvingListSize uint8
}

// Unmarshal de-serializes the binary data and stores the result in the receiver.
func (c *LEReadResolvingListSizeRP) Unmarshal(b []byte) error { return unmarshal(c, b) }
