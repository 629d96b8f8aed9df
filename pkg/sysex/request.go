package sysex

// Address packs v into four 7-bit bytes, most significant first. Bits above
// the 28th are dropped.
func Address(v uint32) [4]byte {
	return [4]byte{
		byte(v>>21) & 0x7F,
		byte(v>>14) & 0x7F,
		byte(v>>7) & 0x7F,
		byte(v) & 0x7F,
	}
}

// AddressValue is the inverse of Address.
func AddressValue(a [4]byte) uint32 {
	return uint32(a[0]&0x7F)<<21 | uint32(a[1]&0x7F)<<14 | uint32(a[2]&0x7F)<<7 | uint32(a[3]&0x7F)
}

// Offset returns the address n 7-bit steps after a.
func Offset(a [4]byte, n uint32) [4]byte {
	return Address(AddressValue(a) + n)
}

// DataSet returns a DT1 message writing data at addr.
func DataSet(deviceID byte, modelID [4]byte, addr [4]byte, data ...byte) (*Message, error) {
	return Build(deviceID, modelID, CommandDT1, addr, data)
}

// DataRequest returns an RQ1 message asking for size bytes from addr.
func DataRequest(deviceID byte, modelID [4]byte, addr [4]byte, size uint32) (*Message, error) {
	s := Address(size)
	return Build(deviceID, modelID, CommandRQ1, addr, s[:])
}
