// Package sysex encodes and decodes Roland System Exclusive messages with
// 4-byte model ids and addresses.
package sysex

import (
	"errors"
	"fmt"
)

const (
	sysExStart     = 0xF0
	sysExEnd       = 0xF7
	manufacturerID = 0x41

	// headerLen covers F0, manufacturer, device, model, command and address.
	headerLen = 1 + 1 + 1 + 4 + 1 + 4
	// minLen is a message without data: header, checksum and F7.
	minLen = headerLen + 2
)

// Commands.
const (
	CommandRQ1 = 0x11
	CommandDT1 = 0x12
)

const (
	// DefaultDeviceID addresses a unit left at its factory device id.
	DefaultDeviceID = 0x10
	// BroadcastDeviceID is accepted by every unit.
	BroadcastDeviceID = 0x7F
)

// ModelJDXi is the model id of the JD-Xi.
var ModelJDXi = [4]byte{0x00, 0x00, 0x00, 0x0E}

var (
	// ErrInvalidMessage reports a byte outside 0-127 or a device id outside
	// 0x10-0x1F and 0x7F.
	ErrInvalidMessage = errors.New("invalid sysex message")
	// ErrChecksumMismatch reports a parsed message whose trailing checksum
	// disagrees with its address and data.
	ErrChecksumMismatch = errors.New("sysex checksum mismatch")

	ErrFraming      = fmt.Errorf("%w: not framed by F0 and F7", ErrInvalidMessage)
	ErrManufacturer = fmt.Errorf("%w: not a Roland message", ErrInvalidMessage)
	ErrTooShort     = fmt.Errorf("%w: too short", ErrInvalidMessage)
)

// Message is one Roland SysEx message.
type Message struct {
	DeviceID byte
	ModelID  [4]byte
	Command  byte
	Address  [4]byte
	Data     []byte
}

// Build validates the fields and returns the message.
func Build(deviceID byte, modelID [4]byte, command byte, address [4]byte, data []byte) (*Message, error) {
	if !validDevice(deviceID) {
		return nil, fmt.Errorf("%w: device id %02X", ErrInvalidMessage, deviceID)
	}
	if command > 0x7F {
		return nil, fmt.Errorf("%w: command %02X", ErrInvalidMessage, command)
	}
	if i := firstHighByte(modelID[:]); i >= 0 {
		return nil, fmt.Errorf("%w: model id byte %d is %02X", ErrInvalidMessage, i, modelID[i])
	}
	if i := firstHighByte(address[:]); i >= 0 {
		return nil, fmt.Errorf("%w: address byte %d is %02X", ErrInvalidMessage, i, address[i])
	}
	if i := firstHighByte(data); i >= 0 {
		return nil, fmt.Errorf("%w: data byte %d is %02X", ErrInvalidMessage, i, data[i])
	}
	return &Message{
		DeviceID: deviceID,
		ModelID:  modelID,
		Command:  command,
		Address:  address,
		Data:     append([]byte(nil), data...),
	}, nil
}

func validDevice(id byte) bool {
	return (id >= 0x10 && id <= 0x1F) || id == BroadcastDeviceID
}

func firstHighByte(b []byte) int {
	for i, v := range b {
		if v > 0x7F {
			return i
		}
	}
	return -1
}

// Checksum returns the Roland checksum of address and data: the value that
// brings their sum to a multiple of 128.
func Checksum(address [4]byte, data []byte) byte {
	sum := 0
	for _, b := range address {
		sum += int(b)
	}
	for _, b := range data {
		sum += int(b)
	}
	return byte((128 - sum%128) % 128)
}

// Bytes returns the wire form of the message.
func (m *Message) Bytes() []byte {
	out := make([]byte, 0, minLen+len(m.Data))
	out = append(out, sysExStart, manufacturerID, m.DeviceID)
	out = append(out, m.ModelID[:]...)
	out = append(out, m.Command)
	out = append(out, m.Address[:]...)
	out = append(out, m.Data...)
	out = append(out, Checksum(m.Address, m.Data), sysExEnd)
	return out
}

func (m *Message) String() string {
	return fmt.Sprintf("dev=%02X model=% X cmd=%02X addr=% X data=% X", m.DeviceID, m.ModelID, m.Command, m.Address, m.Data)
}

// Parse decodes a complete F0...F7 frame.
func Parse(buf []byte) (*Message, error) {
	switch {
	case len(buf) < 2 || buf[0] != sysExStart || buf[len(buf)-1] != sysExEnd:
		return nil, ErrFraming
	case buf[1] != manufacturerID:
		return nil, fmt.Errorf("%w: manufacturer %02X", ErrManufacturer, buf[1])
	case len(buf) < minLen:
		return nil, fmt.Errorf("%w: %d bytes", ErrTooShort, len(buf))
	}

	var model, addr [4]byte
	copy(model[:], buf[3:7])
	command := buf[7]
	copy(addr[:], buf[8:12])
	data := buf[headerLen : len(buf)-2]

	want := Checksum(addr, data)
	if got := buf[len(buf)-2]; got != want {
		return nil, fmt.Errorf("%w: calculated=%02X, got=%02X", ErrChecksumMismatch, want, got)
	}
	return Build(buf[2], model, command, addr, data)
}
