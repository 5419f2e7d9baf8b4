package protocol

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

// Packet constructor library for building frames the kettle accepts.
// Byte layouts reproduce captured app traffic exactly; the firmware
// silently ignores frames that deviate.

// Version selects between the two incompatible firmware generations. The
// zero value is the current protocol.
type Version int

const (
	// V1 is the current protocol where every command is acknowledged
	V1 Version = iota
	// V0 is the legacy protocol driven by timed packet choreography
	// (hello5 + setpoint + host-side acks) with no command acknowledgments
	// from the device.
	V0
)

// String returns the version name
func (v Version) String() string {
	if v == V0 {
		return "V0"
	}
	return "V1"
}

// RegistrationKeySize is the wire size of a registration key: 16 random
// bytes rendered as 32 ASCII hex characters.
const RegistrationKeySize = 32

// DefaultRegistrationKey is the key the stock app uses for devices that
// were never explicitly paired.
var DefaultRegistrationKey = []byte("9903e01a3c3baa8f6c71cbb5167e7d5f")

// GenerateRegistrationKey creates a fresh key for pairing. Callers must
// persist it; the device only answers hellos carrying a registered key.
func GenerateRegistrationKey() []byte {
	raw := make([]byte, RegistrationKeySize/2)
	_, _ = rand.Read(raw) // documented to never fail
	key := make([]byte, RegistrationKeySize)
	hex.Encode(key, raw)
	return key
}

// ValidateRegistrationKey checks that a key is 32 lowercase-safe hex
// characters as the firmware expects.
func ValidateRegistrationKey(key []byte) error {
	if len(key) != RegistrationKeySize {
		return fmt.Errorf("registration key must be %d characters, got %d", RegistrationKeySize, len(key))
	}
	if _, err := hex.DecodeString(string(key)); err != nil {
		return fmt.Errorf("registration key must be hex: %w", err)
	}
	return nil
}

// ClampTargetTemp bounds a requested target to the range the firmware
// accepts
func ClampTargetTemp(tempF int) int {
	if tempF < MinTempF {
		return MinTempF
	}
	if tempF > MaxTempF {
		return MaxTempF
	}
	return tempF
}

// BuildMessage builds a MESSAGE frame (0x22): command header plus body
func BuildMessage(seq uint8, cmd Command, body []byte) ([]byte, error) {
	payload := make([]byte, 0, CommandSize+len(body))
	payload = append(payload, cmd[:]...)
	payload = append(payload, body...)
	return BuildFrame(FrameKindMessage, seq, payload)
}

// BuildAck builds an ACK frame (0x12) carrying just a command header. The
// legacy choreography requires the host to ack compact status
// notifications; the device never inspects a body on these.
func BuildAck(seq uint8, cmd Command) ([]byte, error) {
	return BuildFrame(FrameKindAck, seq, cmd[:])
}

// BuildStatusRequest creates a status poll. The device answers with an
// extended status ack on the same sequence number.
//
// Wire bytes for seq 0x41: A5224104007201404000
func BuildStatusRequest(seq uint8) ([]byte, error) {
	return BuildMessage(seq, CmdStatusRequest, nil)
}

// BuildHello creates the registration hello carrying the device key. It is
// the first packet of every session; the kettle ignores all commands until
// it has seen a hello with a key it knows. A nil key falls back to
// DefaultRegistrationKey.
func BuildHello(seq uint8, key []byte) ([]byte, error) {
	if key == nil {
		key = DefaultRegistrationKey
	}
	if err := ValidateRegistrationKey(key); err != nil {
		return nil, err
	}
	return BuildMessage(seq, CmdHello, key)
}

// BuildRegister creates the pairing registration packet that teaches the
// device a new key. The device must be in pairing mode or it ignores the
// packet. A nil key generates a fresh one, but callers who let that happen
// lose the key; pass an explicit key and persist it.
func BuildRegister(seq uint8, key []byte) ([]byte, error) {
	if key == nil {
		key = GenerateRegistrationKey()
	}
	if err := ValidateRegistrationKey(key); err != nil {
		return nil, err
	}
	return BuildMessage(seq, CmdRegister, key)
}

// BuildStart creates the start-heating packet (V1 only).
//
// Body layout:
//
//	[0-1] mode (little-endian)
//	[2]   hold enable (0x01 = keep warm after reaching temperature)
//	[3-4] hold time, big-endian seconds
//
// Wire bytes for seq 0x03, coffee, no hold: A52203090095 01F0A300 0300000000
func BuildStart(seq uint8, mode OperatingMode, enableHold bool, holdSeconds uint16) ([]byte, error) {
	body := make([]byte, 5)
	binary.LittleEndian.PutUint16(body[0:2], uint16(mode))
	if enableHold {
		body[2] = 0x01
	}
	binary.BigEndian.PutUint16(body[3:5], holdSeconds)
	return BuildMessage(seq, CmdStart, body)
}

// BuildDelayStart creates the delayed-start packet (V1 only). Note the
// mixed endianness: delay and hold time are big-endian, mode is
// little-endian, matching BuildStart.
//
// Body layout:
//
//	[0-1] delay until start, big-endian seconds
//	[2-3] mode (little-endian)
//	[4]   hold enable
//	[5-6] hold time, big-endian seconds
func BuildDelayStart(seq uint8, delaySeconds uint16, mode OperatingMode, enableHold bool, holdSeconds uint16) ([]byte, error) {
	body := make([]byte, 7)
	binary.BigEndian.PutUint16(body[0:2], delaySeconds)
	binary.LittleEndian.PutUint16(body[2:4], uint16(mode))
	if enableHold {
		body[4] = 0x01
	}
	binary.BigEndian.PutUint16(body[5:7], holdSeconds)
	return BuildMessage(seq, CmdDelayStart, body)
}

// BuildSetMyTemp creates the custom-temperature packet (V1 only). The
// value becomes the target of a subsequent MyTemp start.
//
// Wire bytes for seq 0x1C, 179°F: A5221C0500CD 01F3A300 B3
func BuildSetMyTemp(seq uint8, tempF int) ([]byte, error) {
	return BuildMessage(seq, CmdSetMyTemp, []byte{byte(tempF)})
}

// BuildStop creates the stop-heating packet for the given protocol version
func BuildStop(seq uint8, version Version) ([]byte, error) {
	if version == V0 {
		return BuildMessage(seq, CmdLegacyStop, nil)
	}
	return BuildMessage(seq, CmdStop, nil)
}

// BuildSetBabyMode creates the baby formula mode toggle (V1 only).
//
// Wire bytes: enable A52225050074 01F5A300 01, disable A5221D05007D 01F5A300 00
func BuildSetBabyMode(seq uint8, enabled bool) ([]byte, error) {
	body := []byte{0x00}
	if enabled {
		body[0] = 0x01
	}
	return BuildMessage(seq, CmdSetBabyMode, body)
}

// BuildHello5 creates the legacy pre-setpoint hello (V0 only). The body is
// a fixed constant from captured traffic; its meaning is unknown but the
// setpoint is ignored without it.
func BuildHello5(seq uint8) ([]byte, error) {
	return BuildMessage(seq, CmdHello5, []byte{0x00, 0x01, 0x10, 0x0E})
}

// BuildSetpoint creates the legacy mode + temperature packet (V0 only).
// The trailing three bytes are fixed in all captures.
//
// Body layout:
//
//	[0] mode  [1] temperature °F  [2-4] constant 01 10 0E
func BuildSetpoint(seq uint8, mode OperatingMode, tempF int) ([]byte, error) {
	return BuildMessage(seq, CmdSetpoint, []byte{byte(mode), byte(tempF), 0x01, 0x10, 0x0E})
}

// BuildStatusAck creates the host-side ack the legacy choreography sends
// after compact status notifications. V0 firmware stalls without them.
func BuildStatusAck(seq uint8) ([]byte, error) {
	return BuildAck(seq, CmdStatusCompact)
}
