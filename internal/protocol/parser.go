package protocol

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

// CommandSize is the length of the command header at the start of every
// payload
const CommandSize = 4

// Command is the 4-byte header that opens every payload. The bytes are
// [protocol generation][command id][direction tag][0x00]; together with the
// frame kind it selects the payload's semantic shape.
type Command [4]byte

// Known command headers (from captured app traffic)
var (
	CmdStatusRequest = Command{0x01, 0x40, 0x40, 0x00} // Status poll; the same header carries the extended status ack
	CmdStatusCompact = Command{0x01, 0x41, 0x40, 0x00} // Unsolicited compact status notification
	CmdHello         = Command{0x01, 0x81, 0xD1, 0x00} // Registration hello (carries the device key)
	CmdRegister      = Command{0x01, 0x80, 0xD1, 0x00} // Pairing registration (device must be in pairing mode)
	CmdStart         = Command{0x01, 0xF0, 0xA3, 0x00} // Start heating
	CmdDelayStart    = Command{0x01, 0xF1, 0xA3, 0x00} // Delayed start
	CmdSetMyTemp     = Command{0x01, 0xF3, 0xA3, 0x00} // Set custom temperature preset
	CmdStop          = Command{0x01, 0xF4, 0xA3, 0x00} // Stop heating
	CmdSetBabyMode   = Command{0x01, 0xF5, 0xA3, 0x00} // Toggle baby formula mode
	CmdCompletion    = Command{0x01, 0xF7, 0xA3, 0x00} // Heating/hold complete notification
	CmdHello5        = Command{0x00, 0xF2, 0xA3, 0x00} // Legacy pre-setpoint hello
	CmdSetpoint      = Command{0x00, 0xF0, 0xA3, 0x00} // Legacy mode + temperature
	CmdLegacyStop    = Command{0x00, 0xF4, 0xA3, 0x00} // Legacy stop heating
)

// String returns a human-readable command name
func (c Command) String() string {
	switch c {
	case CmdStatusRequest:
		return "StatusRequest"
	case CmdStatusCompact:
		return "StatusCompact"
	case CmdHello:
		return "Hello"
	case CmdRegister:
		return "Register"
	case CmdStart:
		return "Start"
	case CmdDelayStart:
		return "DelayStart"
	case CmdSetMyTemp:
		return "SetMyTemp"
	case CmdStop:
		return "Stop"
	case CmdSetBabyMode:
		return "SetBabyMode"
	case CmdCompletion:
		return "Completion"
	case CmdHello5:
		return "Hello5"
	case CmdSetpoint:
		return "Setpoint"
	case CmdLegacyStop:
		return "LegacyStop"
	default:
		return fmt.Sprintf("Unknown(%02X%02X%02X%02X)", c[0], c[1], c[2], c[3])
	}
}

// Temperature limits (Fahrenheit)
const (
	MinTempF = 104 // Lowest target the firmware accepts
	MaxTempF = 212 // Highest target (boil)

	// Readings outside this window mean a mis-framed or corrupt packet,
	// not a physically plausible kettle state.
	MinValidReadingF = 40
	MaxValidReadingF = 230
)

// HeatingStage is the kettle's current heating phase
type HeatingStage uint8

const (
	StageIdle       HeatingStage = 0x00
	StageHeating    HeatingStage = 0x01
	StageAlmostDone HeatingStage = 0x02
	StageKeepWarm   HeatingStage = 0x03
)

// HeatingStageFromByte maps a wire byte to a stage. Values the firmware has
// not been observed to send fall back to StageIdle.
func HeatingStageFromByte(b byte) HeatingStage {
	switch s := HeatingStage(b); s {
	case StageIdle, StageHeating, StageAlmostDone, StageKeepWarm:
		return s
	default:
		return StageIdle
	}
}

// String returns a human-readable stage name
func (s HeatingStage) String() string {
	switch s {
	case StageIdle:
		return "Idle"
	case StageHeating:
		return "Heating"
	case StageAlmostDone:
		return "AlmostDone"
	case StageKeepWarm:
		return "KeepWarm"
	default:
		return fmt.Sprintf("Stage(0x%02X)", uint8(s))
	}
}

// OperatingMode selects a temperature preset
type OperatingMode uint8

const (
	ModeIdle     OperatingMode = 0x00 // Not heating
	ModeGreenTea OperatingMode = 0x01 // 180°F
	ModeOolong   OperatingMode = 0x02 // 195°F
	ModeCoffee   OperatingMode = 0x03 // 205°F
	ModeBoil     OperatingMode = 0x04 // 212°F
	ModeMyTemp   OperatingMode = 0x05 // User-set custom temperature
	ModeHeat     OperatingMode = 0x06 // Arbitrary temperature (legacy protocol)
)

// PresetTempF returns the target temperature a preset mode heats to, or
// (0, false) for modes without a fixed preset.
func (m OperatingMode) PresetTempF() (int, bool) {
	switch m {
	case ModeGreenTea:
		return 180, true
	case ModeOolong:
		return 195, true
	case ModeCoffee:
		return 205, true
	case ModeBoil:
		return 212, true
	default:
		return 0, false
	}
}

// OperatingModeFromByte maps a wire byte to a mode. Unobserved values fall
// back to ModeBoil.
func OperatingModeFromByte(b byte) OperatingMode {
	switch m := OperatingMode(b); m {
	case ModeIdle, ModeGreenTea, ModeOolong, ModeCoffee, ModeBoil, ModeMyTemp, ModeHeat:
		return m
	default:
		return ModeBoil
	}
}

// String returns a human-readable mode name
func (m OperatingMode) String() string {
	switch m {
	case ModeIdle:
		return "Idle"
	case ModeGreenTea:
		return "GreenTea"
	case ModeOolong:
		return "Oolong"
	case ModeCoffee:
		return "Coffee"
	case ModeBoil:
		return "Boil"
	case ModeMyTemp:
		return "MyTemp"
	case ModeHeat:
		return "Heat"
	default:
		return fmt.Sprintf("Mode(0x%02X)", uint8(m))
	}
}

// CompletionStatus distinguishes the two completion notifications
type CompletionStatus uint8

const (
	CompletionDone         CompletionStatus = 0x20 // Heating finished (a hold may follow)
	CompletionHoldComplete CompletionStatus = 0x21 // Keep-warm hold timer expired
)

// String returns a human-readable completion name
func (c CompletionStatus) String() string {
	switch c {
	case CompletionDone:
		return "Done"
	case CompletionHoldComplete:
		return "HoldComplete"
	default:
		return fmt.Sprintf("Completion(0x%02X)", uint8(c))
	}
}

// Packet is a decoded payload
type Packet interface {
	// Sequence returns the frame sequence number the packet arrived under
	Sequence() uint8
	String() string
}

// StatusPacket is a point-in-time snapshot of the kettle, decoded from
// either the compact notification (MESSAGE kind) or the extended status
// carried in an ACK frame.
type StatusPacket struct {
	Seq          uint8
	Stage        HeatingStage
	Mode         OperatingMode
	SetpointF    int
	TemperatureF int
	Heating      bool
	Extended     bool // true when decoded from the ACK-carried extended shape

	// Extended-only fields. Zero values when Extended is false or when the
	// firmware truncated the section they live in.
	MyTempF       int
	OnBase        bool
	OnBaseKnown   bool
	HoldRemaining int // seconds left on the keep-warm hold
	ErrorCode     int
	BabyFormula   bool
}

// Sequence implements Packet
func (p *StatusPacket) Sequence() uint8 { return p.Seq }

// String returns a debug representation of the snapshot
func (p *StatusPacket) String() string {
	shape := "compact"
	if p.Extended {
		shape = "extended"
	}
	return fmt.Sprintf("Status{%s, seq=0x%02X, stage=%s, mode=%s, temp=%d°F, setpoint=%d°F, heating=%v}",
		shape, p.Seq, p.Stage, p.Mode, p.TemperatureF, p.SetpointF, p.Heating)
}

// ErrorState reports whether the snapshot indicates a device fault: a
// nonzero error code or readings far outside the physical range.
func (p *StatusPacket) ErrorState() bool {
	if p.TemperatureF > 1000 || p.SetpointF > 1000 {
		return true
	}
	return p.Extended && p.ErrorCode != 0
}

// AckPacket acknowledges a previously sent command. The device mirrors the
// command's sequence number and header.
type AckPacket struct {
	Seq     uint8
	Command Command
	Success bool   // false when the device reports a nonzero status byte
	Body    []byte // remaining payload after the command header
}

// Sequence implements Packet
func (p *AckPacket) Sequence() uint8 { return p.Seq }

// String returns a debug representation of the ack
func (p *AckPacket) String() string {
	return fmt.Sprintf("Ack{seq=0x%02X, command=%s, success=%v, body=%d bytes}",
		p.Seq, p.Command, p.Success, len(p.Body))
}

// CompletionPacket is the device's heating-finished notification
type CompletionPacket struct {
	Seq    uint8
	Status CompletionStatus
}

// Sequence implements Packet
func (p *CompletionPacket) Sequence() uint8 { return p.Seq }

// String returns a debug representation of the completion
func (p *CompletionPacket) String() string {
	return fmt.Sprintf("Completion{seq=0x%02X, status=%s}", p.Seq, p.Status)
}

// UnknownPacket preserves frames whose (kind, command) pair is not mapped.
// The protocol is only partially understood; unrecognized traffic is kept
// for inspection, never treated as an error.
type UnknownPacket struct {
	Seq     uint8
	Kind    byte
	Payload []byte
}

// Sequence implements Packet
func (p *UnknownPacket) Sequence() uint8 { return p.Seq }

// String returns a debug representation including the raw payload
func (p *UnknownPacket) String() string {
	return fmt.Sprintf("Unknown{seq=0x%02X, kind=0x%02X, payload=%s}",
		p.Seq, p.Kind, hex.EncodeToString(p.Payload))
}

// ParsePacket decodes an envelope's payload into a typed packet.
//
// Dispatch is keyed on (frame kind, command header). Recognized shapes that
// fail validation return an error and the frame should be dropped; pairs
// that are simply not recognized come back as *UnknownPacket.
func ParsePacket(env *Envelope) (Packet, error) {
	payload := env.Payload
	if len(payload) < CommandSize {
		return &UnknownPacket{Seq: env.Seq, Kind: env.Kind, Payload: payload}, nil
	}

	var cmd Command
	copy(cmd[:], payload[:CommandSize])
	body := payload[CommandSize:]

	switch env.Kind {
	case FrameKindMessage:
		switch cmd {
		case CmdStatusCompact:
			return parseCompactStatus(env.Seq, body)
		case CmdCompletion:
			return parseCompletion(env.Seq, body)
		}

	case FrameKindAck:
		switch cmd {
		case CmdStatusRequest:
			return parseExtendedStatus(env.Seq, body)
		case CmdCompletion:
			return parseCompletion(env.Seq, body)
		case CmdStart, CmdStop, CmdRegister, CmdHello, CmdSetMyTemp,
			CmdSetBabyMode, CmdDelayStart, CmdSetpoint, CmdLegacyStop:
			return parseCommandAck(env.Seq, cmd, body), nil
		}
	}

	return &UnknownPacket{Seq: env.Seq, Kind: env.Kind, Payload: payload}, nil
}

// parseCompactStatus decodes the unsolicited status notification.
//
// Body layout after the command header:
//
//	[0] stage  [1] mode  [2] setpoint °F  [3] temperature °F  [4] heating flag
//	[5-7] unknown
func parseCompactStatus(seq uint8, body []byte) (*StatusPacket, error) {
	if len(body) < 5 {
		return nil, fmt.Errorf("compact status body too short: %d bytes (minimum 5)", len(body))
	}

	setpoint := int(body[2])
	temp := int(body[3])
	if err := validateReading("temperature", temp); err != nil {
		return nil, err
	}
	if err := validateReading("setpoint", setpoint); err != nil {
		return nil, err
	}

	return &StatusPacket{
		Seq:          seq,
		Stage:        HeatingStageFromByte(body[0]),
		Mode:         OperatingModeFromByte(body[1]),
		SetpointF:    setpoint,
		TemperatureF: temp,
		Heating:      body[4] != 0,
	}, nil
}

// parseExtendedStatus decodes the full status the device returns in an ACK
// frame after a status request. The ack payload IS the device state; there
// is no separate response message.
//
// Body layout after the command header (25 bytes on current firmware):
//
//	[0]     stage
//	[1]     mode
//	[2]     setpoint °F
//	[3]     temperature °F
//	[4]     my-temp preset °F
//	[5-9]   unknown
//	[10]    on-base flag (0x00 = sitting on the base)
//	[11-12] hold time remaining, big-endian seconds
//	[13-19] unknown
//	[20]    error code
//	[21]    unknown
//	[22]    baby formula mode (0x01 = enabled)
//	[23-24] unknown
//
// Older firmware truncates the tail; optional sections decode as absent.
func parseExtendedStatus(seq uint8, body []byte) (*StatusPacket, error) {
	if len(body) < 4 {
		return nil, fmt.Errorf("extended status body too short: %d bytes (minimum 4)", len(body))
	}

	setpoint := int(body[2])
	temp := int(body[3])
	if err := validateReading("temperature", temp); err != nil {
		return nil, err
	}
	if err := validateReading("setpoint", setpoint); err != nil {
		return nil, err
	}

	p := &StatusPacket{
		Seq:          seq,
		Stage:        HeatingStageFromByte(body[0]),
		Mode:         OperatingModeFromByte(body[1]),
		SetpointF:    setpoint,
		TemperatureF: temp,
		Heating:      body[0] != 0,
		Extended:     true,
	}

	if len(body) >= 5 {
		p.MyTempF = int(body[4])
	}
	if len(body) >= 11 {
		p.OnBase = body[10] == 0x00
		p.OnBaseKnown = true
	}
	if len(body) >= 13 {
		p.HoldRemaining = int(binary.BigEndian.Uint16(body[11:13]))
	}
	if len(body) >= 21 {
		p.ErrorCode = int(body[20])
	}
	if len(body) >= 23 {
		p.BabyFormula = body[22] == 0x01
	}

	return p, nil
}

// parseCommandAck decodes a plain command acknowledgment. An empty body or
// a leading zero byte means success; registration rejections carry a
// nonzero status byte.
func parseCommandAck(seq uint8, cmd Command, body []byte) *AckPacket {
	success := true
	if len(body) > 0 {
		success = body[0] == 0x00
	}
	return &AckPacket{Seq: seq, Command: cmd, Success: success, Body: body}
}

// parseCompletion decodes the heating/hold finished notification
func parseCompletion(seq uint8, body []byte) (*CompletionPacket, error) {
	if len(body) < 1 {
		return nil, fmt.Errorf("completion body empty")
	}

	status := CompletionStatus(body[0])
	if status != CompletionDone && status != CompletionHoldComplete {
		return nil, fmt.Errorf("unknown completion status: 0x%02x", body[0])
	}

	return &CompletionPacket{Seq: seq, Status: status}, nil
}

// validateReading rejects temperature bytes that cannot be a real kettle
// reading. Out-of-range values mean the frame was mis-framed or the offsets
// landed on the wrong bytes.
func validateReading(name string, tempF int) error {
	if tempF < MinValidReadingF || tempF > MaxValidReadingF {
		return fmt.Errorf("%s reading %d°F outside valid range [%d, %d]",
			name, tempF, MinValidReadingF, MaxValidReadingF)
	}
	return nil
}
