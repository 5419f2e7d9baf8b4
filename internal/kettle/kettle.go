package kettle

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/rygwdn/CosoriKettleBLE/internal/logging"
	"github.com/rygwdn/CosoriKettleBLE/internal/protocol"
	"github.com/rygwdn/CosoriKettleBLE/internal/transport"
)

// Kettle is the high-level client for one Cosori smart kettle: presets,
// arbitrary temperatures, stop, pairing, and status, independent of which
// protocol generation the firmware speaks.
type Kettle struct {
	session   *Session
	transport transport.Transport
}

// Connect builds a session over a connected transport and performs the
// hello handshake. The protocol version comes from the device information
// the link reports, unless ForceVersion pins it.
func Connect(ctx context.Context, t transport.Transport, opts Options) (*Kettle, error) {
	info := t.Info()
	if !opts.ForceVersion && (info.HardwareRev != "" || info.SoftwareRev != "") {
		opts.Version = DetectVersion(info.HardwareRev, info.SoftwareRev)
	}

	logging.Info("connecting to kettle",
		zap.String("name", info.Name),
		zap.String("address", info.Address),
		zap.String("protocol", opts.Version.String()))

	k := &Kettle{
		session:   NewSession(t, opts),
		transport: t,
	}

	if err := k.session.Handshake(ctx); err != nil {
		return nil, err
	}
	return k, nil
}

// Session exposes the packet-level session for callers that need raw
// events or operations the facade does not cover
func (k *Kettle) Session() *Session {
	return k.session
}

// Info returns the device identity the link reported
func (k *Kettle) Info() transport.DeviceInfo {
	return k.transport.Info()
}

// Version returns the protocol version in use
func (k *Kettle) Version() protocol.Version {
	return k.session.Version()
}

// Registered reports whether the kettle has accepted the session key
func (k *Kettle) Registered() bool {
	return k.session.Registered()
}

// WaitReady blocks until the kettle answers the handshake
func (k *Kettle) WaitReady(ctx context.Context, timeout time.Duration) error {
	return k.session.AwaitRegistered(ctx, timeout)
}

// Pair registers a new key with a kettle in pairing mode, then re-greets
// the device under that key. The caller must persist the key on success.
func (k *Kettle) Pair(ctx context.Context, key []byte) error {
	if err := protocol.ValidateRegistrationKey(key); err != nil {
		return NewValidationError(err.Error())
	}

	if err := k.session.Register(ctx, key); err != nil {
		return err
	}

	k.session.AdoptKey(key)
	return k.session.Handshake(ctx)
}

// Boil heats to 212°F, optionally keeping warm for holdMinutes afterwards
func (k *Kettle) Boil(ctx context.Context, holdMinutes int) error {
	return k.HeatPreset(ctx, protocol.ModeBoil, holdMinutes)
}

// HeatGreenTea heats to the 180°F green tea preset
func (k *Kettle) HeatGreenTea(ctx context.Context, holdMinutes int) error {
	return k.HeatPreset(ctx, protocol.ModeGreenTea, holdMinutes)
}

// HeatOolong heats to the 195°F oolong preset
func (k *Kettle) HeatOolong(ctx context.Context, holdMinutes int) error {
	return k.HeatPreset(ctx, protocol.ModeOolong, holdMinutes)
}

// HeatCoffee heats to the 205°F pour-over preset
func (k *Kettle) HeatCoffee(ctx context.Context, holdMinutes int) error {
	return k.HeatPreset(ctx, protocol.ModeCoffee, holdMinutes)
}

// HeatPreset starts a heating cycle for a preset mode. On legacy firmware
// presets translate to their temperature through the setpoint choreography,
// and holds are not available.
func (k *Kettle) HeatPreset(ctx context.Context, mode protocol.OperatingMode, holdMinutes int) error {
	if hold, err := holdToSeconds(holdMinutes); err != nil {
		return err
	} else if k.session.Version() == protocol.V0 {
		if hold > 0 {
			return NewUnsupportedError("keep-warm hold", protocol.V0.String())
		}
		temp, ok := mode.PresetTempF()
		if !ok {
			return NewValidationError("mode " + mode.String() + " has no preset temperature")
		}
		return k.session.SetTargetTemperature(ctx, temp)
	} else {
		return k.session.StartHeating(ctx, mode, hold)
	}
}

// HeatPresetDelayed schedules a preset heating cycle delayMinutes from now
func (k *Kettle) HeatPresetDelayed(ctx context.Context, delayMinutes int, mode protocol.OperatingMode, holdMinutes int) error {
	hold, err := holdToSeconds(holdMinutes)
	if err != nil {
		return err
	}
	delay, err := minutesToSeconds("delay", delayMinutes)
	if err != nil {
		return err
	}
	return k.session.StartHeatingDelayed(ctx, delay, mode, hold)
}

// HeatToTemperature heats to an arbitrary Fahrenheit target, clamped to the
// range the firmware accepts
func (k *Kettle) HeatToTemperature(ctx context.Context, tempF int) error {
	return k.session.SetTargetTemperature(ctx, tempF)
}

// SetMyTemp stores the custom temperature preset without starting a cycle
func (k *Kettle) SetMyTemp(ctx context.Context, tempF int) error {
	return k.session.SetMyTemp(ctx, tempF)
}

// SetBabyFormulaMode toggles the baby formula mode
func (k *Kettle) SetBabyFormulaMode(ctx context.Context, enabled bool) error {
	return k.session.SetBabyFormulaMode(ctx, enabled)
}

// Stop cancels the running heating cycle
func (k *Kettle) Stop(ctx context.Context) error {
	return k.session.StopHeating(ctx)
}

// Status polls the kettle and returns the next snapshot
func (k *Kettle) Status(ctx context.Context) (*protocol.StatusPacket, error) {
	return k.session.AwaitStatus(ctx, 0)
}

// Close tears down the transport link
func (k *Kettle) Close() error {
	return k.transport.Close()
}

func holdToSeconds(holdMinutes int) (int, error) {
	return minutesToSeconds("hold", holdMinutes)
}

func minutesToSeconds(what string, minutes int) (int, error) {
	if minutes < 0 {
		return 0, NewValidationError(what + " minutes must not be negative")
	}
	seconds := minutes * 60
	if seconds > 0xFFFF {
		return 0, NewValidationError(what + " too long: 18 hours maximum")
	}
	return seconds, nil
}
