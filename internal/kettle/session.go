package kettle

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rygwdn/CosoriKettleBLE/internal/logging"
	"github.com/rygwdn/CosoriKettleBLE/internal/protocol"
	"github.com/rygwdn/CosoriKettleBLE/internal/transport"
)

// Inter-packet delays for the legacy choreography, from captured app
// traffic. The firmware drops packets that arrive faster.
const (
	handshakeDelay    = 80 * time.Millisecond
	preSetpointDelay  = 60 * time.Millisecond
	postSetpointDelay = 100 * time.Millisecond
	controlDelay      = 50 * time.Millisecond
)

// Default timeouts for acknowledged commands
const (
	DefaultAckTimeout      = 1 * time.Second
	DefaultRegisterTimeout = 2 * time.Second
	DefaultRegisteredWait  = 5 * time.Second
)

// Events are callbacks for device-initiated traffic. All callbacks run on
// the notification goroutine; do not block in them. Nil callbacks are
// skipped.
type Events struct {
	// OnStatus fires for every status snapshot, compact or extended
	OnStatus func(*protocol.StatusPacket)
	// OnHeatingComplete fires when the kettle reaches temperature
	OnHeatingComplete func()
	// OnHoldComplete fires when the keep-warm hold timer expires
	OnHoldComplete func()
	// OnError fires when a status snapshot indicates a device fault
	OnError func(code int)
	// OnPacket fires for every decoded packet, including unknown ones
	OnPacket func(protocol.Packet)
}

// Options configure a session
type Options struct {
	// Version selects the command set. Detect it from the device
	// information service via DetectVersion; the zero value is the
	// current protocol.
	Version protocol.Version

	// ForceVersion makes Connect use Version as given instead of
	// detecting from the device information service
	ForceVersion bool

	// Key is the registration key announced in the hello. Nil uses the
	// shared default key.
	Key []byte

	// SkipHello5 omits the hello5 packet from the legacy set-temperature
	// choreography. Most legacy firmware requires it.
	SkipHello5 bool

	// AckTimeout bounds the wait for a command ack (default 1s)
	AckTimeout time.Duration
	// RegisterTimeout bounds the wait for a registration ack (default 2s)
	RegisterTimeout time.Duration

	// Events receive device-initiated traffic
	Events Events
}

type registrationState int

const (
	regNone registrationState = iota
	regHelloSent
	regRefused
	regComplete
)

// Session drives the packet-level conversation with one kettle: sequence
// numbers, chunked sends, ack correlation, the registration handshake, and
// the legacy timing choreography.
//
// Operations are safe for concurrent use and single-flight: an operation
// mutex serializes command issuance, so the legacy choreography's timed
// packets never interleave with another operation's traffic.
type Session struct {
	transport transport.Transport
	tracker   *AckTracker
	reasm     *protocol.Reassembler
	opts      Options

	// opMu serializes operations that put commands on the wire
	opMu sync.Mutex

	mu            sync.Mutex
	txSeq         uint8
	lastStatusSeq uint8
	regState      registrationState
	regRefusal    *KettleError
	lastStatus    *protocol.StatusPacket
	lastStatusAt  time.Time

	statusSignal chan struct{}
	regDone      chan struct{}
	regOnce      sync.Once
	regRefusedCh chan struct{}
	refusalOnce  sync.Once
}

// NewSession creates a session over the given transport and subscribes to
// its notifications.
func NewSession(t transport.Transport, opts Options) *Session {
	if opts.AckTimeout <= 0 {
		opts.AckTimeout = DefaultAckTimeout
	}
	if opts.RegisterTimeout <= 0 {
		opts.RegisterTimeout = DefaultRegisterTimeout
	}
	if opts.Key == nil {
		opts.Key = protocol.DefaultRegistrationKey
	}

	s := &Session{
		transport:    t,
		tracker:      NewAckTracker(),
		reasm:        protocol.NewReassembler(),
		opts:         opts,
		statusSignal: make(chan struct{}, 1),
		regDone:      make(chan struct{}),
		regRefusedCh: make(chan struct{}),
	}
	t.Subscribe(s.HandleNotification)
	return s
}

// Version returns the protocol version the session speaks
func (s *Session) Version() protocol.Version {
	return s.opts.Version
}

// AdoptKey switches the session to a new registration key for future
// handshakes, after a successful pairing
func (s *Session) AdoptKey(key []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opts.Key = key
}

// Registered reports whether the kettle has answered since the hello
func (s *Session) Registered() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.regState == regComplete
}

// LastStatus returns the most recent status snapshot and when it arrived
func (s *Session) LastStatus() (*protocol.StatusPacket, time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastStatus, s.lastStatusAt, s.lastStatus != nil
}

// HandleNotification ingests one raw notification chunk. Wired to the
// transport by NewSession; exposed for replay tooling.
func (s *Session) HandleNotification(chunk []byte) {
	s.reasm.Append(chunk)
	for _, env := range s.reasm.Drain() {
		s.handleFrame(env)
	}
}

func (s *Session) handleFrame(env *protocol.Envelope) {
	logging.LogFrame("rx", env.Seq, env.KindString(), env.Raw)

	pkt, err := protocol.ParsePacket(env)
	if err != nil {
		logging.Warn("dropping invalid packet",
			zap.Uint8("seq", env.Seq),
			zap.String("kind", env.KindString()),
			zap.Error(err))
		return
	}

	// Any answer in ack shape proves the kettle accepted our key, except
	// an explicit registration refusal.
	if env.Kind == protocol.FrameKindAck {
		if ack, ok := pkt.(*protocol.AckPacket); ok && isRegistrationRefusal(ack) {
			s.markRegistrationRefused(ack)
		} else {
			s.markRegistered()
		}
	}

	if s.opts.Events.OnPacket != nil {
		s.opts.Events.OnPacket(pkt)
	}

	switch p := pkt.(type) {
	case *protocol.StatusPacket:
		s.handleStatus(p)

	case *protocol.AckPacket:
		if !s.tracker.Resolve(p) {
			logging.Debug("unsolicited ack", zap.String("packet", p.String()))
		}

	case *protocol.CompletionPacket:
		logging.Info("completion notification", zap.String("status", p.Status.String()))
		switch p.Status {
		case protocol.CompletionDone:
			if s.opts.Events.OnHeatingComplete != nil {
				s.opts.Events.OnHeatingComplete()
			}
		case protocol.CompletionHoldComplete:
			if s.opts.Events.OnHoldComplete != nil {
				s.opts.Events.OnHoldComplete()
			}
		}

	case *protocol.UnknownPacket:
		logging.Debug("unmapped packet", zap.String("packet", p.String()))
	}
}

func (s *Session) handleStatus(p *protocol.StatusPacket) {
	s.mu.Lock()
	s.lastStatus = p
	s.lastStatusAt = time.Now()
	s.lastStatusSeq = p.Seq
	s.mu.Unlock()

	select {
	case s.statusSignal <- struct{}{}:
	default:
	}

	if p.ErrorState() {
		logging.Warn("device error state",
			zap.Int("error_code", p.ErrorCode),
			zap.Int("temperature_f", p.TemperatureF),
			zap.Int("setpoint_f", p.SetpointF))
		if s.opts.Events.OnError != nil {
			s.opts.Events.OnError(p.ErrorCode)
		}
	}

	if s.opts.Events.OnStatus != nil {
		s.opts.Events.OnStatus(p)
	}
}

func isRegistrationRefusal(ack *protocol.AckPacket) bool {
	if ack.Success {
		return false
	}
	return ack.Command == protocol.CmdHello || ack.Command == protocol.CmdRegister
}

func (s *Session) markRegistered() {
	s.mu.Lock()
	already := s.regState == regComplete
	s.regState = regComplete
	s.mu.Unlock()

	if !already {
		logging.Info("kettle accepted session key")
		s.regOnce.Do(func() { close(s.regDone) })
	}
}

// markRegistrationRefused records a hello or register nack so waiters learn
// the key was rejected instead of timing out
func (s *Session) markRegistrationRefused(ack *protocol.AckPacket) {
	command := "hello"
	if ack.Command == protocol.CmdRegister {
		command = "register"
	}
	status := 0
	if len(ack.Body) > 0 {
		status = int(ack.Body[0])
	}

	s.mu.Lock()
	if s.regState != regComplete {
		s.regState = regRefused
	}
	s.regRefusal = NewRegistrationRejectedError(command, ack.Seq, status)
	s.mu.Unlock()

	logging.Warn("kettle refused session key",
		zap.String("command", command),
		zap.Int("status", status))
	s.refusalOnce.Do(func() { close(s.regRefusedCh) })
}

// nextSeq issues the next transmit sequence number. The 8-bit space wraps;
// zero is normally the hello's sequence but reappears after a wrap, exactly
// as the stock app behaves.
func (s *Session) nextSeq() uint8 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txSeq++
	return s.txSeq
}

// statusEchoSeq picks the sequence for a choreography status ack: echo the
// last status the kettle sent, or spend a fresh sequence when none exists
// yet. Zero means no status has been seen, since zero is the hello's
// sequence.
func (s *Session) statusEchoSeq() uint8 {
	s.mu.Lock()
	last := s.lastStatusSeq
	s.mu.Unlock()

	if last != 0 {
		return last
	}
	return s.nextSeq()
}

// send chunks a frame to the transport
func (s *Session) send(ctx context.Context, frame []byte) error {
	logging.LogFrame("tx", frame[2], kindName(frame[1]), frame)

	for _, chunk := range transport.Chunks(frame) {
		if err := s.transport.WriteChunk(ctx, chunk); err != nil {
			return NewTransportError("chunk write failed", err)
		}
	}
	return nil
}

func kindName(kind byte) string {
	if kind == protocol.FrameKindAck {
		return "ACK"
	}
	return "MESSAGE"
}

// sendAcked registers an ack waiter, sends the frame, and waits for the
// device's answer
func (s *Session) sendAcked(ctx context.Context, command string, seq uint8, frame []byte, timeout time.Duration) (*protocol.AckPacket, error) {
	ch := s.tracker.Register(seq)
	if err := s.send(ctx, frame); err != nil {
		s.tracker.Cancel(seq, ch)
		return nil, err
	}
	return s.tracker.Await(ctx, command, seq, ch, timeout)
}

// Handshake announces the session key and requests a first status. The
// hello always travels under sequence zero; the kettle ignores every other
// packet until it has seen a hello carrying a key it knows.
func (s *Session) Handshake(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	key := s.opts.Key
	if s.regState == regNone {
		s.regState = regHelloSent
	}
	s.mu.Unlock()

	frame, err := protocol.BuildHello(0, key)
	if err != nil {
		return NewValidationError(err.Error())
	}

	if err := s.send(ctx, frame); err != nil {
		return err
	}
	if err := sleep(ctx, handshakeDelay); err != nil {
		return err
	}
	return s.RequestStatus(ctx)
}

// AwaitRegistered blocks until the kettle has answered the hello, proving
// the key is accepted. An explicit hello or register nack returns a
// registration rejection right away instead of running out the timeout.
func (s *Session) AwaitRegistered(ctx context.Context, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = DefaultRegisteredWait
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-s.regDone:
		return nil
	case <-s.regRefusedCh:
		// A refusal may be followed by acceptance after Register taught
		// the kettle a new key
		s.mu.Lock()
		complete := s.regState == regComplete
		refusal := s.regRefusal
		s.mu.Unlock()
		if complete {
			return nil
		}
		return refusal
	case <-timer.C:
		return NewAckTimeoutError("hello", 0, timeout)
	case <-ctx.Done():
		return NewTransportError("canceled while awaiting registration", ctx.Err())
	}
}

// RequestStatus polls the kettle. The answer arrives asynchronously as an
// extended status; use AwaitStatus to wait for it.
func (s *Session) RequestStatus(ctx context.Context) error {
	frame, err := protocol.BuildStatusRequest(s.nextSeq())
	if err != nil {
		return NewValidationError(err.Error())
	}
	return s.send(ctx, frame)
}

// AwaitStatus polls the kettle and waits for the next status snapshot to
// arrive, whichever shape it takes
func (s *Session) AwaitStatus(ctx context.Context, timeout time.Duration) (*protocol.StatusPacket, error) {
	if timeout <= 0 {
		timeout = DefaultAckTimeout
	}

	// Drop a stale signal so we wait for a fresh snapshot
	select {
	case <-s.statusSignal:
	default:
	}

	if err := s.RequestStatus(ctx); err != nil {
		return nil, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-s.statusSignal:
		status, _, _ := s.LastStatus()
		return status, nil
	case <-timer.C:
		return nil, NewAckTimeoutError("status request", 0, timeout)
	case <-ctx.Done():
		return nil, NewTransportError("canceled while awaiting status", ctx.Err())
	}
}

// Register teaches a kettle in pairing mode a new key. The caller owns the
// key and must persist it on success; without it the kettle never answers
// again once its pairing window closes.
func (s *Session) Register(ctx context.Context, key []byte) error {
	if key == nil {
		return NewValidationError("registration key required; generate one and persist it")
	}

	s.opMu.Lock()
	defer s.opMu.Unlock()

	seq := s.nextSeq()
	frame, err := protocol.BuildRegister(seq, key)
	if err != nil {
		return NewValidationError(err.Error())
	}

	ack, err := s.sendAcked(ctx, "register", seq, frame, s.opts.RegisterTimeout)
	if err != nil {
		return err
	}
	if !ack.Success {
		status := 0
		if len(ack.Body) > 0 {
			status = int(ack.Body[0])
		}
		return NewRegistrationRejectedError("register", seq, status)
	}

	logging.Info("kettle registered new key")
	return nil
}

// StartHeating starts a heating cycle to a preset mode, optionally keeping
// the water warm afterwards
func (s *Session) StartHeating(ctx context.Context, mode protocol.OperatingMode, holdSeconds int) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	return s.startHeating(ctx, mode, holdSeconds)
}

func (s *Session) startHeating(ctx context.Context, mode protocol.OperatingMode, holdSeconds int) error {
	if s.opts.Version == protocol.V0 {
		return NewUnsupportedError("start heating", s.opts.Version.String())
	}
	if err := validateHold(holdSeconds); err != nil {
		return err
	}

	seq := s.nextSeq()
	frame, err := protocol.BuildStart(seq, mode, holdSeconds > 0, uint16(holdSeconds))
	if err != nil {
		return NewValidationError(err.Error())
	}

	ack, err := s.sendAcked(ctx, "start", seq, frame, s.opts.AckTimeout)
	if err != nil {
		return err
	}
	if !ack.Success {
		return NewCommandRejectedError("start", seq)
	}
	return nil
}

// StartHeatingDelayed schedules a heating cycle to begin after a delay
func (s *Session) StartHeatingDelayed(ctx context.Context, delaySeconds int, mode protocol.OperatingMode, holdSeconds int) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if s.opts.Version == protocol.V0 {
		return NewUnsupportedError("delayed start", s.opts.Version.String())
	}
	if delaySeconds <= 0 || delaySeconds > 0xFFFF {
		return NewValidationError("delay must be between 1 second and 18 hours")
	}
	if err := validateHold(holdSeconds); err != nil {
		return err
	}

	seq := s.nextSeq()
	frame, err := protocol.BuildDelayStart(seq, uint16(delaySeconds), mode, holdSeconds > 0, uint16(holdSeconds))
	if err != nil {
		return NewValidationError(err.Error())
	}

	ack, err := s.sendAcked(ctx, "delayed start", seq, frame, s.opts.AckTimeout)
	if err != nil {
		return err
	}
	if !ack.Success {
		return NewCommandRejectedError("delayed start", seq)
	}
	return nil
}

// SetMyTemp stores the custom temperature preset. Out-of-range requests
// clamp to what the firmware accepts.
func (s *Session) SetMyTemp(ctx context.Context, tempF int) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	return s.setMyTemp(ctx, tempF)
}

func (s *Session) setMyTemp(ctx context.Context, tempF int) error {
	if s.opts.Version == protocol.V0 {
		return NewUnsupportedError("custom temperature preset", s.opts.Version.String())
	}

	tempF = protocol.ClampTargetTemp(tempF)
	seq := s.nextSeq()
	frame, err := protocol.BuildSetMyTemp(seq, tempF)
	if err != nil {
		return NewValidationError(err.Error())
	}

	ack, err := s.sendAcked(ctx, "set my temp", seq, frame, s.opts.AckTimeout)
	if err != nil {
		return err
	}
	if !ack.Success {
		return NewCommandRejectedError("set my temp", seq)
	}
	return nil
}

// SetBabyFormulaMode toggles the baby formula mode
func (s *Session) SetBabyFormulaMode(ctx context.Context, enabled bool) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if s.opts.Version == protocol.V0 {
		return NewUnsupportedError("baby formula mode", s.opts.Version.String())
	}

	seq := s.nextSeq()
	frame, err := protocol.BuildSetBabyMode(seq, enabled)
	if err != nil {
		return NewValidationError(err.Error())
	}

	ack, err := s.sendAcked(ctx, "baby formula mode", seq, frame, s.opts.AckTimeout)
	if err != nil {
		return err
	}
	if !ack.Success {
		return NewCommandRejectedError("baby formula mode", seq)
	}
	return nil
}

// SetTargetTemperature heats to an arbitrary temperature. On current
// firmware this stores the custom preset and starts it; on legacy firmware
// it runs the timed setpoint choreography. Out-of-range requests clamp.
func (s *Session) SetTargetTemperature(ctx context.Context, tempF int) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	tempF = protocol.ClampTargetTemp(tempF)

	if s.opts.Version == protocol.V0 {
		return s.setTargetLegacy(ctx, tempF)
	}

	if err := s.setMyTemp(ctx, tempF); err != nil {
		return err
	}
	return s.startHeating(ctx, protocol.ModeMyTemp, 0)
}

// setTargetLegacy runs the captured V0 set-temperature choreography:
// hello5, setpoint, then two ack-shaped status acks, each separated by the
// delays the firmware expects.
func (s *Session) setTargetLegacy(ctx context.Context, tempF int) error {
	mode := protocol.ModeHeat
	if tempF == protocol.MaxTempF {
		mode = protocol.ModeBoil
	}

	if !s.opts.SkipHello5 {
		frame, err := protocol.BuildHello5(s.nextSeq())
		if err != nil {
			return NewValidationError(err.Error())
		}
		if err := s.send(ctx, frame); err != nil {
			return err
		}
		if err := sleep(ctx, preSetpointDelay); err != nil {
			return err
		}
	}

	frame, err := protocol.BuildSetpoint(s.nextSeq(), mode, tempF)
	if err != nil {
		return NewValidationError(err.Error())
	}
	if err := s.send(ctx, frame); err != nil {
		return err
	}
	if err := sleep(ctx, postSetpointDelay); err != nil {
		return err
	}

	if err := s.sendStatusAck(ctx, s.statusEchoSeq()); err != nil {
		return err
	}
	return s.sendStatusAck(ctx, s.nextSeq())
}

// StopHeating cancels the current heating cycle. Current firmware takes an
// acknowledged stop command; legacy firmware needs the stop repeated around
// a status ack.
func (s *Session) StopHeating(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if s.opts.Version == protocol.V1 {
		seq := s.nextSeq()
		frame, err := protocol.BuildStop(seq, protocol.V1)
		if err != nil {
			return NewValidationError(err.Error())
		}

		ack, err := s.sendAcked(ctx, "stop", seq, frame, s.opts.AckTimeout)
		if err != nil {
			return err
		}
		if !ack.Success {
			return NewCommandRejectedError("stop", seq)
		}
		return nil
	}

	// Legacy choreography: stop, status ack, stop again
	frame, err := protocol.BuildStop(s.nextSeq(), protocol.V0)
	if err != nil {
		return NewValidationError(err.Error())
	}
	if err := s.send(ctx, frame); err != nil {
		return err
	}
	if err := sleep(ctx, controlDelay); err != nil {
		return err
	}

	if err := s.sendStatusAck(ctx, s.statusEchoSeq()); err != nil {
		return err
	}

	again, err := protocol.BuildStop(s.nextSeq(), protocol.V0)
	if err != nil {
		return NewValidationError(err.Error())
	}
	return s.send(ctx, again)
}

// sendStatusAck sends one ack-shaped compact status ack and waits the
// inter-packet delay
func (s *Session) sendStatusAck(ctx context.Context, seq uint8) error {
	frame, err := protocol.BuildStatusAck(seq)
	if err != nil {
		return NewValidationError(err.Error())
	}
	if err := s.send(ctx, frame); err != nil {
		return err
	}
	return sleep(ctx, controlDelay)
}

func validateHold(holdSeconds int) error {
	if holdSeconds < 0 || holdSeconds > 0xFFFF {
		return NewValidationError("hold time must be between 0 seconds and 18 hours")
	}
	return nil
}

// sleep waits for the choreography delay unless the context ends first
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return NewTransportError("canceled during protocol delay", ctx.Err())
	case <-timer.C:
		return nil
	}
}
