package service

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/ricochet1k/wamux/internal/autoreply"
	"github.com/ricochet1k/wamux/internal/domain"
	"github.com/ricochet1k/wamux/internal/session"
	"github.com/ricochet1k/wamux/internal/storage"
	"github.com/ricochet1k/wamux/internal/whatsapp"
)

var ErrSupervisorClosed = errors.New("supervisor is shutting down")

const (
	DefaultRetryDelay     = 1500 * time.Millisecond
	DefaultReplyTimeout   = 30 * time.Second
	defaultRestoreWorkers = 4
)

type SupervisorConfig struct {
	Registry    *session.Registry
	Credentials *storage.CredentialStore
	Engine      whatsapp.Engine
	Broadcaster *EventBroadcaster

	// AutoReply may be nil, in which case inbound messages are only logged.
	AutoReply    autoreply.Policy
	Switch       *autoreply.Switch
	SystemPrompt string
	ReplyTimeout time.Duration

	RetryDelay time.Duration
	Logger     zerolog.Logger
}

// Supervisor owns every session's connection lifecycle. HTTP handlers call
// its commands; the protocol engine reports back through per-attempt sinks.
type Supervisor struct {
	registry    *session.Registry
	creds       *storage.CredentialStore
	engine      whatsapp.Engine
	broadcaster *EventBroadcaster

	policy       autoreply.Policy
	sw           *autoreply.Switch
	systemPrompt string
	replyTimeout time.Duration

	retryDelay time.Duration
	log        zerolog.Logger
	starts     singleflight.Group

	ctx    context.Context
	cancel context.CancelFunc

	// lifeMu orders wg.Add against Close.
	lifeMu  sync.Mutex
	closing bool
	wg      sync.WaitGroup
}

func NewSupervisor(cfg SupervisorConfig) *Supervisor {
	ctx, cancel := context.WithCancel(context.Background())

	retryDelay := cfg.RetryDelay
	if retryDelay <= 0 {
		retryDelay = DefaultRetryDelay
	}
	replyTimeout := cfg.ReplyTimeout
	if replyTimeout <= 0 {
		replyTimeout = DefaultReplyTimeout
	}
	sw := cfg.Switch
	if sw == nil {
		sw = autoreply.NewSwitch(true)
	}
	registry := cfg.Registry
	if registry == nil {
		registry = session.NewRegistry(session.DefaultMessageLogCapacity)
	}
	broadcaster := cfg.Broadcaster
	if broadcaster == nil {
		broadcaster = NewEventBroadcaster(0)
	}

	return &Supervisor{
		registry:     registry,
		creds:        cfg.Credentials,
		engine:       cfg.Engine,
		broadcaster:  broadcaster,
		policy:       cfg.AutoReply,
		sw:           sw,
		systemPrompt: cfg.SystemPrompt,
		replyTimeout: replyTimeout,
		retryDelay:   retryDelay,
		log:          cfg.Logger.With().Str("component", "supervisor").Logger(),
		ctx:          ctx,
		cancel:       cancel,
	}
}

func (s *Supervisor) Registry() *session.Registry { return s.registry }

func (s *Supervisor) Broadcaster() *EventBroadcaster { return s.broadcaster }

func (s *Supervisor) AutoReplySwitch() *autoreply.Switch { return s.sw }

func (s *Supervisor) closed() bool {
	select {
	case <-s.ctx.Done():
		return true
	default:
		return false
	}
}

// track registers background work with Close. It reports false once Close
// has begun; the caller must then skip the work.
func (s *Supervisor) track() bool {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()
	if s.closing {
		return false
	}
	s.wg.Add(1)
	return true
}

type startOpts struct {
	auto bool
	// retryGen is set when a retry timer fired; the start is abandoned if
	// that retry was cancelled in the meantime.
	retryGen uint64
}

// Start begins connecting session id, creating it if needed. It returns as
// soon as the attempt is underway; an id that is already connecting, showing
// a QR code or open is returned unchanged. Concurrent calls for one id share
// a single attempt.
func (s *Supervisor) Start(ctx context.Context, id string) (session.Snapshot, error) {
	if err := storage.ValidateSessionID(id); err != nil {
		return session.Snapshot{}, err
	}
	if s.closed() {
		return session.Snapshot{}, ErrSupervisorClosed
	}

	// Joined callers share this execution, so one caller going away must not
	// cancel it for the others.
	shared := context.WithoutCancel(ctx)
	v, err, _ := s.starts.Do(id, func() (interface{}, error) {
		return s.start(shared, id, startOpts{})
	})
	snap, _ := v.(session.Snapshot)
	return snap, err
}

func (s *Supervisor) start(ctx context.Context, id string, opts startOpts) (session.Snapshot, error) {
	rec, created := s.registry.GetOrCreate(id)
	if created {
		s.log.Info().Str("session_id", id).Msg("session created")
	}

	rec.Lock()
	defer rec.Unlock()

	if opts.retryGen != 0 && !rec.RetryDue(opts.retryGen) {
		return rec.Snapshot(), nil
	}
	if rec.Attempting() {
		return rec.Snapshot(), nil
	}
	if s.closed() {
		return rec.Snapshot(), ErrSupervisorClosed
	}
	if err := ctx.Err(); err != nil {
		return rec.Snapshot(), err
	}

	dir, err := s.creds.Ensure(id)
	if err != nil {
		return rec.Snapshot(), errors.Wrap(err, "prepare credential directory")
	}

	// A session that was already reconnecting keeps doing so when a manual
	// start fails; only a fresh or idle session settles back in idle.
	auto := opts.auto || rec.Snapshot().Status == domain.SessionStateClosedRetrying

	res, err := rec.Apply(session.Event{Kind: session.EventStart, Auto: auto})
	if err != nil {
		return rec.Snapshot(), err
	}
	s.runEffects(rec, res, "")

	log := s.log.With().Str("session_id", id).Uint64("gen", res.Gen).Logger()
	log.Info().Bool("auto", auto).Msg("connecting")

	sink := &attemptSink{s: s, rec: rec, gen: res.Gen, log: log}
	conn, err := s.engine.Open(s.ctx, id, dir, sink)
	if err != nil {
		log.Error().Err(err).Msg("open connection failed")
		if failed, aerr := rec.Apply(session.Event{Kind: session.EventOpenFailed, Gen: res.Gen, Auto: auto}); aerr == nil {
			s.runEffects(rec, failed, "open-failed")
		}
		return rec.Snapshot(), domain.NewUpstreamError("open connection", err)
	}

	if !rec.Attach(res.Gen, conn) {
		log.Debug().Msg("attempt superseded while opening, closing connection")
		go conn.Close()
	}
	return rec.Snapshot(), nil
}

// retry is the retry timer callback.
func (s *Supervisor) retry(rec *session.Record, gen uint64) {
	if !rec.RetryDue(gen) || !s.track() {
		return
	}
	defer s.wg.Done()

	if _, err := s.start(s.ctx, rec.ID, startOpts{auto: true, retryGen: gen}); err != nil {
		s.log.Warn().Err(err).Str("session_id", rec.ID).Msg("reconnect attempt failed")
	}
}

// Restore starts every session that has stored credentials. Failures are
// logged and left to the retry policy.
func (s *Supervisor) Restore(ctx context.Context) (int, error) {
	ids, err := s.creds.List()
	if err != nil {
		return 0, errors.Wrap(err, "list stored sessions")
	}

	var g errgroup.Group
	g.SetLimit(defaultRestoreWorkers)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			if _, err := s.start(ctx, id, startOpts{auto: true}); err != nil {
				s.log.Warn().Err(err).Str("session_id", id).Msg("restore failed")
			}
			return nil
		})
	}
	_ = g.Wait()

	s.log.Info().Int("sessions", len(ids)).Msg("restored stored sessions")
	return len(ids), nil
}

// Send delivers a text message through an open session.
func (s *Supervisor) Send(ctx context.Context, id, to, text string) (whatsapp.SendResult, error) {
	rec, ok := s.registry.Get(id)
	if !ok {
		return whatsapp.SendResult{}, errors.Wrapf(domain.ErrNotReady, "session %q does not exist", id)
	}
	conn, snap, ok := rec.OpenConn()
	if !ok {
		return whatsapp.SendResult{}, errors.Wrapf(domain.ErrNotReady, "session %q is %s", id, snap.Status)
	}
	if to == "" || text == "" {
		return whatsapp.SendResult{}, domain.InvalidArgument(`missing "to" or "text"`)
	}

	jid, err := whatsapp.NormalizeRecipient(to)
	if err != nil {
		return whatsapp.SendResult{}, err
	}

	res, err := conn.SendText(ctx, jid, text)
	if err != nil {
		return whatsapp.SendResult{}, domain.NewUpstreamError("send message", err)
	}
	return res, nil
}

// Logout unlinks the device, deletes its credentials and leaves the session
// logged-out. Engine and filesystem failures are logged; the session always
// ends logged-out.
func (s *Supervisor) Logout(ctx context.Context, id string) (session.Snapshot, error) {
	rec, ok := s.registry.Get(id)
	if !ok {
		return session.Snapshot{}, errors.Wrapf(domain.ErrNotFound, "session %q", id)
	}

	rec.Lock()
	defer rec.Unlock()

	log := s.log.With().Str("session_id", id).Logger()

	if conn := rec.Detach(); conn != nil {
		if err := conn.Logout(ctx); err != nil {
			log.Warn().Err(err).Msg("engine logout failed")
		}
		conn.Close()
	}

	res, err := rec.Apply(session.Event{Kind: session.EventLogout})
	if err != nil {
		return rec.Snapshot(), err
	}
	s.runEffects(rec, res, "logout")
	log.Info().Msg("logged out")
	return rec.Snapshot(), nil
}

func (s *Supervisor) Get(id string) (session.Snapshot, error) {
	rec, ok := s.registry.Get(id)
	if !ok {
		return session.Snapshot{}, errors.Wrapf(domain.ErrNotFound, "session %q", id)
	}
	return rec.Snapshot(), nil
}

func (s *Supervisor) Messages(id string) ([]domain.CompactMessage, error) {
	rec, ok := s.registry.Get(id)
	if !ok {
		return nil, errors.Wrapf(domain.ErrNotFound, "session %q", id)
	}
	return rec.Messages(), nil
}

func (s *Supervisor) Sessions() []session.Snapshot {
	recs := s.registry.All()
	out := make([]session.Snapshot, 0, len(recs))
	for _, rec := range recs {
		out = append(out, rec.Snapshot())
	}
	return out
}

// Close stops all retry timers, closes every connection without unlinking
// and waits for in-flight reconnects and auto-replies.
func (s *Supervisor) Close() {
	s.lifeMu.Lock()
	s.closing = true
	s.lifeMu.Unlock()

	s.cancel()
	for _, rec := range s.registry.All() {
		rec.CancelRetry()
		if conn := rec.Detach(); conn != nil {
			conn.Close()
		}
	}
	s.wg.Wait()
}

func (s *Supervisor) apply(rec *session.Record, ev session.Event, reason string) {
	res, err := rec.Apply(ev)
	if err != nil {
		lvl := zerolog.WarnLevel
		if errors.Is(err, session.ErrStaleEvent) {
			lvl = zerolog.DebugLevel
		}
		s.log.WithLevel(lvl).Err(err).Str("session_id", rec.ID).Stringer("event", ev.Kind).Msg("event ignored")
		return
	}
	s.runEffects(rec, res, reason)
}

// runEffects executes the side-effects of an applied transition. It is
// called without the record's field lock held.
func (s *Supervisor) runEffects(rec *session.Record, res session.Result, reason string) {
	if res.Released != nil {
		go res.Released.Close()
	}
	if res.Effects.RemoveCredentials {
		if err := s.creds.Remove(rec.ID); err != nil {
			s.log.Warn().Err(err).Str("session_id", rec.ID).Msg("remove credentials failed")
		}
	}
	if res.Effects.PublishStatus {
		s.broadcaster.Broadcast(domain.NewStatusChangeEvent(rec.ID, res.Old.Status, res.New.Status, res.New.Identity, reason))
	}
	if res.Effects.PublishChallenge {
		s.broadcaster.Broadcast(domain.NewChallengeEvent(rec.ID, res.New.Challenge))
	}
	if res.Effects.ScheduleRetry {
		if rec.ScheduleRetry(s.retryDelay, func(gen uint64) { s.retry(rec, gen) }) {
			s.log.Info().Str("session_id", rec.ID).Dur("delay", s.retryDelay).Msg("reconnect scheduled")
		}
	}
}

// attemptSink routes engine callbacks for one connection attempt.
type attemptSink struct {
	s   *Supervisor
	rec *session.Record
	gen uint64
	log zerolog.Logger
}

func (a *attemptSink) OnChallenge(code string) {
	a.s.apply(a.rec, session.Event{Kind: session.EventChallenge, Gen: a.gen, Challenge: code}, "")
}

func (a *attemptSink) OnPaired() {
	a.log.Info().Msg("paired")
	a.s.apply(a.rec, session.Event{Kind: session.EventPaired, Gen: a.gen}, "paired")
}

func (a *attemptSink) OnConnected(identity string) {
	a.log.Info().Str("identity", identity).Msg("connection open")
	a.s.apply(a.rec, session.Event{Kind: session.EventConnected, Gen: a.gen, Identity: identity}, "")
}

func (a *attemptSink) OnDisconnected(reason domain.DisconnectReason) {
	a.log.Info().Stringer("reason", reason).Msg("connection closed")
	a.s.apply(a.rec, session.Event{Kind: session.EventDisconnected, Gen: a.gen, Reason: reason}, reason.String())
}

func (a *attemptSink) OnMessages(msgs []domain.InboundMessage) {
	a.s.onInbound(a.rec, a.gen, msgs)
}
