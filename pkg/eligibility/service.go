package eligibility

import (
	"context"
	"sync"
	"time"

	"github.com/buckneer/beastie-club/wheel"
	"github.com/rs/zerolog"
)

// DefaultTickInterval is how often subscribed identities are re-evaluated.
const DefaultTickInterval = 60 * time.Second

// Service re-evaluates the eligibility of every subscribed identity on a
// fixed tick and whenever a spin or transfer invalidates it. It is
// transport-agnostic: the HTTP layer wires SSE and WebSocket connections
// onto Subscribe.
type Service struct {
	mu         sync.RWMutex
	identities map[string]wheel.Identity

	broad     *Broadcaster
	evaluator Evaluator
	logger    zerolog.Logger
	interval  time.Duration
	ticker    *time.Ticker
	stopChan  chan struct{}
	stopOnce  sync.Once
	now       func() time.Time
}

// ServiceConfig holds eligibility service configuration.
type ServiceConfig struct {
	Evaluator    Evaluator
	Logger       zerolog.Logger
	TickInterval time.Duration
}

// NewService creates and starts an eligibility service.
func NewService(cfg ServiceConfig) *Service {
	interval := cfg.TickInterval
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	s := &Service{
		identities: make(map[string]wheel.Identity),
		broad:      NewBroadcaster(cfg.Logger),
		evaluator:  cfg.Evaluator,
		logger:     cfg.Logger.With().Str("component", "eligibility").Logger(),
		interval:   interval,
		stopChan:   make(chan struct{}),
		now:        time.Now,
	}
	s.start()
	return s
}

// Subscribe registers a listener for an identity and immediately pushes
// the current snapshot so clients never wait a full tick for their first
// update.
func (s *Service) Subscribe(ctx context.Context, identity wheel.Identity) *Subscription {
	key := identity.String()

	s.mu.Lock()
	s.identities[key] = identity
	s.mu.Unlock()

	sub := s.broad.Subscribe(key)

	if update, ok := s.evaluate(ctx, identity); ok {
		select {
		case sub.Channel <- update:
		default:
		}
	}

	return sub
}

// Unsubscribe removes a listener. The identity stops being re-evaluated
// once its last listener is gone.
func (s *Service) Unsubscribe(sub *Subscription) {
	s.broad.Unsubscribe(sub)

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hasSubscribers(sub.Subject) {
		delete(s.identities, sub.Subject)
	}
}

func (s *Service) hasSubscribers(subject string) bool {
	for _, active := range s.broad.Subjects() {
		if active == subject {
			return true
		}
	}
	return false
}

// Invalidate re-evaluates an identity out of band, e.g. right after a
// spin flips it to blocked or a transfer moves its record.
func (s *Service) Invalidate(ctx context.Context, identity wheel.Identity) {
	if update, ok := s.evaluate(ctx, identity); ok {
		s.broad.Publish(update)
	}
}

// Stop stops the tick loop.
func (s *Service) Stop() {
	s.stopOnce.Do(func() {
		s.ticker.Stop()
		close(s.stopChan)
	})
}

func (s *Service) start() {
	s.ticker = time.NewTicker(s.interval)
	go s.loop()
}

func (s *Service) loop() {
	for {
		select {
		case <-s.stopChan:
			return
		case <-s.ticker.C:
			s.tick()
		}
	}
}

// tick re-evaluates every subscribed identity and publishes the snapshot.
func (s *Service) tick() {
	s.mu.RLock()
	identities := make([]wheel.Identity, 0, len(s.identities))
	for _, identity := range s.identities {
		identities = append(identities, identity)
	}
	s.mu.RUnlock()

	if len(identities) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for _, identity := range identities {
		if update, ok := s.evaluate(ctx, identity); ok {
			s.broad.Publish(update)
		}
	}
}

func (s *Service) evaluate(ctx context.Context, identity wheel.Identity) (Update, bool) {
	e, err := s.evaluator.Eligibility(ctx, identity)
	if err != nil {
		s.logger.Warn().Err(err).
			Str("identity", identity.String()).
			Msg("Failed to evaluate eligibility")
		return Update{}, false
	}

	return UpdateFrom(identity, e, s.now()), true
}
