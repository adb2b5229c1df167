package eligibility

import (
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Subscription is a single listener on one subject's eligibility.
type Subscription struct {
	ID      string
	Subject string
	Channel chan Update
}

// Broadcaster fans eligibility updates out to per-subject subscribers.
// Sends are non-blocking; a slow subscriber drops updates rather than
// stalling the publisher.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[string][]*Subscription
	logger      zerolog.Logger
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster(logger zerolog.Logger) *Broadcaster {
	return &Broadcaster{
		subscribers: make(map[string][]*Subscription),
		logger:      logger,
	}
}

// Subscribe registers a listener for a subject.
func (b *Broadcaster) Subscribe(subject string) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &Subscription{
		ID:      uuid.New().String(),
		Subject: subject,
		Channel: make(chan Update, 10),
	}
	b.subscribers[subject] = append(b.subscribers[subject], sub)

	b.logger.Debug().
		Str("subject", subject).
		Str("sub_id", sub.ID).
		Msg("New subscription added")

	return sub
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Broadcaster) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, exists := b.subscribers[sub.Subject]
	if !exists {
		return
	}

	newSubs := make([]*Subscription, 0, len(subs))
	for _, s := range subs {
		if s.ID == sub.ID {
			close(s.Channel)
			continue
		}
		newSubs = append(newSubs, s)
	}

	if len(newSubs) == 0 {
		delete(b.subscribers, sub.Subject)
	} else {
		b.subscribers[sub.Subject] = newSubs
	}

	b.logger.Debug().
		Str("subject", sub.Subject).
		Str("sub_id", sub.ID).
		Msg("Subscription removed")
}

// Publish delivers an update to every subscriber of its subject.
func (b *Broadcaster) Publish(update Update) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subscribers[update.Subject] {
		select {
		case sub.Channel <- update:
		default:
			b.logger.Warn().
				Str("sub_id", sub.ID).
				Str("subject", update.Subject).
				Msg("Subscriber channel full, dropping update")
		}
	}
}

// Subjects returns the subjects that currently have subscribers.
func (b *Broadcaster) Subjects() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	subjects := make([]string, 0, len(b.subscribers))
	for subject := range b.subscribers {
		subjects = append(subjects, subject)
	}
	return subjects
}
