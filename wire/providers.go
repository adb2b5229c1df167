package wire

import (
	"math/rand"
	"time"

	"github.com/buckneer/beastie-club/config"
	"github.com/buckneer/beastie-club/db/localkv"
	"github.com/buckneer/beastie-club/db/redis"
	"github.com/buckneer/beastie-club/events/kafka"
	"github.com/buckneer/beastie-club/logging"
	"github.com/buckneer/beastie-club/provider"
	"github.com/buckneer/beastie-club/server"
	"github.com/buckneer/beastie-club/wheel"
	"github.com/google/wire"
	"github.com/rs/zerolog"
)

// ProvideLogger provides a zerolog.Logger
func ProvideLogger(cfg *config.Config) zerolog.Logger {
	return logging.New(cfg.Logging)
}

// ProvideRedisClient provides a Redis client
func ProvideRedisClient(cfg *config.Config) (*redis.Client, error) {
	return redis.New(cfg.Redis)
}

// ProvideLocalStore provides the SQLite key-value store
func ProvideLocalStore(cfg *config.Config) (*localkv.Store, error) {
	return localkv.Open(cfg.LocalStore.Path)
}

// ProvideTable provides the prize table (config file or built-in default)
func ProvideTable(cfg *config.Config) (*wheel.Table, error) {
	return wheel.LoadTable(cfg.Wheel.TableFile)
}

// ProvideAccountStore provides the Redis-backed account store
func ProvideAccountStore(client *redis.Client, logger zerolog.Logger) *provider.AccountStore {
	return provider.NewAccountStore(client, logger)
}

// ProvideGuestStore provides the local guest store
func ProvideGuestStore(store *localkv.Store, logger zerolog.Logger) *provider.GuestStore {
	return provider.NewGuestStore(store, logger)
}

// ProvideSelector provides the weighted selector over the prize table
func ProvideSelector(table *wheel.Table) *wheel.Selector {
	return wheel.NewSelector(table, rand.New(rand.NewSource(time.Now().UnixNano())))
}

// ProvideKafkaProducer provides the Kafka producer, nil when no brokers
// are configured
func ProvideKafkaProducer(cfg *config.Config) (*kafka.Producer, error) {
	if len(cfg.Kafka.Brokers) == 0 {
		return nil, nil
	}
	return kafka.NewProducer(cfg.Kafka.Brokers)
}

// ProvideAuditor provides the Kafka-backed spin auditor
func ProvideAuditor(cfg *config.Config, producer *kafka.Producer, logger zerolog.Logger) *provider.AuditProvider {
	return provider.NewAuditProvider(producer, cfg.Kafka.Topics["spins"], cfg.Kafka.Topics["transfers"], logger)
}

// ProvideNotifier provides the admin webhook notifier
func ProvideNotifier(cfg *config.Config, logger zerolog.Logger) *provider.NotifyProvider {
	return provider.NewNotifyProvider(cfg.AdminWebhook, logger)
}

// ProvideServerOptions assembles the server options
func ProvideServerOptions(
	cfg *config.Config,
	logger zerolog.Logger,
	table *wheel.Table,
	selector *wheel.Selector,
	guestStore *provider.GuestStore,
	accountStore *provider.AccountStore,
	auditor *provider.AuditProvider,
	notifier *provider.NotifyProvider,
) server.Options {
	return server.Options{
		Config:       cfg,
		Logger:       logger,
		Table:        table,
		Selector:     selector,
		GuestStore:   guestStore,
		AccountStore: accountStore,
		Auditor:      auditor,
		Notifier:     notifier,
	}
}

// ProvideApp provides the main application
func ProvideApp(opts server.Options) *server.App {
	return server.New(opts)
}

// ConfigSet is the wire provider set for configuration
var ConfigSet = wire.NewSet(
	config.Load,
)

// LoggingSet is the wire provider set for logging
var LoggingSet = wire.NewSet(
	ProvideLogger,
)

// StorageSet is the wire provider set for the stores
var StorageSet = wire.NewSet(
	ProvideRedisClient,
	ProvideLocalStore,
	ProvideAccountStore,
	ProvideGuestStore,
)

// WheelSet is the wire provider set for the prize table and selector
var WheelSet = wire.NewSet(
	ProvideTable,
	ProvideSelector,
)

// EventsSet is the wire provider set for Kafka publishing
var EventsSet = wire.NewSet(
	ProvideKafkaProducer,
	ProvideAuditor,
	ProvideNotifier,
)

// ServerSet is the wire provider set for server
var ServerSet = wire.NewSet(
	ProvideServerOptions,
	ProvideApp,
)

// DefaultSet is the default wire provider set including all common providers
var DefaultSet = wire.NewSet(
	LoggingSet,
	WheelSet,
	ServerSet,
)

// FullSet includes all providers including storage and events
var FullSet = wire.NewSet(
	DefaultSet,
	StorageSet,
	EventsSet,
)
