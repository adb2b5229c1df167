package main

import (
	"fmt"
	"math/rand"
	"os"
	"sort"
	"time"

	"github.com/buckneer/beastie-club/auth"
	"github.com/buckneer/beastie-club/config"
	"github.com/buckneer/beastie-club/db/localkv"
	"github.com/buckneer/beastie-club/db/redis"
	"github.com/buckneer/beastie-club/events/kafka"
	"github.com/buckneer/beastie-club/logging"
	"github.com/buckneer/beastie-club/provider"
	"github.com/buckneer/beastie-club/server"
	"github.com/buckneer/beastie-club/wheel"
	"github.com/spf13/cobra"
)

var (
	configFile string
	configDir  string
)

var rootCmd = &cobra.Command{
	Use:   "beastieclub",
	Short: "Beastie Club prize wheel service",
	Long:  "Runs the spin eligibility and reward engine behind the Beastie Club loyalty app.",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the prize wheel HTTP server",
	RunE:  runServe,
}

var tokenCmd = &cobra.Command{
	Use:   "token <account-id> [username]",
	Short: "Mint a signed account token for local testing",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runToken,
}

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run spins against the configured prize table and print the outcome distribution",
	RunE:  runSimulate,
}

var (
	simulateSpins int64
	simulateSeed  int64
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "path to config file")
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", ".", "directory containing config.<env>.yaml files")

	simulateCmd.Flags().Int64Var(&simulateSpins, "spins", 100000, "number of spins to simulate")
	simulateCmd.Flags().Int64Var(&simulateSeed, "seed", 0, "random seed (0 seeds from the clock)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(simulateCmd)
}

func loadConfig() (*config.Config, error) {
	if configFile != "" {
		return config.Load(configFile)
	}
	return config.LoadByEnv(configDir)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.New(cfg.Logging)
	logger.Info().Str("environment", cfg.Environment).Msg("Starting Beastie Club prize wheel service")

	redisClient, err := redis.New(cfg.Redis)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer redisClient.Close()

	localStore, err := localkv.Open(cfg.LocalStore.Path)
	if err != nil {
		return fmt.Errorf("open local store: %w", err)
	}
	defer localStore.Close()

	table, err := wheel.LoadTable(cfg.Wheel.TableFile)
	if err != nil {
		return fmt.Errorf("load prize table: %w", err)
	}

	accountStore := provider.NewAccountStore(redisClient, logger)
	guestStore := provider.NewGuestStore(localStore, logger)

	var auditor *provider.AuditProvider
	if len(cfg.Kafka.Brokers) > 0 {
		producer, perr := kafka.NewProducer(cfg.Kafka.Brokers)
		if perr != nil {
			return fmt.Errorf("create kafka producer: %w", perr)
		}
		defer producer.Close()
		auditor = provider.NewAuditProvider(producer, cfg.Kafka.Topics["spins"], cfg.Kafka.Topics["transfers"], logger)

		if topic := cfg.Kafka.Topics["redemptions"]; topic != "" {
			consumer := kafka.NewConsumer(kafka.ConsumerConfig{
				Brokers:       cfg.Kafka.Brokers,
				Topic:         topic,
				ConsumerGroup: cfg.Kafka.ConsumerGroup,
				Logger:        logger,
			}, accountStore)
			if cerr := consumer.Start(); cerr != nil {
				return fmt.Errorf("start kafka consumer: %w", cerr)
			}
			defer consumer.Stop()
		}
	} else {
		auditor = provider.NewAuditProvider(nil, "", "", logger)
		logger.Warn().Msg("No Kafka brokers configured, spin auditing disabled")
	}

	notifier := provider.NewNotifyProvider(cfg.AdminWebhook, logger)

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	app := server.New(server.Options{
		Config:       cfg,
		Logger:       logger,
		Table:        table,
		Selector:     wheel.NewSelector(table, rng),
		GuestStore:   guestStore,
		AccountStore: accountStore,
		Auditor:      auditor,
		Notifier:     notifier,
	})

	app.UseCommonMiddlewares()
	app.RegisterHealthCheck()
	app.RegisterWheelRoutes()

	if cfg.IsDevelopment() {
		app.RegisterSwagger(server.SwaggerInfo{
			Title:    "Beastie Club Prize Wheel API",
			Version:  "1.0",
			BasePath: "/api",
		}, nil)
	}

	return app.Run()
}

func runToken(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.JWT.Secret == "" {
		return fmt.Errorf("jwt secret is not configured")
	}

	accountID := args[0]
	username := ""
	if len(args) > 1 {
		username = args[1]
	}

	token, err := auth.GenerateToken(cfg.JWT.Secret, accountID, username, cfg.JWT.Expiration)
	if err != nil {
		return fmt.Errorf("generate token: %w", err)
	}

	fmt.Println(token)
	return nil
}

func runSimulate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	table, err := wheel.LoadTable(cfg.Wheel.TableFile)
	if err != nil {
		return fmt.Errorf("load prize table: %w", err)
	}

	seed := simulateSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	selector := wheel.NewSelector(table, rand.New(rand.NewSource(seed)))

	counts := make(map[string]int64)
	for i := int64(0); i < simulateSpins; i++ {
		counts[selector.SelectOutcome().Label]++
	}

	labels := make([]string, 0, len(counts))
	for label := range counts {
		labels = append(labels, label)
	}
	sort.Slice(labels, func(i, j int) bool { return counts[labels[i]] > counts[labels[j]] })

	fmt.Printf("Spins: %d (seed %d)\n", simulateSpins, seed)
	for _, label := range labels {
		fmt.Printf("  %-12s %8d  (%.2f%%)\n", label, counts[label], float64(counts[label])*100/float64(simulateSpins))
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
