package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/sweetline/confectioner/internal/api"
	"github.com/sweetline/confectioner/internal/avito"
	"github.com/sweetline/confectioner/internal/extract"
	"github.com/sweetline/confectioner/internal/genai"
	"github.com/sweetline/confectioner/internal/messaging"
	"github.com/sweetline/confectioner/internal/scheduler"
	"github.com/sweetline/confectioner/internal/session"
	"github.com/sweetline/confectioner/internal/store"
	"github.com/sweetline/confectioner/internal/twiliochat"
	"github.com/sweetline/confectioner/internal/util"
	"github.com/sweetline/confectioner/internal/vk"
	"github.com/sweetline/confectioner/internal/whatsapp"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for service state data
	DefaultStateDir = "/var/lib/confectioner"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "confectioner.db"
	// WhatsApp provider names accepted in configuration
	ProviderWhatsmeow = "whatsmeow"
	ProviderTwilio    = "twilio"
)

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)

	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	slog.Info("Bootstrapping order intake service")
	if err := run(flags); err != nil {
		slog.Error("Service failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("Service exited successfully")
}

// Config holds environment configuration
type Config struct {
	DatabaseURL      string
	StateDir         string
	OpenAIKey        string
	APIAddr          string
	WhatsAppEnabled  bool
	WhatsAppProvider string
	VKEnabled        bool
	AvitoEnabled     bool
	StaffChatID      string
	SessionMaxAge    time.Duration
	ExpirySchedule   string
}

// Flags holds command line flag values
type Flags struct {
	qrOutput         *string
	numeric          *bool
	stateDir         *string
	dbDSN            *string
	openaiKey        *string
	apiAddr          *string
	whatsappEnabled  *bool
	whatsappProvider *string
	vkEnabled        *bool
	avitoEnabled     *bool
	staffChatID      *string
	sessionMaxAge    *time.Duration
	expirySchedule   *string
}

// initializeLogger sets up structured logging with debug level
func initializeLogger() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		StateDir:         util.GetEnv("CONFECTIONER_STATE_DIR", DefaultStateDir),
		OpenAIKey:        os.Getenv("OPENAI_API_KEY"),
		APIAddr:          os.Getenv("API_ADDR"),
		WhatsAppEnabled:  util.ParseBoolEnv("WHATSAPP_ENABLED", true),
		WhatsAppProvider: util.GetEnv("WHATSAPP_PROVIDER", ProviderWhatsmeow),
		VKEnabled:        util.ParseBoolEnv("VK_ENABLED", false),
		AvitoEnabled:     util.ParseBoolEnv("AVITO_ENABLED", false),
		StaffChatID:      os.Getenv("STAFF_CHAT_ID"),
		SessionMaxAge:    util.ParseDurationEnv("SESSION_MAX_AGE", session.DefaultMaxAge),
		ExpirySchedule:   util.GetEnv("EXPIRY_SCHEDULE", scheduler.DefaultExpirySchedule),
	}

	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}

	slog.Debug("environment variables loaded",
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"CONFECTIONER_STATE_DIR", config.StateDir,
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"API_ADDR", config.APIAddr,
		"WHATSAPP_ENABLED", config.WhatsAppEnabled,
		"WHATSAPP_PROVIDER", config.WhatsAppProvider,
		"VK_ENABLED", config.VKEnabled,
		"AVITO_ENABLED", config.AvitoEnabled,
		"STAFF_CHAT_ID_SET", config.StaffChatID != "",
		"SESSION_MAX_AGE", config.SessionMaxAge,
		"EXPIRY_SCHEDULE", config.ExpirySchedule)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		qrOutput:         flag.String("qr-output", "", "path to write WhatsApp login QR code"),
		numeric:          flag.Bool("numeric-code", false, "use numeric WhatsApp login code instead of QR code"),
		stateDir:         flag.String("state-dir", config.StateDir, "state directory for service data (overrides $CONFECTIONER_STATE_DIR)"),
		dbDSN:            flag.String("db-dsn", config.DatabaseURL, "database DSN (overrides $DATABASE_URL)"),
		openaiKey:        flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)"),
		apiAddr:          flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		whatsappEnabled:  flag.Bool("whatsapp", config.WhatsAppEnabled, "enable the WhatsApp channel (overrides $WHATSAPP_ENABLED)"),
		whatsappProvider: flag.String("whatsapp-provider", config.WhatsAppProvider, "WhatsApp provider: whatsmeow or twilio (overrides $WHATSAPP_PROVIDER)"),
		vkEnabled:        flag.Bool("vk", config.VKEnabled, "enable the VK channel (overrides $VK_ENABLED)"),
		avitoEnabled:     flag.Bool("avito", config.AvitoEnabled, "enable the Avito channel (overrides $AVITO_ENABLED)"),
		staffChatID:      flag.String("staff-chat-id", config.StaffChatID, "conversation that receives new-order notifications (overrides $STAFF_CHAT_ID)"),
		sessionMaxAge:    flag.Duration("session-max-age", config.SessionMaxAge, "idle conversation expiry age (overrides $SESSION_MAX_AGE)"),
		expirySchedule:   flag.String("expiry-schedule", config.ExpirySchedule, "cron schedule of the expiry sweep (overrides $EXPIRY_SCHEDULE)"),
	}

	flag.Parse()

	// Update database DSN if not explicitly set but state directory is provided
	if *flags.dbDSN == config.DatabaseURL && config.DatabaseURL == filepath.Join(config.StateDir, DefaultDBFileName) && *flags.stateDir != config.StateDir {
		*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultDBFileName)
		slog.Debug("Updated dbDSN based on state directory", "new_state_dir", *flags.stateDir)
	}

	return flags
}

// ensureDirectoriesExist creates necessary directories for file-based storage
func ensureDirectoriesExist(flags Flags) error {
	if store.DetectDSNType(*flags.dbDSN) == "sqlite" {
		stateDir := filepath.Dir(*flags.dbDSN)
		slog.Debug("Creating state directory for file-based database", "state_dir", stateDir)
		if err := os.MkdirAll(stateDir, 0755); err != nil {
			return err
		}
	}
	return nil
}

// buildStore selects the store backend from the DSN.
func buildStore(flags Flags) (store.Store, error) {
	if store.DetectDSNType(*flags.dbDSN) == "postgres" {
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store")
		return store.NewPostgresStore(store.WithDSN(*flags.dbDSN))
	}
	slog.Debug("Detected SQLite DSN, configuring SQLite store", "db_path", *flags.dbDSN)
	return store.NewSQLiteStore(store.WithDSN(*flags.dbDSN))
}

// buildWhatsAppService constructs the WhatsApp channel for the configured provider.
func buildWhatsAppService(flags Flags) (messaging.Service, error) {
	switch strings.ToLower(*flags.whatsappProvider) {
	case ProviderTwilio:
		client, err := twiliochat.NewClient()
		if err != nil {
			return nil, err
		}
		return messaging.NewTwilioService(client), nil
	default:
		var waOpts []whatsapp.Option
		if *flags.qrOutput != "" {
			waOpts = append(waOpts, whatsapp.WithQRCodeOutput(*flags.qrOutput))
		}
		if *flags.numeric {
			waOpts = append(waOpts, whatsapp.WithNumericCode())
		}
		waOpts = append(waOpts, whatsapp.WithDBDSN(filepath.Join(*flags.stateDir, "whatsmeow.db")))
		client, err := whatsapp.NewClient(waOpts...)
		if err != nil {
			return nil, err
		}
		return messaging.NewWhatsAppService(client), nil
	}
}

func run(flags Flags) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := buildStore(flags)
	if err != nil {
		return err
	}
	defer st.Close()

	var genaiOpts []genai.Option
	if *flags.openaiKey != "" {
		genaiOpts = append(genaiOpts, genai.WithAPIKey(*flags.openaiKey))
	}
	ai, err := genai.NewClient(genaiOpts...)
	if err != nil {
		return err
	}

	extractor := extract.NewGenAIExtractor(ai)
	sessions := session.NewStore()

	sched := scheduler.NewScheduler()
	defer sched.Stop()
	if err := sched.AddExpirySweep(*flags.expirySchedule, sessions, *flags.sessionMaxAge); err != nil {
		return err
	}
	slog.Info("Conversation expiry sweep scheduled", "schedule", *flags.expirySchedule, "max_age", *flags.sessionMaxAge)

	// One service plus dispatcher per enabled channel. All dispatchers share
	// the session store, persistence and AI layers.
	var services []messaging.Service
	var apiOpts []api.Option
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}

	if *flags.whatsappEnabled {
		svc, err := buildWhatsAppService(flags)
		if err != nil {
			return err
		}
		services = append(services, svc)
		if twilioSvc, ok := svc.(*messaging.TwilioService); ok {
			apiOpts = append(apiOpts, api.WithTwilioWebhook(twilioSvc.WebhookHandler))
		}
		slog.Info("WhatsApp channel enabled", "provider", *flags.whatsappProvider)
	}

	if *flags.vkEnabled {
		client, err := vk.NewClient()
		if err != nil {
			return err
		}
		svc := messaging.NewVKService(client)
		services = append(services, svc)
		apiOpts = append(apiOpts, api.WithVKWebhook(svc.WebhookHandler))
		slog.Info("VK channel enabled")
	}

	if *flags.avitoEnabled {
		client, err := avito.NewClient(ctx)
		if err != nil {
			return err
		}
		services = append(services, messaging.NewAvitoService(client))
		slog.Info("Avito channel enabled")
	}

	if len(services) == 0 {
		slog.Warn("No messaging channels enabled, only the HTTP API will run")
	}

	var dispatcherOpts []messaging.DispatcherOption
	if *flags.staffChatID != "" {
		dispatcherOpts = append(dispatcherOpts, messaging.WithStaffConversation(*flags.staffChatID))
	}

	var wg sync.WaitGroup
	for _, svc := range services {
		d := messaging.NewDispatcher(svc, sessions, st, extractor, ai, dispatcherOpts...)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := d.Run(ctx); err != nil && ctx.Err() == nil {
				slog.Error("Dispatcher terminated", "error", err)
				stop()
			}
		}()
	}

	server := api.NewServer(st, apiOpts...)
	err = server.Run(ctx)

	wg.Wait()
	return err
}
