package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/gorilla/mux"
	"github.com/jessevdk/go-flags"

	"reminderbot/clients/discord"
	"reminderbot/config"
	"reminderbot/core"
	"reminderbot/core/log"
	"reminderbot/handlers"
	"reminderbot/metrics"
	"reminderbot/services"
	"reminderbot/services/backendswitch"
	"reminderbot/services/dispatcher"
	"reminderbot/services/eventcache"
	"reminderbot/services/reconciler"
	"reminderbot/services/scheduler"
	"reminderbot/usecases/reminders"
)

type Options struct {
	MigrateTo string `long:"migrate-to" description:"Copy every event to another storage backend, verify the copy and exit" choice:"json" choice:"bolt" choice:"sqlite" choice:"postgres"`
	Debug     bool   `long:"debug" description:"Enable debug logging"`
}

func main() {
	var opts Options
	parser := flags.NewParser(&opts, flags.Default)

	if _, err := parser.Parse(); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := run(opts); err != nil {
		log.Error("❌ Fatal error: %v", err)
		os.Exit(1)
	}
}

func run(opts Options) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	level := cfg.LogLevel
	if opts.Debug {
		level = "debug"
	}
	log.Configure(os.Stdout, level, cfg.LogFormat == "json")

	ctx := context.Background()

	repo, err := openRepository(ctx, cfg.Storage, cfg.Storage.Backend, cfg.Scheduler.DefaultInterval)
	if err != nil {
		return fmt.Errorf("failed to open %s storage: %w", cfg.Storage.Backend, err)
	}
	defer repo.Close()

	cache := eventcache.NewEventCache(repo)
	loaded, err := cache.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load events: %w", err)
	}
	log.Info("✅ Loaded %d watched events from %s", loaded, repo.Name())

	if opts.MigrateTo != "" {
		return migrate(ctx, cfg, backendswitch.NewBackendSwitcher(cache), opts.MigrateTo)
	}

	session, err := discordgo.New("Bot " + cfg.DiscordBotToken)
	if err != nil {
		return fmt.Errorf("failed to create Discord session: %w", err)
	}

	clock := core.SystemClock()
	client := discord.NewDiscordClient(session)
	eventReconciler := reconciler.NewReactionReconciler(cache, client, clock)
	reminderDispatcher := dispatcher.NewReminderDispatcher(cache, eventReconciler, client, clock, cfg.Scheduler.MentionCap)
	reminderScheduler := scheduler.NewReminderScheduler(cache, reminderDispatcher, clock, core.Sleep, scheduler.Config{
		TickInterval:  cfg.Scheduler.TickInterval,
		DueTolerance:  cfg.Scheduler.DueTolerance,
		DispatchDelay: cfg.Scheduler.DispatchDelay,
		EventTimeout:  cfg.Scheduler.EventTimeout,
		SyncInterval:  cfg.Scheduler.SyncInterval,
		ShutdownGrace: cfg.Scheduler.ShutdownGrace,
	})

	remindersUseCase := reminders.NewRemindersUseCase(
		cache,
		eventReconciler,
		reminderDispatcher,
		reminderScheduler,
		client,
		clock,
		cfg.Scheduler.DefaultInterval,
	)
	commandsHandler := handlers.NewCommandsHandler(remindersUseCase, cfg.CommandPrefix)
	bot := handlers.NewDiscordEventsHandler(session, client, eventReconciler, remindersUseCase, commandsHandler)

	if err := bot.StartBot(); err != nil {
		return err
	}
	reminderScheduler.Start(ctx)

	var server *http.Server
	if cfg.MetricsAddr != "" {
		router := mux.NewRouter()
		router.Handle("/metrics", metrics.Handler()).Methods("GET")
		router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			if _, err := fmt.Fprintf(w, `{"status":"ok","events":%d}`, cache.Len()); err != nil {
				log.Error("❌ Failed to write health check response: %v", err)
			}
		}).Methods("GET")

		server = &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           router,
			ReadHeaderTimeout: 30 * time.Second,
		}
	}

	return handleGracefulShutdown(server, bot, reminderScheduler)
}

func handleGracefulShutdown(server *http.Server, bot *handlers.DiscordEventsHandler, sched *scheduler.ReminderScheduler) error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	if server != nil {
		go func() {
			log.Info("✅ Serving metrics on %s", server.Addr)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("❌ Metrics server error: %v", err)
			}
		}()
	}

	<-stop
	log.Info("🛑 Shutdown signal received, cleaning up...")

	// no new reactions may arrive while the final flush runs
	bot.StopBot()
	report := sched.Stop()

	if server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			log.Error("❌ Metrics server shutdown error: %v", err)
		}
	}

	if err := report.Err(); err != nil {
		return fmt.Errorf("final flush failed: %w", err)
	}
	log.Info("✅ Stopped gracefully")
	return nil
}

// migrate switches the cache to the target backend and exits. STORAGE_BACKEND must be updated afterwards.
func migrate(ctx context.Context, cfg *config.AppConfig, switcher services.BackendSwitcher, target string) error {
	if target == cfg.Storage.Backend {
		return fmt.Errorf("%s is already the configured backend", target)
	}
	storage := cfg.Storage
	storage.Backend = target
	if err := storage.Validate(); err != nil {
		return err
	}

	next, err := openRepository(ctx, storage, target, cfg.Scheduler.DefaultInterval)
	if err != nil {
		return fmt.Errorf("failed to open %s storage: %w", target, err)
	}
	defer next.Close()

	report, err := switcher.SwitchBackend(ctx, next)
	if err != nil {
		return err
	}

	log.Info("✅ Migrated %d events from %s to %s (%d verified). Set STORAGE_BACKEND=%s before the next start.",
		report.Copied, report.From, report.To, report.Verified, target)
	return nil
}
