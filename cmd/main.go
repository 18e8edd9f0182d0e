package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"account_orchestrator/config"
	"account_orchestrator/internal/automation"
	"account_orchestrator/internal/delivery/cron"
	"account_orchestrator/internal/delivery/httpapi"
	"account_orchestrator/internal/domain"
	"account_orchestrator/internal/infrastructure/browser"
	"account_orchestrator/internal/infrastructure/httpclient"
	"account_orchestrator/internal/infrastructure/shadowban"
	"account_orchestrator/internal/logger"
	"account_orchestrator/internal/repository/memory"
	sqliterepo "account_orchestrator/internal/repository/sqlite"
	"account_orchestrator/internal/usecase"
)

// repositories bundles the stores selected by database.url
type repositories struct {
	accounts domain.AccountRepository
	posts    domain.PostRepository
	media    domain.MediaRepository
	proxies  domain.ProxyRepository
	db       *sql.DB
}

func (r *repositories) Close() error {
	if r.db == nil {
		return nil
	}
	return r.db.Close()
}

func openRepositories(databaseURL string) (*repositories, error) {
	if strings.EqualFold(databaseURL, "memory") {
		logger.Info().Println("Using in-memory storage; nothing survives a restart")
		return &repositories{
			accounts: memory.NewAccountRepository(),
			posts:    memory.NewPostRepository(),
			media:    memory.NewMediaRepository(),
			proxies:  memory.NewProxyRepository(),
		}, nil
	}

	db, err := sqliterepo.Open(databaseURL)
	if err != nil {
		return nil, err
	}
	return &repositories{
		accounts: sqliterepo.NewAccountRepository(db),
		posts:    sqliterepo.NewPostRepository(db),
		media:    sqliterepo.NewMediaRepository(db),
		proxies:  sqliterepo.NewProxyRepository(db),
		db:       db,
	}, nil
}

func main() {
	// Parse command line flags
	configPath := flag.String("config", "", "Path to config.yaml")
	loginMode := flag.Bool("login", false, "Run in interactive login mode to save an account's cookies")
	loginAccount := flag.String("account", "", "Account id or username for -login")
	flag.Parse()

	// Load configuration from YAML file
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if _, err := logger.Initialize(cfg); err != nil {
		log.Fatalf("Failed to initialize logging: %v", err)
	}
	defer func() {
		if err := logger.Close(); err != nil {
			log.Printf("Failed to close log files: %v", err)
		}
	}()

	repos, err := openRepositories(cfg.DatabaseURL)
	if err != nil {
		logger.Error().Fatalf("Failed to open database: %v", err)
	}
	defer repos.Close()

	// Initialize use cases
	accountManager := usecase.NewAccountManager(repos.accounts, repos.proxies)
	bootstrapAccounts(context.Background(), cfg, accountManager)

	driver := browser.NewDriver(browser.Options{
		Headless:   cfg.BrowserHeadless,
		UserAgent:  cfg.BrowserUserAgent,
		BaseURL:    cfg.PlatformBaseURL,
		CookiesDir: cfg.BrowserCookiesDir,
	})

	// Handle login mode
	if *loginMode {
		handleLoginMode(cfg, accountManager, repos.proxies, driver, *loginAccount)
		return
	}

	// Initialize HTTP client
	httpClient := httpclient.NewHTTPClient(cfg)
	defer httpClient.CloseIdleConnections()

	executor := automation.NewExecutor(automation.Drivers{
		Status:     driver,
		ShadowBan:  shadowban.NewProber(cfg.ShadowBanAPIURL, httpClient),
		Engagement: driver,
		Publisher:  driver,
	}, automation.Timeouts{
		Check:      cfg.CheckTimeout,
		ShadowBan:  cfg.ShadowBanTimeout,
		Engagement: cfg.EngagementTimeout,
		Post:       cfg.PostTimeout,
	})

	workers := automation.NewScheduler(
		automation.Options{
			MaxConcurrency:       cfg.MaxConcurrency,
			SessionRetryLimit:    cfg.SessionRetryLimit,
			SessionRetryInterval: cfg.SessionRetryInterval,
			DispatchPerMinute:    cfg.DispatchPerMinute,
		},
		automation.NewSessionRegistry(),
		executor,
		automation.NewRetryPolicy(cfg.RetryInitialDelay, cfg.RetryMaxDelay, cfg.RetryMaxAttempts),
		automation.NewProgressReporter(),
		repos.accounts,
		repos.proxies,
	)
	workers.Start(context.Background())

	postScheduler := usecase.NewPostScheduler(repos.posts, repos.accounts, repos.media, workers)
	dispatched, err := postScheduler.Recover(context.Background())
	if err != nil {
		logger.Error().Fatalf("Failed to recover scheduled posts: %v", err)
	}
	if dispatched > 0 {
		logger.Info().Printf("Dispatched %d overdue post(s) on startup", dispatched)
	}

	commands := usecase.NewAutomation(workers, repos.accounts, postScheduler)
	accountMonitor := usecase.NewAccountMonitor(commands, cfg.ShadowBanAPIURL != "", 0)

	// Initialize and start cron scheduler
	scheduler := cron.NewScheduler(cfg, postScheduler, accountMonitor)
	if err := scheduler.Start(); err != nil {
		logger.Error().Fatalf("Failed to start scheduler: %v", err)
	}

	// Start HTTP API server for runtime management
	apiServer := httpapi.NewServer(cfg, accountManager, commands, repos.media)
	if err := apiServer.Start(); err != nil {
		logger.Error().Fatalf("Failed to start HTTP API server: %v", err)
	}

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info().Printf("Application started with %d worker(s). Press Ctrl+C to stop.", cfg.MaxConcurrency)
	<-sigChan

	// Graceful shutdown
	logger.Info().Println("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Printf("HTTP API shutdown error: %v", err)
	}
	scheduler.Stop()
	workers.Stop()
	postScheduler.Wait()
	logger.Info().Printf("Application stopped. %s", workers.Stats())
}

func handleLoginMode(cfg *config.Config, accounts *usecase.AccountManager, proxies domain.ProxyRepository, driver *browser.Driver, ref string) {
	if ref == "" {
		logger.Error().Fatal("-login needs -account <id or username>")
	}
	if cfg.BrowserCookiesDir == "" {
		logger.Error().Fatal("browser.cookies_dir is not set in config.yaml")
	}

	ctx := context.Background()
	account, err := resolveAccount(ctx, accounts, ref)
	if err != nil {
		logger.Error().Fatalf("Login failed: %v", err)
	}

	proxy := account.Proxy
	if proxy == "" {
		if proxy, err = proxies.ProxyFor(ctx, account.ID); err != nil {
			logger.Error().Fatalf("Failed to resolve proxy for @%s: %v", account.Username, err)
		}
	}

	logger.Info().Printf("Starting interactive login for @%s (%s)...", account.Username, account.ID)
	if err := driver.LoginAndSaveCookies(ctx, account.ID, proxy, 5*time.Minute); err != nil {
		logger.Error().Fatalf("Login failed: %v", err)
	}
	logger.Info().Println("Login successful! Cookies saved. You can now run the tool normally.")
}

func resolveAccount(ctx context.Context, accounts *usecase.AccountManager, ref string) (*domain.Account, error) {
	account, err := accounts.GetAccount(ctx, ref)
	if err == nil {
		return account, nil
	}
	if domain.CodeOf(err) != domain.CodeNotFound {
		return nil, err
	}
	all, listErr := accounts.ListAccounts(ctx, false)
	if listErr != nil {
		return nil, listErr
	}
	username := strings.TrimPrefix(ref, "@")
	for _, a := range all {
		if strings.EqualFold(a.Username, username) {
			return a, nil
		}
	}
	return nil, err
}
