package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/krobus00/trading-dashboard/internal/config"
	"github.com/krobus00/trading-dashboard/internal/constant"
	"github.com/krobus00/trading-dashboard/internal/entity"
	dashboardHTTP "github.com/krobus00/trading-dashboard/internal/handler/dashboard/http"
	dashboardWS "github.com/krobus00/trading-dashboard/internal/handler/dashboard/ws"
	"github.com/krobus00/trading-dashboard/internal/infrastructure"
	"github.com/krobus00/trading-dashboard/internal/repository"
	"github.com/krobus00/trading-dashboard/internal/service/account"
	"github.com/krobus00/trading-dashboard/internal/service/alert"
	"github.com/krobus00/trading-dashboard/internal/service/announcement"
	"github.com/krobus00/trading-dashboard/internal/service/breaker"
	"github.com/krobus00/trading-dashboard/internal/service/cache"
	"github.com/krobus00/trading-dashboard/internal/service/feedback"
	"github.com/krobus00/trading-dashboard/internal/service/market"
	"github.com/krobus00/trading-dashboard/internal/service/membership"
	"github.com/krobus00/trading-dashboard/internal/service/mentor"
	"github.com/krobus00/trading-dashboard/internal/service/portfolio"
	"github.com/krobus00/trading-dashboard/internal/service/provider"
	"github.com/krobus00/trading-dashboard/internal/service/realtime"
	"github.com/krobus00/trading-dashboard/internal/service/resolver"
	"github.com/krobus00/trading-dashboard/internal/service/signal"
	"github.com/krobus00/trading-dashboard/internal/service/watchlist"
	"github.com/krobus00/trading-dashboard/internal/util"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func StartDashboardGateway(cmd *cobra.Command, args []string) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := openDashboardDatabase(ctx)
	util.ContinueOrFatal(err)

	var (
		remote      cache.RemoteTier
		redisClient *redis.Client
	)
	if dsn := strings.TrimSpace(config.Env.Redis[dashboardDatabase].CacheDSN); dsn != "" {
		redisClient, err = infrastructure.NewRedisClient(ctx, dsn)
		if err != nil {
			logrus.Warnf("redis cache tier disabled: %v", err)
			redisClient = nil
		} else {
			remote = cache.NewRedisTier(redisClient)
		}
	}

	ttlCache := cache.New(cache.Config{
		SnapshotPath:    config.Env.Cache.SnapshotPath,
		PersistDebounce: config.Env.Cache.PersistDebounce,
		Remote:          remote,
	})
	if restored, err := ttlCache.Load(); err != nil {
		logrus.Warnf("cache snapshot not restored: %v", err)
	} else {
		logrus.WithField("entries", restored).Info("cache snapshot restored")
	}

	breakers := breaker.NewRegistry(time.Now)
	providerClient := provider.NewClient(provider.Config{
		AlphaVantageKey:   config.Env.Providers.AlphaVantageKey,
		FinnhubAPIKey:     config.Env.Providers.FinnhubAPIKey,
		CryptoPanicKey:    config.Env.Providers.CryptoPanicKey,
		RequestTimeout:    config.Env.Providers.RequestTimeout,
		RequestsPerSecond: config.Env.Providers.RequestsPerSecond,
		NewsFeeds:         config.Env.Providers.NewsFeeds,
	}, breakers)
	discordClient := provider.NewDiscordClient(provider.DiscordConfig{
		ClientID:           config.Env.Discord.ClientID,
		ClientSecret:       config.Env.Discord.ClientSecret,
		RedirectURI:        config.Env.Discord.RedirectURI,
		BotToken:           config.Env.Discord.BotToken,
		GuildID:            config.Env.Discord.GuildID,
		FeedbackWebhookURL: config.Env.Discord.FeedbackWebhookURL,
		RoleIDs:            config.Env.Discord.RoleIDs,
	}, breakers)
	openAIClient := provider.NewOpenAIClient(provider.OpenAIConfig{
		APIKey:            config.Env.OpenAI.APIKey,
		BaseURL:           config.Env.OpenAI.BaseURL,
		Model:             config.Env.OpenAI.Model,
		ModelMax:          config.Env.OpenAI.ModelMax,
		RequestsPerSecond: config.Env.OpenAI.RequestsPerSecond,
		Timeout:           config.Env.Providers.RequestTimeout,
	}, breakers)
	assetResolver := resolver.New(ttlCache, providerClient)

	hub := realtime.NewHub(config.Env.Realtime.ClientBuffer)
	feed := realtime.NewFeedManager(realtime.FeedConfig{
		URL:            config.Env.Realtime.UpstreamURL,
		Allowlist:      config.Env.Realtime.Allowlist,
		ReconnectDelay: config.Env.Realtime.ReconnectDelay,
		PingInterval:   config.Env.Realtime.PingInterval,
	}, hub, realtime.DialWebsocket)
	hub.UseFeed(feed)

	var (
		publisher entity.EventPublisher = realtime.NewHubPublisher(hub)
		nc        *nats.Conn
		eventSub  *nats.Subscription
	)
	if strings.TrimSpace(config.Env.NatsJetstream.URL) != "" {
		var js nats.JetStreamContext
		nc, js, err = infrastructure.NewJetstream()
		util.ContinueOrFatal(err)

		eventSub, err = realtime.SubscribeEvents(ctx, js, hub, config.Env.NatsJetstream.TimeoutHandler["relay_event"])
		util.ContinueOrFatal(err)
		publisher = realtime.NewJetStreamPublisher(js)
	} else {
		logrus.Info("nats jetstream not configured, events stay on this instance")
	}

	userRepo := repository.NewUserRepository(db)
	accountRepo := repository.NewAccountRepository(db)
	profileRepo := repository.NewTradingProfileRepository(db)
	signalRepo := repository.NewSignalRepository(db)
	watchlistRepo := repository.NewWatchlistRepository(db)
	alertRepo := repository.NewAlertRepository(db)
	portfolioRepo := repository.NewPortfolioRepository(db)
	mentorRepo := repository.NewMentorRepository(db)
	feedbackRepo := repository.NewFeedbackRepository(db)
	announcementRepo := repository.NewAnnouncementRepository(db)
	healthRepo := repository.NewHealthRepository(db)

	sessions := account.NewSessionManager(config.Env.Session.Secret, config.Env.Session.TTL)
	accountService := account.NewAccountService(userRepo, profileRepo, accountRepo, discordClient, publisher, config.Env.Trial.Duration)
	marketService := market.NewMarketService(ttlCache, providerClient, assetResolver)
	signalService := signal.NewSignalService(signalRepo, ttlCache, providerClient, assetResolver, publisher, config.Env.Signals.PruneDays)
	watchlistService := watchlist.NewWatchlistService(watchlistRepo, assetResolver)
	alertService := alert.NewAlertService(alertRepo, assetResolver, publisher, config.Env.InternalBotKey)
	portfolioService := portfolio.NewPortfolioService(portfolioRepo)
	mentorService := mentor.NewMentorService(mentor.Dependencies{
		Repo:  mentorRepo,
		Users: userRepo,
		Context: mentor.ContextSources{
			Watchlist: watchlistRepo,
			Alerts:    alertRepo,
			Portfolio: portfolioRepo,
			Signals:   signalRepo,
			Profiles:  profileRepo,
			Coins:     providerClient,
			Resolver:  assetResolver,
		},
		Model:           openAIClient,
		Notifier:        discordClient,
		Publisher:       publisher,
		FrontendURL:     config.Env.FrontendURL,
		DefaultCapacity: config.Env.Mentor.DefaultCapacity,
	})
	feedbackService := feedback.NewFeedbackService(feedbackRepo, userRepo, discordClient, publisher, config.Env.FrontendURL)
	announcementService := announcement.NewAnnouncementService(announcementRepo)
	membershipService := membership.NewMembershipService(userRepo, accountRepo, announcementService, discordClient, publisher,
		config.Env.Whop.WebhookSecret, config.Env.Whop.ProductPlans)

	retention, err := signal.NewRetentionScheduler(signalService, config.Env.Signals.PruneSchedule)
	util.ContinueOrFatal(err)
	retention.Start()

	httpMux := http.NewServeMux()
	dashboardHTTP.NewDashboardHTTPHandler(dashboardHTTP.Services{
		Sessions:      sessions,
		Accounts:      accountService,
		OAuth:         discordClient,
		Market:        marketService,
		Signals:       signalService,
		Watchlist:     watchlistService,
		Alerts:        alertService,
		Portfolio:     portfolioService,
		Mentor:        mentorService,
		Feedback:      feedbackService,
		Announcements: announcementService,
		Membership:    membershipService,
		Health:        healthRepo,
	}, dashboardHTTP.Config{
		CookieName:   config.Env.Session.CookieName,
		CookieSecure: config.Env.Session.Secure,
		FrontendURL:  config.Env.FrontendURL,
		BotSecrets:   config.Env.Signals.BotSecrets,
	}).Register(httpMux)
	dashboardWS.NewDashboardWSHandler(hub, config.Env.FrontendURL).Register(httpMux)

	httpConfig := infrastructure.DefaultHTTPServerConfig()
	if port := config.Env.Port["http"]; port != "" {
		httpConfig.Addr = fmt.Sprintf(":%s", port)
	}
	if config.Env.GracefulShutdownTimeout > 0 {
		httpConfig.ShutdownTimeout = config.Env.GracefulShutdownTimeout
	}
	httpConfig.AllowedOrigin = config.Env.FrontendURL
	httpConfig.RateLimiter = infrastructure.NewIPRateLimiter(
		config.Env.RequestsPerWindow(),
		config.Env.RateLimit.Window,
		config.Env.RateLimit.BypassPrefixes,
	)
	httpServer := infrastructure.NewHTTPServerWithConfig(httpConfig, httpMux)

	go func() {
		err := httpServer.Start()
		if err != nil {
			logrus.Error(err)
		}
	}()
	logrus.Info(fmt.Sprintf("http server started on %s", httpPort))

	grpcServer, err := infrastructure.NewGRPCServer(infrastructure.GRPCServerConfig{
		Port:             config.Env.Port["grpc"],
		EnableReflection: config.Env.Env == constant.DevelopmentEnvironment,
	})
	util.ContinueOrFatal(err)
	grpcServer.SetServing("", true)
	grpcServer.WatchHealth(ctx, dashboardDatabase, config.Env.Database[dashboardDatabase].PingInterval, healthRepo.Ping)

	go func() {
		if err := grpcServer.Start(); err != nil {
			logrus.Error(err)
		}
	}()

	wait := gracefulShutdown(ctx, config.Env.GracefulShutdownTimeout, map[string]operation{
		"http": func(ctx context.Context) error {
			return httpServer.Shutdown(ctx)
		},
		"grpc": func(ctx context.Context) error {
			return grpcServer.Shutdown(ctx)
		},
		"signal retention": func(ctx context.Context) error {
			return retention.Stop(ctx)
		},
		"realtime": func(ctx context.Context) error {
			feed.Close()
			hub.Close()
			return nil
		},
		"nats connection": func(ctx context.Context) error {
			if eventSub != nil {
				_ = eventSub.Unsubscribe()
			}
			if nc == nil {
				return nil
			}
			return infrastructure.CloseJetstream(nc)
		},
		"cache": func(ctx context.Context) error {
			if err := ttlCache.Close(ctx); err != nil {
				return err
			}
			if redisClient != nil {
				return redisClient.Close()
			}
			return nil
		},
		"database": func(ctx context.Context) error {
			cancel()
			return db.Close()
		},
	})

	<-wait
}
