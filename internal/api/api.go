package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethanbaker/agentlink/internal/agentrun"
	"github.com/ethanbaker/agentlink/internal/api/middleware"
	"github.com/ethanbaker/agentlink/internal/jobs"
	"github.com/ethanbaker/agentlink/internal/stores"
	"github.com/ethanbaker/agentlink/pkg/credential"
	"github.com/ethanbaker/agentlink/pkg/dispatch"
	"github.com/ethanbaker/agentlink/pkg/flow"
	"github.com/ethanbaker/agentlink/pkg/ledger"
	"github.com/ethanbaker/agentlink/pkg/provider"
	"github.com/ethanbaker/agentlink/pkg/utils"
	api_utils "github.com/ethanbaker/api/pkg/utils"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	agent_module "github.com/ethanbaker/agentlink/internal/api/modules/agent"
	events_module "github.com/ethanbaker/agentlink/internal/api/modules/events"
	health_module "github.com/ethanbaker/agentlink/internal/api/modules/health"
	oauth_module "github.com/ethanbaker/agentlink/internal/api/modules/oauth"
)

// DefaultConnectRatePerMinute limits begin requests per client IP
const DefaultConnectRatePerMinute = 30

// Dependencies are the collaborators the server is assembled from
type Dependencies struct {
	Stores   *stores.Stores
	Registry *provider.Registry
	Invoker  dispatch.Invoker
	Replier  dispatch.Replier
}

// Server is the assembled HTTP surface with its background workers
type Server struct {
	Engine      *gin.Engine
	Credentials *credential.Service

	stores     *stores.Stores
	dispatcher *dispatch.Dispatcher
}

// NewServer builds the engine and registers every module
func NewServer(cfg *utils.Config, deps Dependencies) (*Server, error) {
	auth, err := middleware.NewAuthenticator(cfg.Get("AUTH_JWT_SECRET"))
	if err != nil {
		return nil, err
	}

	signingSecret := cfg.Get("SLACK_SIGNING_SECRET")
	if signingSecret == "" {
		log.Println("[API]: Warning, SLACK_SIGNING_SECRET not set, every webhook event will be rejected")
	}

	l := ledger.New(deps.Stores.Ledger, ledger.WithTTL(cfg.GetSeconds("STATE_TTL_SECONDS", ledger.DefaultTTL)))
	credentials := credential.NewService(deps.Stores.Credentials, deps.Registry)
	coordinator := flow.NewCoordinator(l, deps.Registry, deps.Stores.Flows, credentials)
	dispatcher := dispatch.NewDispatcher(credentials, deps.Invoker, deps.Replier, 0)
	limiter := middleware.NewRateLimiter(cfg.GetIntWithDefault("CONNECT_RATE_PER_MINUTE", DefaultConnectRatePerMinute))

	// Add app level settings/routes
	engine := gin.Default()
	engine.NoRoute(api_utils.NoRouteHandler)

	// Add trusted proxies
	engine.SetTrustedProxies(nil)

	// Add CORS using gin-contrib/cors (https://github.com/gin-contrib/cors for documentation)
	engine.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.GetList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		AllowMethods:     []string{"OPTIONS", "GET", "POST"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-API-KEY"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	// Base group '/api' for all API routes
	baseGroup := engine.Group("/api")

	health_module.RegisterRoutes(baseGroup, deps.Stores, deps.Registry)

	oauthController := oauth_module.NewController(coordinator, l.TTL(), !cfg.GetBool("DEV_MODE"))
	oauth_module.RegisterRoutes(baseGroup, oauthController, auth.Handler(), limiter.Handler())

	events_module.RegisterRoutes(baseGroup, events_module.NewController(dispatcher, signingSecret))

	if err := agent_module.RegisterRoutes(baseGroup, cfg, agent_module.NewController(credentials, deps.Invoker)); err != nil {
		dispatcher.Close()
		return nil, err
	}

	return &Server{
		Engine:      engine,
		Credentials: credentials,
		stores:      deps.Stores,
		dispatcher:  dispatcher,
	}, nil
}

// Close waits for in-flight event jobs and releases the stores
func (s *Server) Close() error {
	s.dispatcher.Close()
	return s.stores.Close()
}

// NewRegistry builds the provider registry from configuration
func NewRegistry(cfg *utils.Config) (*provider.Registry, error) {
	settings := provider.Settings{
		RedirectURI: cfg.Get("OAUTH_REDIRECT_URI"),
		HTTPTimeout: cfg.GetSeconds("PROVIDER_HTTP_TIMEOUT_SECONDS", provider.DefaultHTTPTimeout),
		Google: provider.ClientCredentials{
			ClientID:     cfg.Get("GOOGLE_CLIENT_ID"),
			ClientSecret: cfg.Get("GOOGLE_CLIENT_SECRET"),
		},
		Slack: provider.ClientCredentials{
			ClientID:     cfg.Get("SLACK_CLIENT_ID"),
			ClientSecret: cfg.Get("SLACK_CLIENT_SECRET"),
		},
		Salesforce: provider.ClientCredentials{
			ClientID:     cfg.Get("SALESFORCE_CLIENT_ID"),
			ClientSecret: cfg.Get("SALESFORCE_CLIENT_SECRET"),
		},
		SalesforceLoginURL: cfg.Get("SALESFORCE_LOGIN_URL"),
	}

	// A client secrets file takes precedence over the individual keys
	if path := cfg.Get("GOOGLE_CLIENT_SECRETS_FILE"); path != "" {
		google, err := provider.GoogleCredentialsFromFile(path)
		if err != nil {
			return nil, err
		}
		settings.Google = google
	}

	if settings.RedirectURI == "" {
		return nil, errors.New("OAUTH_REDIRECT_URI not set in environment")
	}

	return provider.Build(settings, cfg.Get("PROVIDERS_CONFIG_PATH"))
}

// Start runs the API server until SIGINT or SIGTERM
func Start(cfg *utils.Config) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialized configuration settings
	port := cfg.GetWithDefault("API_PORT", "8080")

	st, err := stores.Open(ctx, cfg)
	if err != nil {
		log.Fatal("[API-MAIN]: Failed to open stores: ", err)
	}

	registry, err := NewRegistry(cfg)
	if err != nil {
		log.Fatal("[API-MAIN]: Failed to build provider registry: ", err)
	}

	server, err := NewServer(cfg, Dependencies{
		Stores:   st,
		Registry: registry,
		Invoker:  agentrun.NewRunner(cfg),
		Replier:  dispatch.NewSlackReplier(&http.Client{Timeout: 10 * time.Second}, ""),
	})
	if err != nil {
		log.Fatal("[API-MAIN]: Failed to create server: ", err)
	}

	sweep, err := jobs.NewRefreshSweep(cfg, server.Credentials)
	if err != nil {
		log.Fatal("[API-MAIN]: Failed to schedule refresh sweep: ", err)
	}
	sweep.Start()

	httpServer := &http.Server{
		Addr:              ":" + port,
		Handler:           server.Engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("[API-MAIN]: Listening on :%s\n", port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("[API-MAIN]: Failed to start server: ", err)
		}
	}()

	<-ctx.Done()
	log.Println("[API-MAIN]: Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("[API-MAIN]: Failed to shut down cleanly: %v\n", err)
	}
	sweep.Stop()
	if err := server.Close(); err != nil {
		log.Printf("[API-MAIN]: Failed to close stores: %v\n", err)
	}
}
