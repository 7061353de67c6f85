package cmd

import (
	"database/sql"
	"net"

	"github.com/playshelf/playshelf-api/app/controller"
	"github.com/playshelf/playshelf-api/app/cookies"
	"github.com/playshelf/playshelf-api/app/graph"
	"github.com/playshelf/playshelf-api/app/mailer"
	"github.com/playshelf/playshelf-api/app/middleware"
	"github.com/playshelf/playshelf-api/app/repository"
	"github.com/playshelf/playshelf-api/app/service"
	"github.com/playshelf/playshelf-api/app/session"
	"github.com/playshelf/playshelf-api/app/storage"
	"github.com/playshelf/playshelf-api/app/token"
	"github.com/playshelf/playshelf-api/config"

	_ "github.com/go-sql-driver/mysql"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long:  `Start the HTTP server exposing the OAuth, token, password and GraphQL endpoints.`,
	Run:   runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}
	if err := configureLogging(cfg); err != nil {
		logrus.WithError(err).Fatal("Failed to configure logging")
	}

	db, err := sql.Open("mysql", cfg.DSN())
	if err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logrus.WithError(err).Fatal("Failed to ping database")
	}

	sessions := newSessionStore(cfg)

	avatars, err := storage.NewObjectStore(cfg.Storage)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to create object storage client")
	}

	userRepo := repository.NewUserRepository(db)
	issuer := token.NewIssuer(cfg.JWT.AccessSecret, cfg.JWT.RefreshSecret, cfg.JWT.AccessTokenTTL, cfg.JWT.RefreshTokenTTL)
	smtpMailer := mailer.NewSMTPMailer(cfg.SMTP)
	cookieFactory := cookies.NewFactory(cfg)

	authService := service.NewAuthService(userRepo, issuer, smtpMailer, cfg)
	oauthService := service.NewOAuthService(userRepo, issuer, avatars, sessions, cfg)
	shareService := service.NewShareService(userRepo, cfg.FrontendURL)

	authController := controller.NewAuthController(oauthService, authService, issuer, sessions, cookieFactory, cfg)
	graphqlController, err := controller.NewGraphQLController(graph.NewResolver(authService, shareService, cookieFactory))
	if err != nil {
		logrus.WithError(err).Fatal("Failed to parse GraphQL schema")
	}
	authenticator := middleware.NewAuthenticator(issuer)

	startHTTPServer(cfg, authController, graphqlController, authenticator)
}

func newSessionStore(cfg *config.Config) session.Store {
	if cfg.Redis.Addr == "" {
		logrus.Warn("REDIS_ADDR not set, using in-process session store")
		return session.NewMemoryStore()
	}

	store, err := session.NewRedisStore(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to connect to redis")
	}
	return store
}

func startHTTPServer(
	cfg *config.Config,
	authController *controller.AuthController,
	graphqlController *controller.GraphQLController,
	authenticator *middleware.Authenticator,
) {
	e := echo.New()
	defer e.Close()
	e.HideBanner = true

	e.Use(echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogURI:       true,
		LogStatus:    true,
		LogMethod:    true,
		LogRemoteIP:  true,
		LogLatency:   true,
		LogUserAgent: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v echomiddleware.RequestLoggerValues) error {
			fields := logrus.Fields{
				"remote_ip":  v.RemoteIP,
				"host":       v.Host,
				"method":     v.Method,
				"uri":        v.URI,
				"status":     v.Status,
				"latency":    v.Latency.String(),
				"latency_ns": v.Latency.Nanoseconds(),
				"user_agent": v.UserAgent,
			}
			entry := logrus.WithFields(fields)
			if v.Error != nil {
				entry = entry.WithError(v.Error)
			}
			entry.Info("http_request")
			return nil
		},
	}))
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowCredentials: true,
	}))

	auth := e.Group("/auth")
	auth.GET("/google", authController.GoogleLogin)
	auth.GET("/google/callback", authController.GoogleCallback)

	e.POST("/refresh-token", authController.RefreshToken)
	e.POST("/logout", authController.Logout)

	password := e.Group("/password")
	password.POST("/forgot-password", authController.ForgotPassword)
	password.POST("/reset-password", authController.ResetPassword)

	e.POST("/graphql", graphqlController.Handle, authenticator.Authenticate)

	httpAddr := net.JoinHostPort(cfg.HTTPHost, cfg.HTTPPort)
	logrus.WithField("addr", httpAddr).Info("Starting HTTP server")
	if err := e.Start(httpAddr); err != nil {
		logrus.WithError(err).Fatal("Failed to start HTTP server")
	}
}
