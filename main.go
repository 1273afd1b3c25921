package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/opencoder/opencoder/backend/go-services/handlers"
	"github.com/opencoder/opencoder/backend/go-services/internal/classroom"
	"github.com/opencoder/opencoder/backend/go-services/internal/config"
	"github.com/opencoder/opencoder/backend/go-services/internal/database"
	drafthandler "github.com/opencoder/opencoder/backend/go-services/internal/draft/handler"
	"github.com/opencoder/opencoder/backend/go-services/internal/draft/notify"
	draftrepo "github.com/opencoder/opencoder/backend/go-services/internal/draft/repository"
	draftservice "github.com/opencoder/opencoder/backend/go-services/internal/draft/service"
	"github.com/opencoder/opencoder/backend/go-services/internal/generation"
	"github.com/opencoder/opencoder/backend/go-services/internal/render"
	"github.com/opencoder/opencoder/backend/go-services/internal/sessions"
	"github.com/opencoder/opencoder/backend/go-services/internal/storage"
	"github.com/opencoder/opencoder/backend/go-services/internal/submission"
	"github.com/opencoder/opencoder/backend/go-services/internal/users"
	"github.com/opencoder/opencoder/backend/go-services/pkg/logger"
	"github.com/opencoder/opencoder/backend/go-services/pkg/metrics"
	"github.com/opencoder/opencoder/backend/go-services/pkg/middleware"
)

var startTime = time.Now()

func main() {
	// initialize logging (can be controlled with LOG_LEVEL env: debug|info|warn|error|fatal)
	logger.Init(os.Getenv("LOG_LEVEL"))
	logger.Debugf("startup: LOG_LEVEL=%s", logger.LevelString())

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	logger.Infof("config loaded: google=%v mongo=%v redis=%v openai=%v", cfg.Google.ClientID != "", cfg.MongoDB.URI != "", cfg.Redis.Host != "", cfg.OpenAI.APIKey != "")

	r := gin.New()

	// Lightweight CORS middleware for dev/test: set common headers and respond to OPTIONS.
	// (Keep this intentionally simple — production should use a stricter policy.)
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "Content-Length, Content-Disposition")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(200)
			return
		}
		c.Next()
	})

	// Global middlewares: logging + recovery
	r.Use(gin.Logger(), gin.Recovery())

	// shared runtime vars used by handlers/readiness
	var userSvc *users.Service
	var sessionsSvc *sessions.Service
	genConfigured := false

	// Connect to Redis early so the rate-limiter, blacklist and draft event
	// notifier can use it when configured
	var importedRedis *redis.Client
	if cfg.Redis.Host != "" {
		importedRedis = redis.NewClient(&redis.Options{Addr: cfg.Redis.Host + ":" + cfg.Redis.Port, Password: cfg.Redis.Password})

		// validate connection
		if err := importedRedis.Ping(context.Background()).Err(); err == nil {
			// expose Redis client for blacklist checks (session wiring happens later)
			sessions.SetBlacklistClient(importedRedis)
			logger.Infof("Connected to Redis (early) for optional features: %s:%s", cfg.Redis.Host, cfg.Redis.Port)
		} else {
			logger.Warnf("failed to connect to Redis early (%s:%s): %v", cfg.Redis.Host, cfg.Redis.Port, err)
		}
	}

	// Optional global rate limiter (per-user when authenticated, otherwise per-IP)
	if cfg.RateLimit.Enabled {
		// use Redis-backed limiter when configured and Redis client is available
		if cfg.RateLimit.UseRedis && importedRedis != nil {
			win := time.Duration(cfg.RateLimit.WindowSeconds) * time.Second
			r.Use(middleware.RedisRateLimitMiddleware(importedRedis, cfg.RateLimit.RPS, cfg.RateLimit.Burst, win))
		} else {
			r.Use(middleware.RateLimitMiddleware(cfg.RateLimit.RPS, cfg.RateLimit.Burst))
		}
	}

	// Basic health endpoint
	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "healthy")
	})

	// readiness endpoint — return 200 only when critical dependencies are available
	r.GET("/ready", func(c *gin.Context) {
		ready := true
		deps := map[string]bool{}

		// storage readiness: service is ready when a session store is configured.
		// (Redis-backed sessions are sufficient for storage; MongoDB provides the
		// user service when available.)
		if sessionsSvc == nil {
			deps["storage"] = false
			ready = false
		} else {
			deps["storage"] = true
			// indicate whether user service is available (not required for storage)
			deps["users"] = (userSvc != nil)
		}

		// sign-in readiness: without a Google client id the login flow cannot work
		if cfg.Google.ClientID == "" {
			deps["google"] = false
			ready = false
		} else {
			deps["google"] = true
		}

		// generation and archive readiness are informational: drafts fall to the
		// failed state and stay retryable while the provider is unconfigured,
		// and the archive is best-effort
		deps["generation"] = genConfigured
		deps["minio"] = cfg.MinIO.Endpoint != ""

		// Redis readiness when used for rate-limiter or sessions
		if cfg.Redis.Host != "" && cfg.RateLimit.UseRedis {
			deps["redis"] = importedRedis != nil
			if !deps["redis"] {
				ready = false
			}
		} else {
			deps["redis"] = true
		}

		if !ready {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "deps": deps, "uptime": fmt.Sprintf("%s", time.Since(startTime))})
			return
		}

		c.JSON(http.StatusOK, gin.H{"status": "ready", "deps": deps, "uptime": fmt.Sprintf("%s", time.Since(startTime))})
	})

	ctx := context.Background()

	// Prefer Redis-based sessions when configured (fast, in-memory)
	if importedRedis != nil {
		srepo := sessions.NewRedisRepository(importedRedis, "session:")
		sessionsSvc = sessions.NewService(srepo)
		logger.Infof("Using Redis for session storage (early connection)")
	}

	// MongoDB-backed services (users + sessions + classroom cache + drafts).
	// Attempt Mongo connection when configured. If Redis provided sessionsSvc
	// already, still create the remaining repositories from Mongo if available.
	var clsRepo classroom.Repository
	var drepo draftrepo.Repository
	var receipts *submission.Store
	if cfg.MongoDB.URI != "" {
		// Retry/backoff when connecting to MongoDB to tolerate startup races
		const maxAttempts = 5
		backoff := time.Second
		var client *mongo.Client
		var errConn error
		for attempt := 1; attempt <= maxAttempts; attempt++ {
			client, errConn = database.ConnectMongo(ctx, cfg.MongoDB.URI, cfg.MongoDB.Timeout)
			if errConn == nil {
				break
			}
			logger.Warnf("attempt %d/%d: failed to connect to MongoDB: %v", attempt, maxAttempts, errConn)
			if attempt < maxAttempts {
				time.Sleep(backoff)
				backoff *= 2
			}
		}
		if errConn != nil {
			logger.Warnf("could not connect to MongoDB after %d attempts: %v", maxAttempts, errConn)
		} else {
			defer func() { _ = client.Disconnect(ctx) }()
			db := client.Database(cfg.MongoDB.Database)
			userSvc = users.NewService(users.NewMongoUserRepository(db.Collection("users")))

			// only create Mongo-backed session repo when a session service isn't already set
			if sessionsSvc == nil {
				sessionsSvc = sessions.NewService(sessions.NewMongoRepository(db.Collection("sessions")))
			}

			clsRepo = classroom.NewMongoRepository(db.Collection("courses"), db.Collection("assignments"))
			drepo = draftrepo.NewMongoRepo(db.Collection("drafts"))
			receipts = submission.NewStore(db.Collection("submissions"))
		}
	}

	// In-memory fallbacks keep the API usable in dev setups without Mongo;
	// everything is lost on restart.
	if clsRepo == nil {
		clsRepo = classroom.NewMemoryRepository()
		logger.Warnf("MongoDB unavailable: classroom cache is in-memory only")
	}
	if drepo == nil {
		drepo = draftrepo.NewMemoryRepo()
		logger.Warnf("MongoDB unavailable: drafts are stored in-memory only")
	}

	// Classroom provider + cached course/assignment service
	clsClient := classroom.NewClient(classroom.ClientConfig{
		ClassroomBaseURL: cfg.Google.ClassroomBaseURL,
		DriveUploadURL:   cfg.Google.DriveUploadURL,
	})
	clsSvc := classroom.NewService(clsClient, clsRepo)

	// Draft generation provider (OpenAI-compatible endpoint)
	var gen generation.Provider = generation.Disabled{}
	if cfg.OpenAI.APIKey != "" {
		genClient, err := generation.NewClient(generation.ClientConfig{
			BaseURL:     cfg.OpenAI.BaseURL,
			APIKey:      cfg.OpenAI.APIKey,
			Model:       cfg.OpenAI.Model,
			Temperature: cfg.OpenAI.Temperature,
			MaxTokens:   cfg.OpenAI.MaxTokens,
			Timeout:     cfg.OpenAI.Timeout,
			MaxRetries:  cfg.OpenAI.MaxRetries,
		})
		if err != nil {
			logger.Warnf("failed to initialize generation client: %v", err)
		} else {
			gen = genClient
			genConfigured = true
		}
	} else {
		logger.Warnf("OPENAI_API_KEY not set: draft generation disabled, generate requests will fail retryably")
	}

	// Draft lifecycle service
	opts := []draftservice.Option{
		draftservice.WithGenerationTimeout(cfg.Generation.Timeout),
		draftservice.WithSweepInterval(cfg.Generation.SweepInterval),
	}
	if importedRedis != nil {
		opts = append(opts, draftservice.WithNotifier(notify.NewRedisNotifier(importedRedis)))
	}
	if receipts != nil {
		opts = append(opts, draftservice.WithReceipts(receipts))
	}
	if cfg.MinIO.Endpoint != "" {
		archive, err := storage.NewMinIOStorage(&storage.MinIOConfig{
			Endpoint:  cfg.MinIO.Endpoint,
			AccessKey: cfg.MinIO.AccessKey,
			SecretKey: cfg.MinIO.SecretKey,
			UseSSL:    cfg.MinIO.UseSSL,
			Bucket:    cfg.MinIO.Bucket,
		})
		if err != nil {
			logger.Warnf("failed to initialize MinIO archive: %v", err)
		} else {
			opts = append(opts, draftservice.WithArchive(archive))
			logger.Infof("submission archive enabled: %s/%s", cfg.MinIO.Endpoint, cfg.MinIO.Bucket)
		}
	}
	draftSvc := draftservice.NewService(drepo, clsSvc, gen, render.NewPDFRenderer(), opts...)
	go draftSvc.RunSweeper(ctx)

	// Register auth handlers if services are available
	if userSvc != nil && sessionsSvc != nil {
		h := handlers.NewAuthHandler(cfg, userSvc, sessionsSvc)
		h.Register(r.Group("/"))
	} else {
		logger.Warnf("auth handlers not registered because user/sessions services are unavailable")
	}

	// Minimal Swagger UI + JSON for API documentation
	handlers.RegisterSwagger(r)

	// Authenticated API surface. The middleware resolves the bearer token to a
	// Principal once; the route handlers read it back from the context.
	authn := middleware.AuthMiddleware(func(c *gin.Context, raw string) (middleware.Principal, error) {
		if sessionsSvc == nil {
			return middleware.Principal{}, fmt.Errorf("session store unavailable")
		}
		claims, sess, err := handlers.ResolveSession(c, cfg, sessionsSvc)
		if err != nil {
			return middleware.Principal{}, err
		}
		p := middleware.Principal{UserID: claims.Sub, Name: claims.Name, Email: claims.Email}
		if sess != nil {
			p.GoogleToken = sess.GoogleAccessToken
		}
		return p, nil
	})
	api := r.Group("", authn)

	classroom.RegisterClassroomRoutes(api, clsSvc, func(c *gin.Context) (string, string, error) {
		p, ok := middleware.PrincipalFrom(c)
		if !ok {
			return "", "", fmt.Errorf("not authenticated")
		}
		return p.UserID, p.GoogleToken, nil
	})
	drafthandler.RegisterDraftRoutes(api, draftSvc, func(c *gin.Context) (draftservice.Actor, error) {
		p, ok := middleware.PrincipalFrom(c)
		if !ok {
			return draftservice.Actor{}, fmt.Errorf("not authenticated")
		}
		return draftservice.Actor{UserID: p.UserID, Name: p.Name, GoogleToken: p.GoogleToken}, nil
	})

	// Expose Prometheus metrics
	metrics.RegisterCollectors(prometheus.DefaultRegisterer)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	// brief runtime configuration summary to help with debugging early exits
	logger.Infof("Config summary: google=%v mongo=%v redis=%v minio=%v jwt_secret_set=%v", cfg.Google.ClientID != "", cfg.MongoDB.URI != "", cfg.Redis.Host != "", cfg.MinIO.Endpoint != "", cfg.JWT.Secret != "")
	logger.Debugf("services: user=%v sessions=%v generation=%v", userSvc != nil, sessionsSvc != nil, genConfigured)
	logger.Infof("Starting opencoder api on %s", addr)
	// run server in goroutine and keep process alive — prevents the container
	// from exiting silently if r.Run ever returns.
	go func() {
		if err := r.Run(addr); err != nil {
			logger.Fatalf("server failed: %v", err)
		}
	}()
	select {}
}
