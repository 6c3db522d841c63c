package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/utils"
	"github.com/gofiber/template/html/v2"
	"github.com/redis/go-redis/v9"

	"github.com/ManuelReschke/PayFox/app/repository"
	apiv1 "github.com/ManuelReschke/PayFox/internal/api/v1"
	"github.com/ManuelReschke/PayFox/internal/pkg/apikey"
	"github.com/ManuelReschke/PayFox/internal/pkg/audit"
	"github.com/ManuelReschke/PayFox/internal/pkg/cache"
	"github.com/ManuelReschke/PayFox/internal/pkg/config"
	"github.com/ManuelReschke/PayFox/internal/pkg/database"
	"github.com/ManuelReschke/PayFox/internal/pkg/env"
	"github.com/ManuelReschke/PayFox/internal/pkg/gateway"
	"github.com/ManuelReschke/PayFox/internal/pkg/middleware"
	"github.com/ManuelReschke/PayFox/internal/pkg/payment"
	"github.com/ManuelReschke/PayFox/internal/pkg/router"
	"github.com/ManuelReschke/PayFox/internal/pkg/s3archive"
	"github.com/ManuelReschke/PayFox/internal/pkg/webhook"
)

func main() {
	app, cfg := NewApplication()
	err := app.Listen(fmt.Sprintf("%s:%s", cfg.AppHost, cfg.AppPort))
	log.Fatal(err)
}

func NewApplication() (*fiber.App, *config.Config) {
	if err := env.SetupEnvFile(); err != nil {
		log.Printf("No .env file loaded, using process environment: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	db, err := database.SetupDatabase(cfg.Database)
	if err != nil {
		log.Fatalf("Could not connect to database: %v", err)
	}

	// STORE
	var store repository.Store = repository.NewFactory(db).GetStore()
	var cacheClient *redis.Client
	var limiterStorage fiber.Storage
	if cfg.Cache.Enabled {
		client, err := cache.SetupCache(cfg.Cache)
		if err != nil {
			log.Printf("Running without cache: %v", err)
			_ = client.Close()
		} else {
			cacheClient = client
			limiterStorage = cache.LimiterStorage(cfg.Cache)
			store = cache.NewStore(store, cacheClient, cache.DefaultPaymentTTL)
		}
	}

	// CORE
	auditLogger := audit.NewLogger(store)
	registry := gateway.NewDefaultRegistry(cfg)
	orchestrator := payment.NewOrchestrator(store, registry, cfg)

	var archiver webhook.Archiver
	if cfg.Archive.Enabled {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		client, err := s3archive.NewClient(ctx, cfg.Archive, cfg.AppEnv)
		cancel()
		if err != nil {
			log.Printf("Webhook archiving disabled: %v", err)
		} else {
			archiver = client
		}
	}
	ingress := webhook.NewIngress(cfg.WebhookSecret, orchestrator, auditLogger, archiver)

	// Define possible base paths
	basePaths := []string{
		"./",        // Current directory
		"../../",    // From cmd/payfox to project root
		"../../../", // Fallback
	}

	// Find the correct base path
	basePath := ""
	for _, path := range basePaths {
		if _, err := os.Stat(path + "views"); !os.IsNotExist(err) {
			basePath = path
			break
		}
	}

	if basePath == "" {
		panic("Could not find project root directory")
	}

	// init fiber app
	app := fiber.New(fiber.Config{
		AppName:      "PayFox",
		Views:        html.New(basePath+"views", ".html"),
		ErrorHandler: errorHandler,
	})

	// recovery, correlation id and logging
	app.Use(
		recover.New(),
		middleware.RequestID(),
		logger.New(logger.Config{
			Format: "[${time}] ${locals:requestid} ${status} - ${latency} ${method} ${path}\n",
		}),
	)

	// fiber metrics
	if cfg.MetricsPassword != "" {
		app.Get("/metrics", basicauth.New(basicauth.Config{
			Users: map[string]string{
				cfg.MetricsUser: cfg.MetricsPassword,
			},
		}), monitor.New(monitor.Config{Title: "PayFox Metrics"}))
	}

	// SWAGGER / OPENAPI
	specCtx, specCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if _, err := apiv1.LoadSpec(specCtx, basePath+apiv1.SpecPath); err != nil {
		log.Fatalf("Invalid OpenAPI document: %v", err)
	}
	specCancel()
	openAPICfg := swagger.Config{
		BasePath: "/docs/api/",
		FilePath: basePath + apiv1.SpecPath,
		Path:     "v1",
	}
	app.Use(swagger.New(openAPICfg))

	// ROUTER
	router.InstallRouter(app, router.Dependencies{
		Config:         cfg,
		DB:             db,
		Cache:          cacheClient,
		Orchestrator:   orchestrator,
		Registry:       registry,
		Authenticator:  apikey.NewAuthenticator(cfg.APIKeys, auditLogger),
		Audit:          auditLogger,
		Webhooks:       ingress,
		LimiterStorage: limiterStorage,
	})

	log.Printf("PayFox listening on %s:%s, public base URL %s", cfg.AppHost, cfg.AppPort, cfg.BaseURL)
	return app, cfg
}

// errorHandler answers errors no handler turned into a response, panics
// included, with the JSON error body every endpoint uses.
func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal server error"
	if fe, ok := err.(*fiber.Error); ok {
		code = fe.Code
		message = fe.Message
	}
	errCode := strings.ToLower(strings.ReplaceAll(utils.StatusMessage(code), " ", "_"))
	return c.Status(code).JSON(fiber.Map{"success": false, "error": errCode, "message": message})
}
