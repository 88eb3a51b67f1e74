package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"go-mis/internal/api"
	"go-mis/internal/config"
	"go-mis/internal/database"
	"go-mis/internal/features/catalog"
	"go-mis/internal/features/commit"
	"go-mis/internal/features/imports"
	"go-mis/internal/features/notification"
	"go-mis/internal/features/role"
	"go-mis/internal/features/template"
	"go-mis/internal/logger"
	"go-mis/internal/middleware"
)

// NewFiberServer creates the Fiber app instance
func NewFiberServer() *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		BodyLimit:             64 * 1024 * 1024, // uploads go through multipart bodies
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	})

	app.Use(middleware.CORSMiddleware())

	return app
}

// AsRoute tags a constructor so Fx adds its result to the "routes" group.
func AsRoute(f any) any {
	return fx.Annotate(
		f,
		fx.As(new(api.Route)),
		fx.ResultTags(`group:"routes"`),
	)
}

// RegisterAllRoutes takes the "routes" group and calls Setup() on each one.
func RegisterAllRoutes(app *fiber.App, routes []api.Route) {
	for _, route := range routes {
		route.Setup(app)
	}
	log.Printf("Registered %d route groups\n", len(routes))
}

var RegisterAllRoutesWithAnnotation = fx.Annotate(
	RegisterAllRoutes,
	fx.ParamTags(``, `group:"routes"`),
)

// StartServer starts Fiber in a goroutine and shuts it down on app exit.
func StartServer(lc fx.Lifecycle, app *fiber.App, cfg *config.Config) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				port := fmt.Sprintf(":%s", cfg.Port)
				if err := app.Listen(port); err != nil {
					log.Fatalf("Server failed to start: %v", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return app.Shutdown()
		},
	})
}

// InitializeIndexes ensures the collections backing the import workflow have
// their indexes; it also seeds the built-in roles.
func InitializeIndexes(
	lc fx.Lifecycle,
	roleRepo role.RoleRepository,
	templateRepo template.TemplateRepository,
	sessionRepo imports.SessionRepository,
	auditRepo imports.AuditRepository,
	lineageRepo imports.LineageRepository,
	masterDataRepo imports.MasterDataRepository,
	roleService role.RoleService,
) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()

				if err := roleRepo.EnsureIndexes(ctx); err != nil {
					log.Printf("Failed to ensure role indexes: %v", err)
				}
				if err := templateRepo.EnsureIndexes(ctx); err != nil {
					log.Printf("Failed to ensure template indexes: %v", err)
				}
				if err := sessionRepo.EnsureIndexes(ctx); err != nil {
					log.Printf("Failed to ensure session indexes: %v", err)
				}
				if err := auditRepo.EnsureIndexes(ctx); err != nil {
					log.Printf("Failed to ensure audit indexes: %v", err)
				}
				if err := lineageRepo.EnsureIndexes(ctx); err != nil {
					log.Printf("Failed to ensure lineage indexes: %v", err)
				}
				if err := masterDataRepo.EnsureIndexes(ctx); err != nil {
					log.Printf("Failed to ensure master data indexes: %v", err)
				}
				if err := roleService.SeedDefaults(ctx); err != nil {
					log.Printf("Failed to seed default roles: %v", err)
				}
			}()
			return nil
		},
	})
}

func main() {
	app := fx.New(
		fx.Provide(
			config.LoadConfig,
			logger.NewLogger,
			NewFiberServer,
			database.NewDatabase,

			catalog.NewConnectorPool,
			catalog.NewConnectionRepository,
			role.NewRoleRepository,
			template.NewTemplateRepository,
			notification.NewNotificationRepository,
			imports.NewSessionRepository,
			imports.NewAuditRepository,
			imports.NewLineageRepository,
			imports.NewMasterDataRepository,

			catalog.NewCatalogService,
			role.NewRoleService,
			template.NewTemplateService,
			notification.NewNotificationService,
			commit.NewExecutor,
			imports.NewImportService,
			imports.NewSweeper,

			catalog.NewCatalogController,
			template.NewTemplateController,
			notification.NewNotificationController,
			imports.NewImportController,

			AsRoute(catalog.NewCatalogApi),
			AsRoute(template.NewTemplateApi),
			AsRoute(notification.NewNotificationApi),
			AsRoute(imports.NewImportApi),
		),
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log}
		}),
		fx.Invoke(
			RegisterAllRoutesWithAnnotation,
			StartServer,
			func(lc fx.Lifecycle, sweeper *imports.Sweeper) {
				lc.Append(fx.Hook{
					OnStart: func(ctx context.Context) error {
						return sweeper.Start()
					},
					OnStop: func(ctx context.Context) error {
						sweeper.Stop()
						return nil
					},
				})
			},
			InitializeIndexes,
		),
	)

	app.Run()
}
