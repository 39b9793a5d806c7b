package api

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/requestid"
)

type Router struct {
	app     *fiber.App
	logger  *slog.Logger
	handler *Handler
}

func NewRouter(logger *slog.Logger, handler *Handler) *Router {
	app := fiber.New(fiber.Config{
		ErrorHandler: errorHandler(logger),
		AppName:      "Vigia",
	})

	return &Router{
		app:     app,
		logger:  logger,
		handler: handler,
	}
}

func (r *Router) Setup() {
	r.app.Use(requestid.New())
	r.app.Use(recoverPanic(r.logger))
	r.app.Use(requestLogger(r.logger))
	r.app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,OPTIONS",
	}))

	r.app.Get("/health", r.handler.Health)
	r.app.Get("/stats", r.handler.Stats)
	r.app.Get("/events", r.handler.Events)
}

func (r *Router) Listen(addr string) error {
	return r.app.Listen(addr)
}

func (r *Router) Shutdown() error {
	return r.app.Shutdown()
}

// App exposes the fiber app for tests.
func (r *Router) App() *fiber.App {
	return r.app
}
