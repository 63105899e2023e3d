package httpapi

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/i474232898/airq/internal/airquality"
	"github.com/i474232898/airq/internal/store"
)

const serviceName = "airq"

// History serves readings older than the published dataset holds.
type History interface {
	Readings(ctx context.Context, station, pollutant string, from, to int64) ([]airquality.PollutantRecord, error)
}

// Options tune the HTTP app.
type Options struct {
	// Gatherer backs /metrics; nil uses the default registry.
	Gatherer prometheus.Gatherer
	// History, when set, answers reading queries that start before the
	// dataset's oldest bucket for the station.
	History History
	// AccessLog enables the request log middleware.
	AccessLog bool
}

// NewApp builds the Fiber app serving the published dataset.
func NewApp(memStore *store.MemoryStore, opts Options) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               serviceName,
		DisableStartupMessage: true,
		UnescapePath:          true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			// Centralized error response
			code := fiber.StatusInternalServerError
			var e *fiber.Error
			if errors.As(err, &e) {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error":   true,
				"message": err.Error(),
			})
		},
	})

	if opts.AccessLog {
		app.Use(logger.New())
	}
	app.Use(recover.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": serviceName,
		})
	})

	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	RegisterRoutes(app, memStore, opts.History)
	return app
}
