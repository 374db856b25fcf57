// main.go
//
// A compile-on-change web application runtime
// Copyright (c) 2026 Alex Grant <info@localnerve.com> (https://www.localnerve.com), LocalNerve LLC
//
// This file is part of moka.
// moka is free software: you can redistribute it and/or modify it
// under the terms of the GNU Affero General Public License as published by the Free Software
// Foundation, either version 3 of the License, or (at your option) any later version.
// moka is distributed in the hope that it will be useful, but WITHOUT ANY WARRANTY;
// without even the implied warranty of MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.
// See the GNU Affero General Public License for more details.
// You should have received a copy of the GNU Affero General Public License along with moka.
// If not, see <https://www.gnu.org/licenses/>.
// Additional terms under GNU AGPL version 3 section 7:
// a) The reasonable legal notice of original copyright and author attribution must be preserved
//    by including the string: "Copyright (c) 2026 Alex Grant <info@localnerve.com> (https://www.localnerve.com), LocalNerve LLC"
//    in this material, copies, or source code of derived works.

package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/localnerve/moka/internal/config"
	"github.com/localnerve/moka/internal/logging"
	"github.com/localnerve/moka/internal/middleware"
	"github.com/localnerve/moka/internal/services"
	"github.com/localnerve/moka/internal/supervisor"
	"github.com/localnerve/moka/internal/utils"
	"github.com/localnerve/moka/internal/worker"
	"github.com/valyala/fasthttp/reuseport"
	"go.uber.org/zap"
)

// HealthPath serves the health report. Method names never contain a slash, so it
// cannot shadow a method of the entry class.
const HealthPath = "/_moka/health"

const shutdownTimeout = 10 * time.Second

func main() {
	// Base directory is the first argument, or the working directory
	baseDir := "."
	if len(os.Args) > 1 {
		baseDir = os.Args[1]
	}

	cfg, err := config.Load(baseDir)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zl, err := logging.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zl.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	id, isWorker := supervisor.WorkerID()
	if !isWorker {
		if err := runSupervisor(ctx, cfg, zl); err != nil {
			zl.Fatalw("Supervisor failed", "error", err)
		}
		return
	}

	if err := runWorker(ctx, cfg, zl.With("worker", id)); err != nil {
		zl.Fatalw("Worker failed", "worker", id, "error", err)
	}
}

func runSupervisor(ctx context.Context, cfg *config.Config, zl *zap.SugaredLogger) error {
	s, err := supervisor.New(cfg.Workers, zl)
	if err != nil {
		return err
	}

	zl.Infow("Starting moka", "base", cfg.BaseDirectory, "port", cfg.WebPort, "workers", s.Workers)

	return s.Run(ctx)
}

func runWorker(ctx context.Context, cfg *config.Config, zl *zap.SugaredLogger) error {
	w, err := worker.New(cfg, zl)
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Prepare(ctx); err != nil {
		return err
	}

	app := newApp(ctx, cfg, w, fiberprometheus.New("moka"), zl)

	// Every worker binds the same port
	ln, err := reuseport.Listen("tcp4", ":"+cfg.WebPort)
	if err != nil {
		return err
	}

	go func() {
		if err := w.Watch(ctx); err != nil {
			zl.Errorw("Watcher stopped", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		zl.Infow("Gracefully shutting down...")
		if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
			zl.Warnw("Shutdown incomplete", "error", err)
		}
	}()

	zl.Infow("Worker listening", "port", cfg.WebPort)
	if err := app.Listener(ln); err != nil {
		return err
	}

	zl.Infow("Worker stopped")
	return nil
}

// newApp builds the Fiber application of one worker. Requests run under ctx, so
// cancelling it interrupts the methods still executing.
func newApp(ctx context.Context, cfg *config.Config, w *worker.Worker, prometheus *fiberprometheus.FiberPrometheus, zl *zap.SugaredLogger) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler:          customErrorHandler,
		DisableStartupMessage: true,
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(compress.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.Context(ctx))

	// Prometheus metrics
	prometheus.RegisterAt(app, cfg.MetricsPath)
	app.Use(prometheus.Middleware)

	app.Get(HealthPath, func(c *fiber.Ctx) error {
		result := services.HealthCheck(c.UserContext(), cfg, w.Registry, zl)
		status := fiber.StatusOK
		if !result.Healthy() {
			status = fiber.StatusServiceUnavailable
		}
		return utils.SuccessResponse(c, result, status)
	})

	// Everything else is a method of the entry class
	app.All("/*", w.Dispatcher.Serve)

	return app
}

// customErrorHandler handles errors that escape a handler
func customErrorHandler(c *fiber.Ctx, err error) error {
	if e, ok := err.(*fiber.Error); ok {
		return utils.ErrorResponse(c, e.Message, e.Code, "http")
	}
	return utils.TextErrorResponse(c, err.Error(), fiber.StatusInternalServerError)
}
