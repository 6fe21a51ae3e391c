package main

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/convmap/internal/api"
	"github.com/samcharles93/convmap/internal/logger"
)

func serveCmd() *cli.Command {
	var (
		addr         string
		readTimeout  time.Duration
		computeUnits int64
	)

	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the REST API for simulations and transpose planning",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "addr",
				Usage:       "listen address",
				Value:       "127.0.0.1:8080",
				Destination: &addr,
			},
			&cli.DurationFlag{
				Name:        "read-timeout",
				Usage:       "read header timeout",
				Value:       30 * time.Second,
				Destination: &readTimeout,
			},
			&cli.Int64Flag{
				Name:        "compute-units",
				Usage:       "default compute units for transpose plans",
				Value:       1,
				Destination: &computeUnits,
			},
			&cli.Int64Flag{
				Name:        "workers",
				Aliases:     []string{"j"},
				Usage:       "goroutines deriving thread addresses per simulation",
				Value:       1,
				Destination: &workers,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			log := logger.FromContext(ctx)
			applyServeConfig(c, LoadConfig(), &addr, &computeUnits)

			server := api.NewServer(api.NewRunStore(), api.Options{
				Workers:      int(workers),
				ComputeUnits: int(computeUnits),
			})
			e := echo.New()
			e.Use(middleware.RequestLogger())
			e.Use(middleware.Recover())
			e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
				return func(ec *echo.Context) error {
					req := ec.Request()
					ec.SetRequest(req.WithContext(logger.WithContext(req.Context(), log)))
					return next(ec)
				}
			})
			server.Register(e)

			log.Info("starting server", "address", addr)
			sc := echo.StartConfig{
				Address: addr,
				BeforeServeFunc: func(srv *http.Server) error {
					srv.ReadHeaderTimeout = readTimeout
					return nil
				},
			}
			return sc.Start(ctx, e)
		},
	}
}
