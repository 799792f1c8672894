package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/langchou/carledger/internal/api/handlers"
	"github.com/langchou/carledger/pkg/ws"
)

// serveCmd 启动 HTTP 服务
func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Initialize the database and start the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			defer logger.Sync()

			logger.Info("Starting Carledger", zap.String("port", cfg.ServerPort))

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				logger.Fatal("Failed to connect database", zap.Error(err))
			}
			defer a.Close()

			// 初始化完成后补齐海拔
			a.db.OnInit(func(ctx context.Context) error {
				_, err := a.ledger.BackfillAltitude(ctx)
				return err
			})
			if err := a.db.Init(ctx); err != nil {
				logger.Fatal("Failed to initialize database", zap.Error(err))
			}

			a.hub.SetInitDataProvider(func() *ws.InitData {
				return a.ledger.InitData(ctx)
			})
			go a.hub.Run(ctx)

			handler := handlers.NewHandler(logger, a.positions, a.charges, a.soh, a.ledger, a.charging, a.hub)

			if !cfg.Debug {
				gin.SetMode(gin.ReleaseMode)
			}

			router := gin.New()
			router.Use(gin.Recovery())
			router.Use(corsMiddleware())
			handler.RegisterRoutes(router)

			server := &http.Server{
				Addr:    ":" + cfg.ServerPort,
				Handler: router,
			}

			go func() {
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Fatal("Failed to start server", zap.Error(err))
				}
			}()

			logger.Info("Server started", zap.String("addr", server.Addr))

			<-ctx.Done()
			logger.Info("Shutting down server...")

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()

			if err := server.Shutdown(shutdownCtx); err != nil {
				logger.Error("Server forced to shutdown", zap.Error(err))
			}

			logger.Info("Server exited")
			return nil
		},
	}
}

// backfillAltitudeCmd 手动补齐海拔
func backfillAltitudeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backfill-altitude",
		Short: "Look up missing altitudes from the elevation API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx := cmd.Context()
			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.db.Init(ctx); err != nil {
				return err
			}
			_, err = a.ledger.BackfillAltitude(ctx)
			return err
		},
	}
}

// priceChargesCmd 为未计费的充电记录计算费用
func priceChargesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "price-charges",
		Short: "Price every closed charging session without a price",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx := cmd.Context()
			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.db.Init(ctx); err != nil {
				return err
			}
			n, err := a.charging.PriceUnpriced(ctx)
			if err != nil {
				return err
			}
			cmd.Printf("%d charging sessions priced\n", n)
			return nil
		},
	}
}
