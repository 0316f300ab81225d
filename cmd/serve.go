package cmd

import (
	"fmt"
	"net"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/kartoza/decision-forecast/internal/config"
	"github.com/kartoza/decision-forecast/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long:  "Serves the forecasting, projection and training API under /api and Prometheus metrics under /metrics.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		defer logger.Sync()

		// Find an available port (try up to 10 ports starting from the requested one)
		port, err := findAvailablePort(cfg.Port, 10)
		if err != nil {
			return fmt.Errorf("failed to find available port: %w", err)
		}
		if port != cfg.Port {
			logger.Warn("port in use, using next free port", zap.Int("requested", cfg.Port), zap.Int("port", port))
			cfg.Port = port
		}

		logger.Info("starting",
			zap.String("version", cfg.Version),
			zap.Int("port", cfg.Port),
			zap.String("database", cfg.DatabaseDriver))

		// Graceful shutdown on SIGINT/SIGTERM
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		srv, err := server.New(ctx, cfg, logger)
		if err != nil {
			return fmt.Errorf("failed to create server: %w", err)
		}

		errCh := make(chan error, 1)
		go func() {
			errCh <- srv.Start()
		}()
		waitForServer(fmt.Sprintf("localhost:%d", cfg.Port), 10*time.Second, logger)

		select {
		case err := <-errCh:
			srv.Stop()
			return err
		case <-ctx.Done():
			logger.Info("shutting down")
			return srv.Stop()
		}
	},
}

func init() {
	serveCmd.Flags().IntP("port", "p", 8080, "HTTP server port")
	cobra.CheckErr(viper.BindPFlag(config.KeyPort, serveCmd.Flags().Lookup("port")))
}

// waitForServer polls until the server is accepting connections
func waitForServer(addr string, timeout time.Duration, logger *zap.Logger) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", addr, 500*time.Millisecond)
		if err == nil {
			conn.Close()
			logger.Info("server ready", zap.String("addr", addr))
			return
		}
		time.Sleep(100 * time.Millisecond)
	}
	logger.Warn("server may not be ready", zap.String("addr", addr))
}

// findAvailablePort finds an available port, starting from the given port.
// If the port is in use, it tries subsequent ports up to maxAttempts times.
func findAvailablePort(startPort int, maxAttempts int) (int, error) {
	for i := 0; i < maxAttempts; i++ {
		port := startPort + i
		listener, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
		if err == nil {
			listener.Close()
			return port, nil
		}
	}
	return 0, fmt.Errorf("no available port found after %d attempts starting from %d", maxAttempts, startPort)
}
