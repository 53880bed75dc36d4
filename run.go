package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"PGateway/global/config"
	"PGateway/logger"
	"PGateway/middleware"
	"PGateway/service/auth"
	"PGateway/service/broker"
	"PGateway/service/gate"
	"PGateway/service/health"
	"PGateway/service/metrics"
	"PGateway/service/natsx"
	"PGateway/service/storage"
	redisx "PGateway/service/storage/redis"
	"PGateway/tools/ids"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	shutdownTimeout = 15 * time.Second
	watchInterval   = 2 * time.Second
	directoryPrefix = "gate"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the configuration and exit",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "configuration ok: node=%s listen=%s%s verifier=%s\n",
			cfg.Gateway.NodeID, cfg.Gateway.ListenAddress, cfg.Gateway.Path, cfg.Auth.Verifier)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	return cfg, nil
}

func runGateway(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log := logger.New(logger.Config{
		Level:    cfg.Log.Level,
		Encoding: cfg.Log.Encoding,
		Service:  "gateway",
	}).With(zap.String("node", cfg.Gateway.NodeID))
	logger.SetLogger(log)
	defer logger.Sync()
	gin.SetMode(gin.ReleaseMode)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var m *metrics.Collector
	if cfg.Metrics.Enabled {
		m = metrics.NewCollector(cfg.Metrics.Namespace, nil)
	}

	// 1) internal RPC gate
	nc, err := natsx.Connect(natsx.Config{
		Servers:       cfg.NATS.Servers,
		Name:          cfg.NATS.Name + "-" + cfg.Gateway.NodeID,
		User:          cfg.NATS.User,
		Password:      cfg.NATS.Password,
		ReconnectWait: cfg.NATS.ReconnectWait,
	}, log)
	if err != nil {
		return err
	}
	defer nc.Close()

	rpcGate := natsx.NewGate(nc, natsx.GateConfig{
		Prefix:         cfg.NATS.SubjectPrefix,
		NodeID:         cfg.Gateway.NodeID,
		RequestTimeout: cfg.NATS.RequestTimeout,
		Services:       cfg.NATS.Services,
		DedupTTL:       cfg.NATS.DedupTTL,
	}, natsx.WithLogger(log))
	defer rpcGate.Close()

	// 2) signature verifier
	verifier, err := auth.New(cfg.Auth, rpcGate)
	if err != nil {
		return err
	}

	// 3) optional channel directory
	var dir storage.Directory = storage.NopDirectory{}
	if cfg.Redis.Addr != "" {
		rdb, err := redisx.Open(ctx, redisx.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err != nil {
			return err
		}
		defer rdb.Close()
		dir = storage.NewRedisDirectory(rdb, directoryPrefix, cfg.Gateway.NodeID, cfg.Redis.DirectoryTTL)
		log.Info("channel directory enabled", zap.String("redis", cfg.Redis.Addr))
	}

	// 4) broker
	b := broker.New(rpcGate, verifier, broker.Config{
		NodeID:          cfg.Gateway.NodeID,
		DefaultService:  cfg.Broker.DefaultService,
		MethodDelimiter: cfg.Broker.MethodDelimiter,
		SecretBytes:     cfg.Broker.SecretBytes,
		MaxInflight:     cfg.Broker.MaxInflight,
		OfflineService:  cfg.Broker.OfflineTarget(),
		OfflineAction:   cfg.Broker.OfflineAction,
	}, broker.WithLogger(log), broker.WithMetrics(m), broker.WithDirectory(dir))
	if err := b.Start(); err != nil {
		return err
	}

	// 5) health
	var hs *health.Server
	if cfg.Health.GRPCAddress != "" {
		hs = health.New(cfg.Health.GRPCAddress, log)
		if err := hs.Start(); err != nil {
			return err
		}
		defer hs.Stop()
	}

	// 6) websocket gateway
	var (
		ready atomic.Bool
		gw    *gate.Gateway
	)
	gateOpts := []gate.Option{
		gate.WithLogger(log),
		gate.WithMetrics(m),
		gate.WithOriginCheck(middleware.CheckOrigin(cfg.Gateway.AllowedOrigins)),
		gate.WithMiddleware(middleware.AccessLog(log)),
		gate.WithRoutes(func(r gin.IRoutes) {
			r.GET("/healthz", func(c *gin.Context) {
				if !ready.Load() {
					c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
					return
				}
				c.JSON(http.StatusOK, gin.H{"status": "ok", "connections": gw.Len(), "channels": b.Len()})
			})
			if m != nil {
				r.GET(cfg.Metrics.Path, gin.WrapH(m.Handler()))
			}
		}),
	}
	if cfg.Gateway.ChannelIDs == "snowflake" {
		sf, err := ids.NewSnowflake(cfg.Gateway.WorkerID)
		if err != nil {
			return err
		}
		gateOpts = append(gateOpts, gate.WithIDGenerator(sf.NextString))
	}
	gw = gate.New(gate.Config{
		ListenAddress:     cfg.Gateway.ListenAddress,
		Path:              cfg.Gateway.Path,
		HeartbeatInterval: cfg.Gateway.HeartbeatInterval,
		WriteTimeout:      cfg.Gateway.WriteTimeout,
		ReadLimit:         cfg.Gateway.ReadLimit,
	}, gateOpts...)
	if err := gw.Start(b.Handle); err != nil {
		return err
	}
	setReady := func(ok bool) {
		ready.Store(ok)
		if hs != nil {
			hs.SetServing(ok)
		}
	}
	setReady(nc.Connected())
	log.Info("gateway started",
		zap.String("addr", gw.Addr()),
		zap.String("path", cfg.Gateway.Path),
		zap.String("transfer_subject", rpcGate.RouteSubject(broker.RouteTransfer)))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// readiness follows the NATS connection
		t := time.NewTicker(watchInterval)
		defer t.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-t.C:
				if up := nc.Connected(); up != ready.Load() {
					log.Info("readiness changed", zap.Bool("ready", up))
					setReady(up)
				}
			}
		}
	})

	<-gctx.Done()
	log.Info("shutting down")
	setReady(false)

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := gw.Stop(sctx); err != nil {
		log.Warn("gateway stop", zap.Error(err))
	}
	if err := b.Wait(sctx); err != nil {
		log.Warn("broker drain", zap.Error(err))
	}
	return g.Wait()
}
