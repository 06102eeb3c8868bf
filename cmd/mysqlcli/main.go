package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mysqlwire/mysqlwire/api"
	"github.com/mysqlwire/mysqlwire/config"
	"github.com/mysqlwire/mysqlwire/metrics"
	"github.com/mysqlwire/mysqlwire/mysql"
	"github.com/mysqlwire/mysqlwire/pool"
)

func main() {
	configPath := flag.String("config", "configs/mysqlwire.yaml", "path to configuration file")
	targetName := flag.String("target", "", "name of the target in the config to serve a pool for (defaults to an arbitrary configured target)")
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Printf("mysqlwire starting...")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	log.Printf("configuration loaded from %s (%d targets)", *configPath, len(cfg.Targets))

	name := *targetName
	if name == "" {
		for n := range cfg.Targets {
			name = n
			break
		}
	}
	target, ok := cfg.Targets[name]
	if !ok {
		log.Fatalf("target %q not found in config", name)
	}

	m := metrics.New()

	p := pool.New(pool.Options{
		Name:                   name,
		Dial:                   dialer(name, target, m),
		OnAcquireComplete: func(d time.Duration, err error) {
			m.ObserveAcquire(name, d)
			if isAcquisitionTimeout(err) {
				m.AcquireTimeout(name)
			}
		},
		MinConnections:         cfg.Pool.MinConnections,
		MaxConnections:         cfg.Pool.MaxConnections,
		ConnectionTimeout:      cfg.Pool.ConnectionTimeout,
		IdleTimeout:            cfg.Pool.IdleTimeout,
		MaxLifetime:            cfg.Pool.MaxLifetime,
		ValidationTimeout:      cfg.Pool.ValidationTimeout,
		LeakDetectionThreshold: cfg.Pool.LeakDetectionThreshold,
		MaintenanceInterval:    cfg.Pool.MaintenanceInterval,
		AdaptiveSizing:         cfg.Pool.AdaptiveSizing,
		AdaptiveInterval:       cfg.Pool.AdaptiveInterval,
		AliveBypassWindow:      cfg.Pool.AliveBypassWindow,
		KeepaliveTime:          cfg.Pool.KeepaliveTime,
		ConnectionTestQuery:    cfg.Pool.ConnectionTestQuery,
		LogPoolState:           cfg.Pool.LogPoolState,
		PoolStateLogInterval:   cfg.Pool.PoolStateLogInterval,
	})

	stopStats := startStatsLoop(p, m, 5*time.Second)

	apiServer := api.NewServer(p, m, cfg)
	if err := apiServer.Start(cfg.API.Bind, cfg.API.Port); err != nil {
		log.Fatalf("failed to start admin API: %v", err)
	}

	configWatcher, err := config.NewWatcher(*configPath, func(newCfg *config.Config) {
		log.Printf("configuration reloaded; the running pool keeps its current settings until restart")
	})
	if err != nil {
		log.Printf("warning: config hot-reload not available: %v", err)
	}

	log.Printf("mysqlwire ready - pool %q serving %s:%d, admin API on %s:%d",
		name, target.Host, target.Port, cfg.API.Bind, cfg.API.Port)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("received signal %s, shutting down...", sig)

	close(stopStats)
	if configWatcher != nil {
		configWatcher.Stop()
	}
	apiServer.Stop()
	p.Close()

	log.Printf("mysqlwire stopped")
}

func dialer(poolName string, t config.TargetConfig, m *metrics.Collector) pool.DialFunc {
	return func(ctx context.Context) (*mysql.Session, error) {
		opts := mysql.Options{
			Host:               t.Host,
			Port:               t.Port,
			User:               t.Username,
			Password:           t.Password,
			Database:           t.Database,
			UseCursorFetch:     t.UseCursorFetch,
			UseServerPrepStmts: t.UseServerPrepStmts,
			DialTimeout:        10 * time.Second,
			OnAuthPlugin: func(plugin string, ok bool) {
				m.AuthPluginNegotiation(plugin, ok)
			},
			OnStatement: func(operation string, d time.Duration, err error) {
				m.QueryDuration(poolName, operation, d, err)
			},
		}
		switch t.TLS {
		case "trusted":
			opts.SSLMode = mysql.SSLTrusted
		case "system":
			opts.SSLMode = mysql.SSLSystem
		}
		return mysql.Connect(ctx, opts)
	}
}

// isAcquisitionTimeout reports whether err is the pool's connection
// acquisition timeout, as opposed to context cancellation or pool closure.
func isAcquisitionTimeout(err error) bool {
	var merr *mysql.Error
	return errors.As(err, &merr) && merr.Kind == mysql.KindAcquisitionTimeout
}

func startStatsLoop(p *pool.Pool, m *metrics.Collector, interval time.Duration) chan struct{} {
	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				m.UpdatePoolStats(p.Stats())
			}
		}
	}()
	return stop
}
