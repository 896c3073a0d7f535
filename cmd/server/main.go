// Command server runs the Mariáš game server: a TCP listener, a fixed set
// of rooms and a round-result store.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/SoMi7k/UPS/config"
	"github.com/SoMi7k/UPS/engine"
	"github.com/SoMi7k/UPS/logger"
	"github.com/SoMi7k/UPS/results"
	"github.com/SoMi7k/UPS/room"
	"github.com/SoMi7k/UPS/server"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to the YAML configuration file")
		host       = flag.String("i", "", "listen address, overrides the config file")
		port       = flag.Int("p", 0, "listen port, overrides the config file")
		rooms      = flag.Int("l", 0, "number of rooms, overrides the config file")
		players    = flag.Int("n", 0, "players per room, overrides the config file")
		redisAddr  = flag.String("redis", "", "redis address for the result store, overrides the config file")
	)
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if *host != "" {
		cfg.Server.Host = *host
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *rooms != 0 {
		cfg.Server.Rooms = *rooms
	}
	if *players != 0 {
		cfg.Server.Players = *players
	}
	if *redisAddr != "" {
		cfg.Results.Backend = "redis"
		cfg.Results.RedisAddr = *redisAddr
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log := logger.NewConsole("marias-server", cfg.Log.Level)

	store, err := buildStore(cfg.Results)
	if err != nil {
		log.Error("result store unavailable", logger.F("error", err.Error()))
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	roomList := make([]*room.Room, 0, cfg.Server.Rooms)
	for i := 0; i < cfg.Server.Rooms; i++ {
		roomList = append(roomList, room.New(i, room.Config{
			Capacity:       cfg.Server.Players,
			SweepInterval:  cfg.Game.SweepInterval,
			StartDelay:     cfg.Game.StartDelay,
			AuthTimeout:    cfg.Game.AuthTimeout,
			ReconnectGrace: cfg.Game.ReconnectGrace,
		}, engine.New(), store, log))
	}
	dir := room.NewDirectory(roomList)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := server.New("marias", addr, dir, log)
	if err := srv.Start(); err != nil {
		os.Exit(1)
	}
	log.Info("serving", logger.F("rooms", cfg.Server.Rooms), logger.F("players", cfg.Server.Players))

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	sig := <-stop

	log.Info("shutting down", logger.F("signal", sig.String()))
	srv.Stop()
}

func buildStore(cfg config.Results) (results.Store, error) {
	switch cfg.Backend {
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("redis at %s: %w", cfg.RedisAddr, err)
		}
		return results.NewRedisStore(client, cfg.TTL), nil
	default:
		return results.NewMemoryStore(cfg.TTL), nil
	}
}
