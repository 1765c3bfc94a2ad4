package main

import (
	"fmt"
	logger "log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ardanlabs/conf"
	"github.com/jaktransit/etacast/app/eta-svc/etasvc"
	"github.com/jaktransit/etacast/business/data/history"
	"github.com/jaktransit/etacast/business/data/schedule"
	"github.com/jaktransit/etacast/foundation/database"
	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
)

var build = "develop"

func main() {
	log := logger.New(os.Stdout, "ETA_SVC : ", logger.LstdFlags|logger.Lmicroseconds|logger.Lshortfile)
	if err := run(log); err != nil {
		log.Printf("main: error: %v", err)
		os.Exit(1)
	}
}

func run(log *logger.Logger) error {

	//vendor credentials are commonly kept in a local .env file
	if err := godotenv.Load(); err == nil {
		log.Println("main: loaded environment from .env")
	}

	var cfg struct {
		conf.Version
		Args conf.Args
		DB   struct {
			User       string `conf:"default:postgres"`
			Password   string `conf:"default:postgres,noprint"`
			Host       string `conf:"default:0.0.0.0"`
			Name       string `conf:"default:postgres"`
			DisableTLS bool   `conf:"default:true"`
		}
		NATS struct {
			Url string `conf:"default:nats://localhost:4222"`
		}
		REDIS struct {
			Host string `conf:"default:localhost:6379"`
		}
		VENDOR struct {
			BaseUrl  string `conf:"default:http://esb.transjakarta.co.id/api/v2"`
			Username string `conf:"noprint"`
			Password string `conf:"noprint"`
			ApiKey   string `conf:"noprint"`
		}
		ETA struct {
			Corridors             []string `conf:"default:4B;D21;9H"`
			LoopEverySeconds      int      `conf:"default:5"`
			ExpirePositionSeconds int      `conf:"default:900"`
			HttpPort              int      `conf:"default:8080"`
			Timezone              string   `conf:"default:Asia/Jakarta"`
			CongestionBins        int      `conf:"default:8"`
		}
	}
	cfg.Version.SVN = build
	cfg.Version.Desc = "Realtime bus ETA prediction service"
	const prefix = "ETA"
	if err := conf.Parse(os.Args[1:], prefix, &cfg); err != nil {
		switch err {
		case conf.ErrHelpWanted:
			usage, err := conf.Usage(prefix, &cfg)
			if err != nil {
				return fmt.Errorf("generating config usage: %w", err)
			}
			fmt.Println(usage)
			return nil
		case conf.ErrVersionWanted:
			version, err := conf.VersionString(prefix, &cfg)
			if err != nil {
				return fmt.Errorf("generating config version: %w", err)
			}
			fmt.Println(version)
			return nil
		}
		return fmt.Errorf("parsing config: %w", err)
	}

	// =========================================================================
	// App Starting

	log.Printf("main : Started : Application initializing : version %s", build)
	defer log.Println("main: Completed")

	out, err := conf.String(&cfg)
	if err != nil {
		return fmt.Errorf("generating config for output: %w", err)
	}
	log.Printf("main: Config :\n%v\n", out)

	location, err := time.LoadLocation(cfg.ETA.Timezone)
	if err != nil {
		return fmt.Errorf("loading timezone %s: %w", cfg.ETA.Timezone, err)
	}

	// =========================================================================
	// Start Database

	log.Println("main: Initializing database support")

	db, err := database.Open(database.Config{
		User:       cfg.DB.User,
		Password:   cfg.DB.Password,
		Host:       cfg.DB.Host,
		Name:       cfg.DB.Name,
		DisableTLS: cfg.DB.DisableTLS,
	})
	if err != nil {
		return fmt.Errorf("connecting to db: %w", err)
	}
	defer func() {
		log.Printf("main: Database Stopping : %s", cfg.DB.Host)
		err = db.Close()
		if err != nil {
			log.Printf("main: error closing database: %v", err)
		}
	}()

	// =========================================================================
	// Load static schedule and build the geometry index

	log.Println("main: Loading static schedule")

	static, err := schedule.LoadStatic(db, cfg.ETA.Corridors)
	if err != nil {
		return fmt.Errorf("loading static schedule: %w", err)
	}
	index, err := etasvc.BuildGeometryIndex(static)
	if err != nil {
		return fmt.Errorf("building geometry index: %w", err)
	}
	binning, err := etasvc.BuildStopBinning(static.StopMeanETAs, cfg.ETA.CongestionBins)
	if err != nil {
		return fmt.Errorf("building congestion bins: %w", err)
	}

	// =========================================================================
	// Connect nats and redis

	log.Printf("main: Connecting to nats at %s", cfg.NATS.Url)
	natsConnection, err := nats.Connect(cfg.NATS.Url)
	if err != nil {
		return fmt.Errorf("connecting to nats: %w", err)
	}
	defer natsConnection.Close()

	log.Printf("main: Connecting to redis at %s", cfg.REDIS.Host)
	redisClient := redis.NewClient(&redis.Options{Addr: cfg.REDIS.Host})
	defer func() {
		_ = redisClient.Close()
	}()
	store := history.NewStore(redisClient, location)

	// Make a channel to listen for an interrupt or terminate signal from the OS.
	// Use a buffered channel because the signal package requires it.
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	etasvc.StartServices(log, index, binning, store, natsConnection, etasvc.Config{
		Corridors:             cfg.ETA.Corridors,
		LoopEverySeconds:      cfg.ETA.LoopEverySeconds,
		ExpirePositionSeconds: cfg.ETA.ExpirePositionSeconds,
		HttpPort:              cfg.ETA.HttpPort,
		Vendor: etasvc.VendorConfig{
			BaseURL:  cfg.VENDOR.BaseUrl,
			Username: cfg.VENDOR.Username,
			Password: cfg.VENDOR.Password,
			APIKey:   cfg.VENDOR.ApiKey,
		},
		Location: location,
	}, shutdown)

	return nil
}
