package main

import (
	"fmt"
	logger "log"
	"os"

	"github.com/ardanlabs/conf"

	"github.com/jaktransit/etacast/app/schedule-loader/schedmanager"
	"github.com/jaktransit/etacast/foundation/database"
)

var build = "develop"

func main() {
	log := logger.New(os.Stdout, "SCHEDULE_LOADER : ", logger.LstdFlags|logger.Lmicroseconds|logger.Lshortfile)
	if err := run(log); err != nil {
		log.Printf("main: error: %v", err)
		os.Exit(1)
	}
}

func run(log *logger.Logger) error {
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
		FEED struct {
			Url       string   `conf:"default:gtfs.zip"`
			TempDir   string   `conf:"default:feed_tmp"`
			Corridors []string `conf:"default:4B;D21;9H"`
		}
	}
	cfg.Version.SVN = build
	cfg.Version.Desc = "Maintain schedule tables for the eta service"
	if err := conf.Parse(os.Args[1:], "SCHEDULE_LOADER", &cfg); err != nil {
		switch err {
		case conf.ErrHelpWanted:
			usage, err := conf.Usage("SCHEDULE_LOADER", &cfg)
			if err != nil {
				return fmt.Errorf("generating config usage: %w", err)
			}
			fmt.Println(usage)
			return nil
		case conf.ErrVersionWanted:
			version, err := conf.VersionString("SCHEDULE_LOADER", &cfg)
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

	switch cfg.Args.Num(0) {
	case "load":
		err = schedmanager.UpdateSchedule(log, db, cfg.FEED.TempDir, cfg.FEED.Url, cfg.FEED.Corridors)
		if err != nil {
			return err
		}
		return schedmanager.ListSchedule(log, db)

	case "list":
		return schedmanager.ListSchedule(log, db)

	default:
		fmt.Println("load: parse a gtfs feed and replace the schedule tables")
		fmt.Println("list: show row counts for the schedule tables")
		usage, err := conf.Usage("SCHEDULE_LOADER", &cfg)
		if err != nil {
			return fmt.Errorf("generating config usage: %w", err)
		}
		fmt.Println(usage)
	}
	return nil
}
