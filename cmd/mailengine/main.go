package main

import (
	"fmt"
	"log"
	"os"

	"github.com/postlane/mailengine/internal/app"
	"github.com/postlane/mailengine/internal/config"
	"github.com/postlane/mailengine/internal/database"
	"github.com/postlane/mailengine/internal/repository"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cfg, err := config.InitConfig()
	if err != nil {
		log.Fatalf("config initialization failed: %v", err)
	}
	if cfg == nil {
		log.Fatalf("config is empty")
	}

	db, err := database.InitDatabase(&database.DatabaseConfig{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		DBName:          cfg.Database.DBName,
		Password:        cfg.Database.Password,
		MaxConn:         cfg.Database.MaxConn,
		MaxIdleConn:     cfg.Database.MaxIdleConn,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		SSLMode:         cfg.Database.SSLMode,
	})
	if err != nil {
		log.Fatalf("database initialization failed: %v", err)
	}

	switch os.Args[1] {
	case "migrate":
		if err := repository.MigrateDB(cfg.Database, db); err != nil {
			log.Fatalf("database migration failed: %v", err)
		}
		log.Println("database migration completed successfully")

	case "server":
		a, err := app.NewApp(cfg, db)
		if err != nil {
			log.Fatalf("app setup failed: %v", err)
		}

		if err := a.Run(); err != nil {
			log.Fatalf("app run failed: %v", err)
		}

		log.Println("shutdown complete")

	default:
		fmt.Printf("unknown command: %s\n", os.Args[1])
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Println("Usage: mailengine <command>")
	fmt.Println("Commands:")
	fmt.Println("  migrate   Run database migrations")
	fmt.Println("  server    Start the mail engine process")
}
