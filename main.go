package main

import (
	"log"
	"os"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"gorm.io/gorm"

	"github.com/customeros/mailsync/config"
	"github.com/customeros/mailsync/internal/database"
	"github.com/customeros/mailsync/internal/repository"
	"github.com/customeros/mailsync/server"
)

func main() {
	app := &cli.App{
		Name:  "mailsync",
		Usage: "mirror IMAP mailboxes into postgres",
		Commands: []*cli.Command{
			{
				Name:   "migrate",
				Usage:  "Run database migrations",
				Action: migrate,
			},
			{
				Name:   "server",
				Usage:  "Start the sync engine and control API",
				Action: serve,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func setup() (*config.Config, *database.DatabaseConfig, *gorm.DB, error) {
	cfg, err := config.InitConfig()
	if err != nil {
		return nil, nil, nil, errors.Wrap(err, "config initialization failed")
	}

	dbConfig := &database.DatabaseConfig{
		DBName:          cfg.MailsyncDatabaseConfig.DBName,
		Host:            cfg.MailsyncDatabaseConfig.Host,
		Port:            cfg.MailsyncDatabaseConfig.Port,
		User:            cfg.MailsyncDatabaseConfig.User,
		Password:        cfg.MailsyncDatabaseConfig.Password,
		MaxConn:         cfg.MailsyncDatabaseConfig.MaxConn,
		MaxIdleConn:     cfg.MailsyncDatabaseConfig.MaxIdleConn,
		ConnMaxLifetime: cfg.MailsyncDatabaseConfig.ConnMaxLifetime,
		LogLevel:        cfg.MailsyncDatabaseConfig.LogLevel,
		SSLMode:         cfg.MailsyncDatabaseConfig.SSLMode,
	}

	db, err := database.InitMailsyncDatabase(dbConfig)
	if err != nil {
		return nil, nil, nil, errors.Wrap(err, "mailsync database initialization failed")
	}
	return cfg, dbConfig, db, nil
}

func migrate(*cli.Context) error {
	_, dbConfig, db, err := setup()
	if err != nil {
		return err
	}
	if err := repository.MigrateDB(dbConfig, db); err != nil {
		return errors.Wrap(err, "database migration failed")
	}
	log.Println("Database migration completed successfully")
	return nil
}

func serve(*cli.Context) error {
	cfg, _, db, err := setup()
	if err != nil {
		return err
	}

	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	log.Println("Mailsync starting up...")

	srv, err := server.NewServer(cfg, db)
	if err != nil {
		return errors.Wrap(err, "server setup failed")
	}
	return srv.Run()
}
