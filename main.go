package main

import (
	"context"
	"log"
	"os"

	"github.com/urfave/cli/v2"
	"gorm.io/gorm"

	"github.com/inboundly/mailcore/config"
	"github.com/inboundly/mailcore/dto"
	"github.com/inboundly/mailcore/internal/database"
	"github.com/inboundly/mailcore/internal/logger"
	"github.com/inboundly/mailcore/internal/repository"
	"github.com/inboundly/mailcore/server"
	"github.com/inboundly/mailcore/services"
)

func main() {
	app := &cli.App{
		Name:  "mailcore",
		Usage: "message correlation and conversation threading engine",
		Commands: []*cli.Command{
			{
				Name:  "migrate",
				Usage: "Run database migrations",
				Action: func(c *cli.Context) error {
					_, db, err := setup()
					if err != nil {
						return err
					}
					if err := repository.MigrateDB(db); err != nil {
						return err
					}
					log.Println("Database migration completed successfully")
					return nil
				},
			},
			{
				Name:  "server",
				Usage: "Start the application server",
				Action: func(c *cli.Context) error {
					cfg, db, err := setup()
					if err != nil {
						return err
					}

					log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
					log.Println("Mailcore starting up...")

					srv, err := server.NewServer(cfg, db)
					if err != nil {
						return err
					}
					if err := srv.Run(); err != nil {
						return err
					}

					log.Println("Shutdown complete")
					return nil
				},
			},
			{
				Name:  "backfill",
				Usage: "Resolve stored messages that have no thread assignment",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "user", Usage: "restrict the run to one account"},
					&cli.IntFlag{Name: "batch-size", Value: 100},
					&cli.IntFlag{Name: "max-items", Usage: "stop after this many messages (0 = no cap)"},
				},
				Action: func(c *cli.Context) error {
					cfg, db, err := setup()
					if err != nil {
						return err
					}

					appLogger := logger.NewAppLogger(cfg.Logger)
					appLogger.InitLogger()

					repos := repository.InitRepositories(db)
					svcs, err := services.InitServices(cfg, appLogger, repos)
					if err != nil {
						return err
					}

					result, err := svcs.BackfillService.Run(context.Background(), dto.BackfillRequest{
						UserID:    c.String("user"),
						BatchSize: c.Int("batch-size"),
						MaxItems:  c.Int("max-items"),
					})
					if err != nil {
						return err
					}

					log.Printf("Backfill complete: processed=%d threadsCreated=%d repaired=%d errors=%d",
						result.Processed, result.ThreadsCreated, result.Repaired, result.Errors)
					return nil
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func setup() (*config.Config, *gorm.DB, error) {
	cfg, err := config.InitConfig()
	if err != nil {
		return nil, nil, err
	}

	db, err := database.NewConnection(&database.DatabaseConfig{
		DBName:          cfg.MailcoreDatabaseConfig.DBName,
		Host:            cfg.MailcoreDatabaseConfig.Host,
		Port:            cfg.MailcoreDatabaseConfig.Port,
		User:            cfg.MailcoreDatabaseConfig.User,
		Password:        cfg.MailcoreDatabaseConfig.Password,
		MaxConn:         cfg.MailcoreDatabaseConfig.MaxConn,
		MaxIdleConn:     cfg.MailcoreDatabaseConfig.MaxIdleConn,
		ConnMaxLifetime: cfg.MailcoreDatabaseConfig.ConnMaxLifetime,
		LogLevel:        cfg.MailcoreDatabaseConfig.LogLevel,
		SSLMode:         cfg.MailcoreDatabaseConfig.SSLMode,
	})
	if err != nil {
		return nil, nil, err
	}

	return cfg, db, nil
}
