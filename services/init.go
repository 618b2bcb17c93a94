package services

import (
	"github.com/redis/go-redis/v9"

	"github.com/inboundly/mailcore/config"
	"github.com/inboundly/mailcore/interfaces"
	"github.com/inboundly/mailcore/internal/cooldown"
	"github.com/inboundly/mailcore/internal/logger"
	"github.com/inboundly/mailcore/internal/repository"
	"github.com/inboundly/mailcore/services/backfill"
	"github.com/inboundly/mailcore/services/dsn"
	"github.com/inboundly/mailcore/services/notify"
	"github.com/inboundly/mailcore/services/storage"
	"github.com/inboundly/mailcore/services/storage/aws_client"
	"github.com/inboundly/mailcore/services/threading"
)

type Services struct {
	ThreadingService interfaces.ThreadingService
	DSNService       interfaces.DSNService
	BackfillService  interfaces.BackfillService
	StorageService   interfaces.StorageService
	Publisher        *notify.RabbitMQPublisher
}

// InitServices wires the service graph. RabbitMQ, Redis and R2 are all
// optional: without them notifications and raw blob storage degrade to no-ops
// and resolution itself keeps working.
func InitServices(cfg *config.Config, log logger.Logger, repos *repository.Repositories) (*Services, error) {
	services := &Services{}

	var dispatcher interfaces.NotificationDispatcher
	if cfg.AppConfig.RabbitMQURL != "" {
		publisher, err := notify.NewRabbitMQPublisher(cfg.AppConfig.RabbitMQURL, log, nil)
		if err != nil {
			return nil, err
		}
		services.Publisher = publisher
		dispatcher = publisher
	}

	var cooldownStore interfaces.CooldownStore
	if cfg.AppConfig.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.AppConfig.RedisURL)
		if err != nil {
			return nil, err
		}
		cooldownStore = cooldown.NewRedisStore(redis.NewClient(opts))
	}

	if cfg.R2StorageConfig.AccountID != "" {
		client, err := aws_client.NewR2Client(aws_client.R2Config{
			AccountID:       cfg.R2StorageConfig.AccountID,
			AccessKeyID:     cfg.R2StorageConfig.AccessKeyID,
			AccessKeySecret: cfg.R2StorageConfig.AccessKeySecret,
			BucketName:      cfg.R2StorageConfig.RawEmailBucket,
		})
		if err != nil {
			return nil, err
		}
		services.StorageService = storage.NewStorageService(client, storage.StorageConfig{
			BucketName: cfg.R2StorageConfig.RawEmailBucket,
		})
	}

	services.ThreadingService = threading.NewThreadingService(repos, log)
	services.DSNService = dsn.NewDSNService(repos, dispatcher, cooldownStore, log)
	services.BackfillService = backfill.NewBackfillService(repos, services.ThreadingService, log)

	return services, nil
}
