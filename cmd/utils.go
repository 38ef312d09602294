package cmd

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"person-id-backend/internal/config"
	"person-id-backend/internal/core"
	"person-id-backend/internal/database"
	"person-id-backend/internal/faceapi"
	"person-id-backend/internal/messaging"
	"person-id-backend/internal/segmentation"
	"person-id-backend/internal/storage"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gorm.io/gorm"
)

func LoadEnvFile() {
	var configPath string

	flag.StringVar(&configPath, "env", "", "path to load env from")
	flag.Parse()

	if configPath == "" {
		log.Printf("no env file specified, using os.Environ only")
		return
	}

	log.Printf("loading env from file %s", configPath)
	err := godotenv.Load(configPath)
	if err != nil {
		log.Fatalf("error loading .env file '%s': %v", configPath, err)
	}
}

// ServiceConfigs holds the settings shared by every entrypoint.
type ServiceConfigs struct {
	Pipeline     config.PipelineConfig
	Face         config.FaceServiceConfig
	Segmentation config.SegmentationConfig
}

func ParseServiceConfigs() ServiceConfigs {
	pipeline, err := config.ParsePipelineConfig()
	if err != nil {
		log.Fatalf("error parsing pipeline config: %v", err)
	}

	face, err := env.ParseAs[config.FaceServiceConfig]()
	if err != nil {
		log.Fatalf("error parsing face service config: %v", err)
	}

	segCfg, err := env.ParseAs[config.SegmentationConfig]()
	if err != nil {
		log.Fatalf("error parsing segmentation config: %v", err)
	}

	return ServiceConfigs{Pipeline: pipeline, Face: face, Segmentation: segCfg}
}

// CreateBlobStore uses S3 when an endpoint or bucket credentials are
// configured and a local directory otherwise.
func CreateBlobStore(ctx context.Context, cfg config.BlobConfig, localDir string) storage.BlobStore {
	if cfg.Endpoint == "" && cfg.AccessKeyID == "" {
		slog.Info("using local blob store", "dir", localDir)
		blobs, err := storage.NewLocalBlobStore(localDir)
		if err != nil {
			log.Fatalf("failed to create local blob store: %v", err)
		}
		return blobs
	}

	blobs, err := storage.NewS3BlobStore(cfg.Bucket, storage.S3ClientConfig{
		Endpoint:        cfg.Endpoint,
		Region:          cfg.Region,
		AccessKeyID:     cfg.AccessKeyID,
		SecretAccessKey: cfg.SecretAccessKey,
	})
	if err != nil {
		log.Fatalf("failed to create s3 blob store: %v", err)
	}

	if err := blobs.CreateBucket(ctx); err != nil {
		log.Fatalf("failed to create bucket %s: %v", cfg.Bucket, err)
	}

	slog.Info("using s3 blob store", "endpoint", cfg.Endpoint, "bucket", cfg.Bucket)
	return blobs
}

// CreateQueue connects to RabbitMQ when a url is given and falls back to an
// in-process queue.
func CreateQueue(rabbitMQURL string) (messaging.Publisher, messaging.Reciever) {
	if rabbitMQURL == "" {
		slog.Info("using in memory task queue")
		queue := messaging.NewInMemoryQueue()
		return queue, queue
	}

	publisher, err := messaging.NewRabbitMQPublisher(rabbitMQURL)
	if err != nil {
		log.Fatalf("failed to create rabbitmq publisher: %v", err)
	}

	reciever, err := messaging.NewRabbitMQReceiver(rabbitMQURL)
	if err != nil {
		log.Fatalf("failed to create rabbitmq receiver: %v", err)
	}

	return publisher, reciever
}

type Pipeline struct {
	Faces      *faceapi.Client
	Trainer    *core.TrainingOrchestrator
	Identifier *core.IdentificationOrchestrator
}

func NewPipeline(db *gorm.DB, blobs storage.BlobStore, cfgs ServiceConfigs) Pipeline {
	faces := faceapi.NewClient(cfgs.Face)
	store := database.NewCoordinator(db)
	segmenter := segmentation.NewSegmenter(segmentation.NewClient(cfgs.Segmentation), blobs)

	return Pipeline{
		Faces:      faces,
		Trainer:    core.NewTrainingOrchestrator(faces, blobs, store, cfgs.Pipeline),
		Identifier: core.NewIdentificationOrchestrator(faces, blobs, segmenter, store, cfgs.Pipeline),
	}
}
