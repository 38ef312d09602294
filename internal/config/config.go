package config

import (
	"time"

	"github.com/caarlos0/env/v11"
)

// Boxes from the segmentation service are kept only when their score is
// strictly greater than this value.
const SegmentScoreThreshold = 0.9

type PipelineConfig struct {
	// Accept every detected face regardless of its quality tier.
	BypassQualityGate bool `env:"BYPASS_QUALITY_GATE" envDefault:"false"`

	PollInterval    time.Duration `env:"TRAINING_POLL_INTERVAL" envDefault:"1s"`
	PollMaxInterval time.Duration `env:"TRAINING_POLL_MAX_INTERVAL" envDefault:"10s"`
	MaxPollAttempts uint64        `env:"TRAINING_MAX_POLL_ATTEMPTS" envDefault:"600"`

	ReadURLTTL time.Duration `env:"READ_URL_TTL" envDefault:"24h"`

	// Upper bound on groups with a training run in progress at once.
	MaxConcurrentGroups int `env:"MAX_CONCURRENT_GROUPS" envDefault:"1000"`

	// Recorded in the audit columns of every row written by the pipeline.
	Actor string `env:"PIPELINE_ACTOR" envDefault:"person-id-backend"`
}

type FaceServiceConfig struct {
	Endpoint         string        `env:"FACE_ENDPOINT,notEmpty,required"`
	SubscriptionKey  string        `env:"FACE_SUBSCRIPTION_KEY,notEmpty,required"`
	RecognitionModel string        `env:"FACE_RECOGNITION_MODEL" envDefault:"recognition_04"`
	DetectionModel   string        `env:"FACE_DETECTION_MODEL" envDefault:"detection_03"`
	Timeout          time.Duration `env:"FACE_TIMEOUT" envDefault:"30s"`
}

type SegmentationConfig struct {
	Endpoint   string        `env:"SEGMENTATION_ENDPOINT,notEmpty,required"`
	Key        string        `env:"SEGMENTATION_KEY"`
	Deployment string        `env:"SEGMENTATION_DEPLOYMENT"`
	Timeout    time.Duration `env:"SEGMENTATION_TIMEOUT" envDefault:"60s"`
}

type BlobConfig struct {
	Endpoint        string `env:"S3_ENDPOINT_URL"`
	Region          string `env:"AWS_REGION" envDefault:"us-east-1"`
	AccessKeyID     string `env:"AWS_ACCESS_KEY_ID"`
	SecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY"`
	Bucket          string `env:"BLOB_BUCKET" envDefault:"person-images"`
}

func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		BypassQualityGate:   false,
		PollInterval:        time.Second,
		PollMaxInterval:     10 * time.Second,
		MaxPollAttempts:     600,
		ReadURLTTL:          24 * time.Hour,
		MaxConcurrentGroups: 1000,
		Actor:               "person-id-backend",
	}
}

func ParsePipelineConfig() (PipelineConfig, error) {
	return env.ParseAs[PipelineConfig]()
}
