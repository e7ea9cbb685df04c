// Package archive stores delivered transmission scripts in an S3 bucket.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/signalsfoundry/flightplan-orchestrator/internal/logging"
)

// Record is one transmission delivered to a ground station.
type Record struct {
	RequestID       string    `json:"requestId"`
	FlightPlanID    string    `json:"flightPlanId"`
	SatelliteID     string    `json:"satelliteId"`
	GroundStationID string    `json:"groundStationId"`
	ExecutionTime   time.Time `json:"executionTime"`
	TransmittedAt   time.Time `json:"transmittedAt"`
	Script          []string  `json:"script"`
}

// ObjectClient is the subset of *minio.Client used by Store.
type ObjectClient interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// Config describes an S3 endpoint.
type Config struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
	Bucket          string
	Prefix          string
}

// NewMinIOClient builds an S3 client for cfg.
func NewMinIOClient(cfg Config) (*minio.Client, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("archive endpoint is required")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}
	return client, nil
}

// Store writes one JSON object per transmission.
type Store struct {
	client ObjectClient
	bucket string
	prefix string
	log    logging.Logger
}

// New returns a Store writing to bucket under prefix.
func New(client ObjectClient, bucket, prefix string, log logging.Logger) *Store {
	if log == nil {
		log = logging.Noop()
	}
	return &Store{client: client, bucket: bucket, prefix: prefix, log: log}
}

// EnsureBucket creates the bucket when it does not exist.
func (s *Store) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if exists {
		return nil
	}
	s.log.Info(ctx, "creating archive bucket", logging.String("bucket", s.bucket))
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	return nil
}

// Put stores rec and returns its object key.
func (s *Store) Put(ctx context.Context, rec Record) (string, error) {
	body, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("encode archive record: %w", err)
	}
	key := Key(s.prefix, rec)
	_, err = s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(body), int64(len(body)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return "", fmt.Errorf("put %s/%s: %w", s.bucket, key, err)
	}
	s.log.Debug(ctx, "archived transmission",
		logging.FlightPlanID(rec.FlightPlanID),
		logging.String("object", key),
	)
	return key, nil
}

// Key is the object name of rec: prefix/satellite/yyyy/mm/dd/plan-request.json,
// dated by transmission time.
func Key(prefix string, rec Record) string {
	day := rec.TransmittedAt.UTC().Format("2006/01/02")
	return path.Join(prefix, rec.SatelliteID, day, rec.FlightPlanID+"-"+rec.RequestID+".json")
}
