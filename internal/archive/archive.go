// Package archive uploads finalized output files and their sidecars to
// S3-compatible object storage.
package archive

import (
	"bytes"
	"cmp"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/anushabukke/peerBench-sub002/internal/orchestration"
	"github.com/anushabukke/peerBench-sub002/internal/projectconfig"
	"github.com/anushabukke/peerBench-sub002/internal/signing"
)

// Environment variables read when the config names none.
const (
	DefaultAccessKeyEnv = "ARTIFACT_S3_ACCESS_KEY"
	DefaultSecretKeyEnv = "ARTIFACT_S3_SECRET_KEY"
	EndpointEnv         = "ARTIFACT_S3_ENDPOINT"
)

const zstdExt = ".zst"

// Config describes the bucket artifacts are written to.
type Config struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	Prefix    string
	UseSSL    bool
	Compress  bool
}

// ConfigFromProject resolves credentials from the environment variables
// named in cfg.
func ConfigFromProject(cfg projectconfig.ArchiveConfig) Config {
	accessEnv := cmp.Or(cfg.AccessKeyEnv, DefaultAccessKeyEnv)
	secretEnv := cmp.Or(cfg.SecretKeyEnv, DefaultSecretKeyEnv)
	return Config{
		Endpoint:  cmp.Or(cfg.Endpoint, os.Getenv(EndpointEnv)),
		Region:    cfg.Region,
		AccessKey: os.Getenv(accessEnv),
		SecretKey: os.Getenv(secretEnv),
		Bucket:    cfg.Bucket,
		Prefix:    cfg.Prefix,
		UseSSL:    cfg.UseSSL == nil || *cfg.UseSSL,
		Compress:  cfg.Compress != nil && *cfg.Compress,
	}
}

// objectStore is the subset of *minio.Client the archive uses.
type objectStore interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucket, object string, reader io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// Store is an orchestration.Sink that archives artifacts under
// <prefix><runID>/<file>.
type Store struct {
	client   objectStore
	bucket   string
	region   string
	prefix   string
	compress bool

	bucketMu    sync.Mutex
	bucketReady bool
}

// New connects to the configured endpoint. No request is made until the
// first upload.
func New(cfg Config) (*Store, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("archive endpoint is required")
	}
	access := strings.TrimSpace(cfg.AccessKey)
	secret := strings.TrimSpace(cfg.SecretKey)
	if access == "" || secret == "" {
		return nil, fmt.Errorf("archive access key and secret key are required")
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, fmt.Errorf("archive bucket is required")
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(access, secret, ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("init s3 client: %w", err)
	}
	return newStore(client, bucket, region, cfg.Prefix, cfg.Compress), nil
}

func newStore(client objectStore, bucket, region, prefix string, compress bool) *Store {
	return &Store{client: client, bucket: bucket, region: region, prefix: prefix, compress: compress}
}

// Name implements orchestration.Sink.
func (s *Store) Name() string { return "archive" }

// Publish uploads the data file, zstd-compressed when enabled, then its
// sidecar. The sidecar goes last so a listed sidecar implies its data is
// present.
func (s *Store) Publish(ctx context.Context, a orchestration.Artifact) error {
	if err := s.ensureBucket(ctx); err != nil {
		return fmt.Errorf("ensure bucket: %w", err)
	}

	data, err := os.ReadFile(a.Path)
	if err != nil {
		return err
	}
	key := s.ObjectKey(a.RunID, filepath.Base(a.Path))
	contentType := "application/json"
	encoding := ""
	if s.compress {
		if data, err = compress(data); err != nil {
			return err
		}
		key += zstdExt
		encoding = "zstd"
	}

	meta := map[string]string{
		"kind":    a.Kind,
		"records": strconv.Itoa(a.Records),
	}
	if a.Sidecar != nil {
		meta["cid"] = a.Sidecar.CID
		meta["sha256"] = a.Sidecar.SHA256
	}
	if err := s.put(ctx, key, data, minio.PutObjectOptions{
		ContentType:     contentType,
		ContentEncoding: encoding,
		UserMetadata:    meta,
	}); err != nil {
		return err
	}

	sidecar, err := os.ReadFile(signing.SidecarPath(a.Path))
	if err != nil {
		return err
	}
	return s.put(ctx, s.ObjectKey(a.RunID, filepath.Base(signing.SidecarPath(a.Path))), sidecar, minio.PutObjectOptions{
		ContentType: "application/json",
	})
}

// ObjectKey returns the key a file of a run is stored under.
func (s *Store) ObjectKey(runID, name string) string {
	runID = strings.TrimSpace(runID)
	if runID == "" {
		runID = "unassigned"
	}
	return s.prefix + runID + "/" + strings.TrimLeft(name, "/")
}

func (s *Store) put(ctx context.Context, key string, data []byte, opts minio.PutObjectOptions) error {
	if _, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), opts); err != nil {
		return fmt.Errorf("uploading %s: %w", key, err)
	}
	return nil
}

// ensureBucket creates the bucket when missing. Only success is remembered,
// so a failed check is retried by the next upload.
func (s *Store) ensureBucket(ctx context.Context) error {
	s.bucketMu.Lock()
	defer s.bucketMu.Unlock()

	if s.bucketReady {
		return nil
	}
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return err
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
			return err
		}
	}
	s.bucketReady = true
	return nil
}

func compress(data []byte) ([]byte, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	if err != nil {
		return nil, fmt.Errorf("creating zstd encoder: %w", err)
	}
	defer enc.Close() //nolint:errcheck
	return enc.EncodeAll(data, make([]byte, 0, len(data)/2)), nil
}
