package repository

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"

	"github.com/qaisarrafique/image-vectorizer/internal/config"
)

const archivePrefix = "archives/"

// ArchiveStore keeps produced ZIP archives for later re-download. It is an
// optional add-on: the conversion pipeline itself never persists anything.
type ArchiveStore interface {
	Save(ctx context.Context, id string, archive []byte) error
	Open(ctx context.Context, id string) (io.ReadCloser, error)
	List(ctx context.Context) ([]string, error)
}

type s3Store struct {
	client *s3.Client
	cfg    *config.S3Config
	log    *zap.Logger
}

func NewS3ArchiveStore(cfg *config.S3Config, log *zap.Logger) (ArchiveStore, error) {
	customResolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
		if cfg.Endpoint != "" {
			return aws.Endpoint{
				URL:               endpointURL(cfg),
				HostnameImmutable: true,
				Source:            aws.EndpointSourceCustom,
			}, nil
		}
		return aws.Endpoint{}, &aws.EndpointNotFoundError{}
	})

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithEndpointResolverWithOptions(customResolver),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
		awsconfig.WithRegion(cfg.Region),
	)
	if err != nil {
		return nil, err
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = true
	})

	store := &s3Store{
		client: client,
		cfg:    cfg,
		log:    log,
	}

	if err := store.ensureBucketExists(context.Background()); err != nil {
		log.Warn("failed to ensure archive bucket exists", zap.Error(err))
	}

	return store, nil
}

func endpointURL(cfg *config.S3Config) string {
	if strings.Contains(cfg.Endpoint, "://") {
		return cfg.Endpoint
	}
	scheme := "http"
	if cfg.UseSSL {
		scheme = "https"
	}
	return scheme + "://" + cfg.Endpoint
}

func (s *s3Store) ensureBucketExists(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s.cfg.BucketName),
	})
	if err == nil {
		return nil
	}

	s.log.Info("creating archive bucket", zap.String("bucket", s.cfg.BucketName))

	_, err = s.client.CreateBucket(ctx, &s3.CreateBucketInput{
		Bucket: aws.String(s.cfg.BucketName),
		CreateBucketConfiguration: &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(s.cfg.Region),
		},
	})
	return err
}

func (s *s3Store) Save(ctx context.Context, id string, archive []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.cfg.BucketName),
		Key:           aws.String(archivePrefix + id + ".zip"),
		Body:          bytes.NewReader(archive),
		ContentType:   aws.String("application/zip"),
		ContentLength: aws.Int64(int64(len(archive))),
	})
	if err != nil {
		s.log.Error("failed to store archive",
			zap.String("id", id),
			zap.Error(err))
		return err
	}

	s.log.Info("archive stored",
		zap.String("id", id),
		zap.Int("size", len(archive)))
	return nil
}

func (s *s3Store) Open(ctx context.Context, id string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.BucketName),
		Key:    aws.String(archivePrefix + id + ".zip"),
	})
	if err != nil {
		return nil, err
	}
	return out.Body, nil
}

func (s *s3Store) List(ctx context.Context) ([]string, error) {
	out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.cfg.BucketName),
		Prefix: aws.String(archivePrefix),
	})
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(out.Contents))
	for _, obj := range out.Contents {
		id := strings.TrimPrefix(*obj.Key, archivePrefix)
		ids = append(ids, strings.TrimSuffix(id, ".zip"))
	}
	sort.Strings(ids)
	return ids, nil
}
