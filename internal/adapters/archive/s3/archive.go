package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"certivax/internal/domain/registry"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

const (
	defaultRegion = "us-east-1"
	keyPrefix     = "metadata/"
	contentType   = "application/json"
)

// Client es el subconjunto de *s3.Client que usa el archivo.
type Client interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

type Config struct {
	Region    string
	Bucket    string
	Endpoint  string // opcional; MinIO u otro endpoint compatible
	PathStyle bool
}

// Archive guarda la metadata en un bucket S3 (o compatible). La key es
// metadata/<hash hex>.json, así que el mismo payload se escribe una sola vez.
type Archive struct {
	client Client
	bucket string
}

var _ registry.MetadataArchive = (*Archive)(nil)

func New(ctx context.Context, cfg Config) (*Archive, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("s3 bucket required")
	}
	region := cfg.Region
	if region == "" {
		region = defaultRegion
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.PathStyle {
			o.UsePathStyle = true
		}
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return NewWithClient(client, cfg.Bucket), nil
}

func NewWithClient(client Client, bucket string) *Archive {
	return &Archive{client: client, bucket: bucket}
}

func Key(hash registry.Hash) string {
	return keyPrefix + strings.TrimPrefix(hash.Hex(), "0x") + ".json"
}

func (a *Archive) Put(ctx context.Context, hash registry.Hash, payload []byte) error {
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(Key(hash)),
		Body:        bytes.NewReader(payload),
		ContentType: aws.String(contentType),
		Metadata:    map[string]string{"cert-hash": hash.Hex()},
	})
	if err != nil {
		return fmt.Errorf("s3 put %s: %w", Key(hash), err)
	}
	return nil
}

func (a *Archive) Get(ctx context.Context, hash registry.Hash) ([]byte, error) {
	key := Key(hash)
	out, err := a.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("s3 object %s: %w", key, registry.ErrNotFound)
		}
		return nil, fmt.Errorf("s3 get %s: %w", key, err)
	}
	defer out.Body.Close()

	b, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("s3 read %s: %w", key, err)
	}
	return b, nil
}

func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}
