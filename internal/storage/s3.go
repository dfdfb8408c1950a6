package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"net/url"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/OFFIS-RIT/kiwi/kgcorrect/internal/util"
	"github.com/OFFIS-RIT/kiwi/kgcorrect/pkg/logger"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// ObjectAPI is the part of the S3 client the exporter uses.
type ObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	s3.ListObjectsV2APIClient
}

const linkExpiry = 15 * time.Minute

// NewS3Client builds a path-style client from the AWS_* environment. It
// returns nil when AWS_ENDPOINT is not set.
func NewS3Client(ctx context.Context) (*s3.Client, error) {
	endpoint := util.GetEnv("AWS_ENDPOINT")
	if endpoint == "" {
		return nil, nil
	}
	region := util.GetEnvString("AWS_REGION", "us-east-1")
	accessKey := util.GetEnv("AWS_ACCESS_KEY")
	secretKey := util.GetEnv("AWS_SECRET_KEY")
	cfg, err := config.LoadDefaultConfig(
		ctx,
		config.WithRegion(region),
		config.WithBaseEndpoint(endpoint),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			accessKey,
			secretKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = true
	})
	return client, nil
}

// Exporter writes JSON documents for a graph under
// <prefix>/<graph>/<export id>/<name>.json.
type Exporter struct {
	client ObjectAPI
	bucket string
	prefix string

	presign    *s3.PresignClient
	linkPrefix string
}

func NewExporter(client ObjectAPI, bucket, prefix string) *Exporter {
	return &Exporter{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

// WithDownloadLinks enables presigned links for publicEndpoint, the URL
// under which clients reach the object store. A path on publicEndpoint,
// as used behind a reverse proxy, is prepended to every link. Links stay
// disabled when publicEndpoint is empty or invalid.
func (e *Exporter) WithDownloadLinks(client *s3.Client, publicEndpoint string) *Exporter {
	if client == nil || publicEndpoint == "" {
		return e
	}
	public, err := url.Parse(publicEndpoint)
	if err != nil || public.Scheme == "" || public.Host == "" {
		logger.Warn("[Storage] Invalid public endpoint, download links disabled", "endpoint", publicEndpoint)
		return e
	}

	// Signing against the public host keeps the signature valid for the
	// Host header the caller will send.
	opts := client.Options()
	publicClient := s3.NewFromConfig(aws.Config{
		Region:      opts.Region,
		Credentials: opts.Credentials,
		HTTPClient:  opts.HTTPClient,
	}, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(public.Scheme + "://" + public.Host)
		o.UsePathStyle = true
	})
	e.presign = s3.NewPresignClient(publicClient, s3.WithPresignExpires(linkExpiry))
	e.linkPrefix = strings.TrimSuffix(public.Path, "/")
	return e
}

// Export uploads every document and returns the keys in sorted name order.
func (e *Exporter) Export(ctx context.Context, graphID string, docs map[string]any) ([]string, error) {
	id, err := gonanoid.New(10)
	if err != nil {
		return nil, err
	}
	exportID := time.Now().UTC().Format("20060102T150405Z") + "-" + id

	keys := make([]string, 0, len(docs))
	for _, name := range slices.Sorted(maps.Keys(docs)) {
		data, err := json.MarshalIndent(docs[name], "", "  ")
		if err != nil {
			return keys, fmt.Errorf("failed to encode %s: %w", name, err)
		}
		key := path.Join(e.prefix, graphID, exportID, name+".json")
		if err := e.Put(ctx, key, "application/json", data); err != nil {
			return keys, err
		}
		keys = append(keys, key)
	}
	return keys, nil
}

func (e *Exporter) Put(ctx context.Context, key, contentType string, data []byte) error {
	_, err := e.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(e.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s to S3: %w", key, err)
	}
	return nil
}

// List returns the keys of all exports of graphID.
func (e *Exporter) List(ctx context.Context, graphID string) ([]string, error) {
	prefix := path.Join(e.prefix, graphID) + "/"
	pages := s3.NewListObjectsV2Paginator(e.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(e.bucket),
		Prefix: aws.String(prefix),
	})

	var keys []string
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list objects with prefix %s: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}
	return keys, nil
}

// DownloadLink presigns a GET for key. It returns an empty string when
// links are not enabled.
func (e *Exporter) DownloadLink(ctx context.Context, key string) (string, error) {
	if e.presign == nil {
		return "", nil
	}
	out, err := e.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(e.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate download link: %w", err)
	}
	if e.linkPrefix == "" {
		return out.URL, nil
	}
	signed, err := url.Parse(out.URL)
	if err != nil {
		return "", fmt.Errorf("failed to parse presigned url: %w", err)
	}
	signed.Path = e.linkPrefix + signed.Path
	return signed.String(), nil
}
