package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/jacentio/docket/internal/keyspace"
)

// S3API is the subset of *s3.Client used by S3Store.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// S3Store keeps one JSON object per record under prefix/bucket/key.
// It has no conditional write, so unique claims fall back to
// check-then-write.
type S3Store struct {
	client S3API
	config S3Config
}

// jsonRecord is the object body of a Record.
type jsonRecord struct {
	Data    map[string]any `json:"data"`
	Links   []jsonLink     `json:"links,omitempty"`
	Indexes map[string]any `json:"indexes,omitempty"`
}

type jsonLink struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
	Tag    string `json:"tag"`
}

// NewS3Store creates a new S3Store instance.
func NewS3Store(client S3API, cfg S3Config) *S3Store {
	cfg.validate()
	return &S3Store{
		client: client,
		config: cfg,
	}
}

// NewS3FromConfig creates an S3 client from the default AWS configuration,
// applying region, static credentials and a custom endpoint when set.
func NewS3FromConfig(ctx context.Context, cfg S3Config) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("docket: s3 bucket is required")
	}

	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		creds := credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")
		opts = append(opts, config.WithCredentialsProvider(creds))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	var clientOpts []func(*s3.Options)
	if cfg.Endpoint != "" {
		clientOpts = append(clientOpts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true // For S3-compatible services
		})
	}

	return NewS3Store(s3.NewFromConfig(awsCfg, clientOpts...), cfg), nil
}

func (s *S3Store) objectKey(bucket, key string) *string {
	return aws.String(keyspace.ObjectKey(s.config.Prefix, bucket, key))
}

func (s *S3Store) Get(ctx context.Context, bucket, key string, opts ...ReadOption) (*Record, error) {
	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.config.Bucket),
		Key:    s.objectKey(bucket, key),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read object: %w", err)
	}
	return decodeJSON(body)
}

func (s *S3Store) Put(ctx context.Context, bucket, key string, rec *Record, opts ...WriteOption) error {
	body, err := encodeJSON(rec)
	if err != nil {
		return err
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.config.Bucket),
		Key:         s.objectKey(bucket, key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("put object: %w", err)
	}
	return nil
}

// Delete removes the object. S3 deletes of missing keys succeed.
func (s *S3Store) Delete(ctx context.Context, bucket, key string, opts ...WriteOption) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.config.Bucket),
		Key:    s.objectKey(bucket, key),
	})
	if err != nil && !isS3NotFound(err) {
		return fmt.Errorf("delete object: %w", err)
	}
	return nil
}

func (s *S3Store) Exists(ctx context.Context, bucket, key string, opts ...ReadOption) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.config.Bucket),
		Key:    s.objectKey(bucket, key),
	})
	if err != nil {
		if isS3NotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// isS3NotFound matches both the typed GetObject error and the bare 404
// returned by HEAD requests.
func isS3NotFound(err error) bool {
	var nsk *s3types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var nf *s3types.NotFound
	if errors.As(err, &nf) {
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

func encodeJSON(rec *Record) ([]byte, error) {
	if rec == nil {
		rec = &Record{}
	}
	doc := jsonRecord{Data: rec.Data, Indexes: rec.Indexes}
	if doc.Data == nil {
		doc.Data = map[string]any{}
	}
	for _, l := range rec.Links {
		doc.Links = append(doc.Links, jsonLink(l))
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	return body, nil
}

func decodeJSON(body []byte) (*Record, error) {
	var doc jsonRecord
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	rec := &Record{Data: doc.Data, Indexes: doc.Indexes}
	if rec.Data == nil {
		rec.Data = map[string]any{}
	}
	for _, l := range doc.Links {
		rec.Links = append(rec.Links, Link(l))
	}
	return rec, nil
}
