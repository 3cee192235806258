package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/docket/internal/keyspace"
)

// DynamoAPI is the subset of *dynamodb.Client used by DynamoStore.
type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
}

// DynamoStore keeps every bucket in a single DynamoDB table keyed by a
// hashed partition key.
//
// Item layout:
//
//	pk         S  keyspace.RecordPK(bucket, key)
//	bucket     S
//	key        S
//	data       M  record payload
//	links      L  of M{bucket, key, tag}
//	indexes    M
//	updated_at S  RFC 3339
//	ttl        N  set by soft delete
type DynamoStore struct {
	client DynamoAPI
	config DynamoConfig
}

// NewDynamoStore creates a new DynamoStore instance.
func NewDynamoStore(client DynamoAPI, cfg DynamoConfig) *DynamoStore {
	cfg.validate()
	return &DynamoStore{
		client: client,
		config: cfg,
	}
}

// NewDynamoFromConfig loads the default AWS configuration, applying the
// region, profile and endpoint overrides from cfg, and returns a store
// backed by a new DynamoDB client.
func NewDynamoFromConfig(ctx context.Context, cfg DynamoConfig) (*DynamoStore, error) {
	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.Profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(cfg.Profile))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	var clientOpts []func(*dynamodb.Options)
	if cfg.Endpoint != "" {
		clientOpts = append(clientOpts, func(o *dynamodb.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}

	return NewDynamoStore(dynamodb.NewFromConfig(awsCfg, clientOpts...), cfg), nil
}

// Table returns the table name records are written to.
func (s *DynamoStore) Table() string {
	return s.config.Table
}

func (s *DynamoStore) primaryKey(bucket, key string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"pk": &types.AttributeValueMemberS{Value: keyspace.RecordPK(bucket, key)},
	}
}

// Get retrieves a record, returning ErrNotFound if soft-deleted or missing.
// A read quorum of two or more requests a strongly consistent read.
func (s *DynamoStore) Get(ctx context.Context, bucket, key string, opts ...ReadOption) (*Record, error) {
	o := ApplyRead(opts...)
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.config.Table),
		Key:            s.primaryKey(bucket, key),
		ConsistentRead: aws.Bool(o.R >= 2),
	})
	if err != nil {
		return nil, err
	}
	if result.Item == nil || IsDeleted(result.Item) {
		return nil, ErrNotFound
	}
	return UnmarshalRecord(result.Item)
}

// Put overwrites the whole item, clearing any soft-delete TTL.
// DynamoDB has no write quorum; W and DW are accepted and ignored.
func (s *DynamoStore) Put(ctx context.Context, bucket, key string, rec *Record, opts ...WriteOption) error {
	item, err := s.marshalItem(bucket, key, rec)
	if err != nil {
		return err
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.config.Table),
		Item:      item,
	})
	return err
}

// PutIfAbsent writes rec only if no live item exists for bucket/key.
// Soft-deleted items may be replaced.
func (s *DynamoStore) PutIfAbsent(ctx context.Context, bucket, key string, rec *Record, opts ...WriteOption) (bool, error) {
	item, err := s.marshalItem(bucket, key, rec)
	if err != nil {
		return false, err
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                 aws.String(s.config.Table),
		Item:                      item,
		ConditionExpression:       aws.String(AbsentCondition()),
		ExpressionAttributeNames:  TTLNames(),
		ExpressionAttributeValues: TTLValues(),
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Delete removes the item, or marks it with TTL = now when SoftDelete is set.
func (s *DynamoStore) Delete(ctx context.Context, bucket, key string, opts ...WriteOption) error {
	if s.config.SoftDelete {
		return s.setTTL(ctx, bucket, key, time.Now().Unix())
	}
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.config.Table),
		Key:       s.primaryKey(bucket, key),
	})
	return err
}

// setTTL marks a live item for deletion.
func (s *DynamoStore) setTTL(ctx context.Context, bucket, key string, ttl int64) error {
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(s.config.Table),
		Key:                 s.primaryKey(bucket, key),
		UpdateExpression:    aws.String("SET #ttl = :ttl, #updated_at = :updated_at"),
		ConditionExpression: aws.String("attribute_exists(pk) AND attribute_not_exists(#ttl)"),
		ExpressionAttributeNames: map[string]string{
			"#ttl":        "ttl",
			"#updated_at": "updated_at",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":ttl":        &types.AttributeValueMemberN{Value: strconv.FormatInt(ttl, 10)},
			":updated_at": &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339)},
		},
	})

	// Ignore condition failure - missing or already soft-deleted
	var condErr *types.ConditionalCheckFailedException
	if errors.As(err, &condErr) {
		return nil
	}
	return err
}

func (s *DynamoStore) Exists(ctx context.Context, bucket, key string, opts ...ReadOption) (bool, error) {
	o := ApplyRead(opts...)
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:                aws.String(s.config.Table),
		Key:                      s.primaryKey(bucket, key),
		ConsistentRead:           aws.Bool(o.R >= 2),
		ProjectionExpression:     aws.String("pk, #ttl"),
		ExpressionAttributeNames: TTLNames(),
	})
	if err != nil {
		return false, err
	}
	return result.Item != nil && !IsDeleted(result.Item), nil
}

// marshalItem converts a record into a DynamoDB item.
func (s *DynamoStore) marshalItem(bucket, key string, rec *Record) (map[string]types.AttributeValue, error) {
	if rec == nil {
		rec = &Record{}
	}

	data := rec.Data
	if data == nil {
		data = map[string]any{}
	}
	dataAttr, err := attributevalue.MarshalMap(data)
	if err != nil {
		return nil, fmt.Errorf("marshal data: %w", err)
	}

	item := map[string]types.AttributeValue{
		"pk":         &types.AttributeValueMemberS{Value: keyspace.RecordPK(bucket, key)},
		"bucket":     &types.AttributeValueMemberS{Value: bucket},
		"key":        &types.AttributeValueMemberS{Value: key},
		"data":       &types.AttributeValueMemberM{Value: dataAttr},
		"updated_at": &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339)},
	}

	if len(rec.Links) > 0 {
		links := make([]types.AttributeValue, 0, len(rec.Links))
		for _, l := range rec.Links {
			links = append(links, &types.AttributeValueMemberM{Value: map[string]types.AttributeValue{
				"bucket": &types.AttributeValueMemberS{Value: l.Bucket},
				"key":    &types.AttributeValueMemberS{Value: l.Key},
				"tag":    &types.AttributeValueMemberS{Value: l.Tag},
			}})
		}
		item["links"] = &types.AttributeValueMemberL{Value: links}
	}

	if len(rec.Indexes) > 0 {
		idxAttr, err := attributevalue.MarshalMap(rec.Indexes)
		if err != nil {
			return nil, fmt.Errorf("marshal indexes: %w", err)
		}
		item["indexes"] = &types.AttributeValueMemberM{Value: idxAttr}
	}

	return item, nil
}

// UnmarshalRecord converts a DynamoDB item written by DynamoStore back into
// a Record.
func UnmarshalRecord(item map[string]types.AttributeValue) (*Record, error) {
	rec := &Record{Data: map[string]any{}}

	if v, ok := item["data"].(*types.AttributeValueMemberM); ok {
		var data map[string]any
		if err := attributevalue.UnmarshalMap(v.Value, &data); err != nil {
			return nil, fmt.Errorf("%w: data: %v", ErrInvalidRecord, err)
		}
		rec.Data = normalizeMap(data)
	}

	if v, ok := item["links"].(*types.AttributeValueMemberL); ok {
		for _, raw := range v.Value {
			m, ok := raw.(*types.AttributeValueMemberM)
			if !ok {
				continue
			}
			rec.Links = append(rec.Links, Link{
				Bucket: stringAttr(m.Value, "bucket"),
				Key:    stringAttr(m.Value, "key"),
				Tag:    stringAttr(m.Value, "tag"),
			})
		}
	}

	if v, ok := item["indexes"].(*types.AttributeValueMemberM); ok {
		var idx map[string]any
		if err := attributevalue.UnmarshalMap(v.Value, &idx); err != nil {
			return nil, fmt.Errorf("%w: indexes: %v", ErrInvalidRecord, err)
		}
		rec.Indexes = normalizeMap(idx)
	}

	return rec, nil
}

func stringAttr(m map[string]types.AttributeValue, key string) string {
	if v, ok := m[key].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}
