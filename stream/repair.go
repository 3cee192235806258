// Package stream provides DynamoDB Streams handlers that repair unique
// registry entries left behind by interrupted saves and deletes.
package stream

import (
	"context"
	"fmt"
	"strconv"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	"github.com/jacentio/docket/document"
	"github.com/jacentio/docket/internal/keyspace"
	"github.com/jacentio/docket/store"
)

// Handler processes stream events of a DynamoStore table. The stream must
// carry NEW_AND_OLD_IMAGES.
type Handler struct {
	registry *document.Registry
	logger   *zap.Logger
}

// NewHandler creates a new stream handler.
func NewHandler(r *document.Registry, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		registry: r,
		logger:   logger,
	}
}

// HandleUniqueRepair releases unique entries that still name a document
// which no longer holds the value: the document was removed (REMOVE), soft
// deleted (MODIFY setting ttl), or changed the value (MODIFY).
// This function is designed to be used as an AWS Lambda handler.
func (h *Handler) HandleUniqueRepair(ctx context.Context, event events.DynamoDBEvent) error {
	for _, record := range event.Records {
		if err := h.processRecord(ctx, record); err != nil {
			h.logger.Error("failed to process record",
				zap.String("eventID", record.EventID),
				zap.Error(err),
			)
			return err // Will retry, eventually DLQ
		}
	}
	return nil
}

// processRecord processes a single DynamoDB stream record.
func (h *Handler) processRecord(ctx context.Context, record events.DynamoDBEventRecord) error {
	var removed bool
	switch record.EventName {
	case "REMOVE":
		removed = true
	case "MODIFY":
		oldTTL := getNumberAttr(record.Change.OldImage, "ttl")
		newTTL := getNumberAttr(record.Change.NewImage, "ttl")
		removed = oldTTL == 0 && newTTL != 0
	default:
		return nil
	}

	bucket := getStringAttr(record.Change.OldImage, "bucket")
	key := getStringAttr(record.Change.OldImage, "key")
	if bucket == "" || key == "" || keyspace.IsUniqueBucket(bucket) {
		return nil
	}
	typ, err := h.registry.TypeOf(bucket)
	if err != nil {
		h.logger.Debug("skipping unknown bucket", zap.String("bucket", bucket))
		return nil
	}

	before, err := StreamRecord(record.Change.OldImage)
	if err != nil {
		return fmt.Errorf("decode old image: %w", err)
	}
	after, err := StreamRecord(record.Change.NewImage)
	if err != nil {
		return fmt.Errorf("decode new image: %w", err)
	}

	released := 0
	for _, field := range typ.UniqueFields() {
		value := before.Value(field)
		if value == nil {
			continue
		}
		if !removed && fmt.Sprint(after.Value(field)) == fmt.Sprint(value) {
			continue
		}

		ok, err := typ.ReleaseOrphan(ctx, field, value, key)
		if err != nil {
			return fmt.Errorf("release %s.%s of %s: %w", bucket, field, key, err)
		}
		if ok {
			released++
		}
	}

	if released > 0 {
		h.logger.Info("unique repair completed",
			zap.String("bucket", bucket),
			zap.String("key", key),
			zap.String("event", record.EventName),
			zap.Int("released", released),
		)
	}
	return nil
}

// StreamRecord decodes a stream image of a DynamoStore item.
func StreamRecord(image map[string]events.DynamoDBAttributeValue) (*store.Record, error) {
	return store.UnmarshalRecord(ConvertStreamImage(image))
}

// getStringAttr extracts a string attribute from a DynamoDB stream image.
func getStringAttr(image map[string]events.DynamoDBAttributeValue, key string) string {
	if v, ok := image[key]; ok && v.DataType() == events.DataTypeString {
		return v.String()
	}
	return ""
}

// getNumberAttr extracts a number attribute from a DynamoDB stream image.
func getNumberAttr(image map[string]events.DynamoDBAttributeValue, key string) int64 {
	if v, ok := image[key]; ok {
		if v.DataType() == events.DataTypeNumber {
			n, _ := strconv.ParseInt(v.Number(), 10, 64)
			return n
		}
	}
	return 0
}

// ConvertStreamImage converts a DynamoDB stream image to SDK attribute
// values, so stream items decode the same way as items read by DynamoStore.
func ConvertStreamImage(image map[string]events.DynamoDBAttributeValue) map[string]types.AttributeValue {
	result := make(map[string]types.AttributeValue, len(image))
	for k, v := range image {
		if av := convertAttr(v); av != nil {
			result[k] = av
		}
	}
	return result
}

func convertAttr(v events.DynamoDBAttributeValue) types.AttributeValue {
	switch v.DataType() {
	case events.DataTypeString:
		return &types.AttributeValueMemberS{Value: v.String()}
	case events.DataTypeNumber:
		return &types.AttributeValueMemberN{Value: v.Number()}
	case events.DataTypeBinary:
		return &types.AttributeValueMemberB{Value: v.Binary()}
	case events.DataTypeBoolean:
		return &types.AttributeValueMemberBOOL{Value: v.Boolean()}
	case events.DataTypeNull:
		return &types.AttributeValueMemberNULL{Value: true}
	case events.DataTypeStringSet:
		return &types.AttributeValueMemberSS{Value: v.StringSet()}
	case events.DataTypeNumberSet:
		return &types.AttributeValueMemberNS{Value: v.NumberSet()}
	case events.DataTypeBinarySet:
		return &types.AttributeValueMemberBS{Value: v.BinarySet()}
	case events.DataTypeList:
		list := make([]types.AttributeValue, 0, len(v.List()))
		for _, item := range v.List() {
			if av := convertAttr(item); av != nil {
				list = append(list, av)
			}
		}
		return &types.AttributeValueMemberL{Value: list}
	case events.DataTypeMap:
		return &types.AttributeValueMemberM{Value: ConvertStreamImage(v.Map())}
	}
	return nil
}
