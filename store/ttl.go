package store

import (
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// IsDeleted checks if an item has an expired TTL (is soft-deleted).
func IsDeleted(item map[string]types.AttributeValue) bool {
	ttlAttr, exists := item["ttl"]
	if !exists {
		return false // No TTL = active
	}
	ttlNum, ok := ttlAttr.(*types.AttributeValueMemberN)
	if !ok {
		return false
	}
	ttl, err := strconv.ParseInt(ttlNum.Value, 10, 64)
	if err != nil {
		return false
	}
	return ttl <= time.Now().Unix()
}

// AbsentCondition returns the condition expression that holds when an item
// is missing or soft-deleted.
func AbsentCondition() string {
	return "attribute_not_exists(pk) OR #ttl <= :now"
}

// TTLNames returns expression attribute names for TTL conditions.
func TTLNames() map[string]string {
	return map[string]string{"#ttl": "ttl"}
}

// TTLValues returns expression attribute values for TTL conditions.
func TTLValues() map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		":now": &types.AttributeValueMemberN{
			Value: strconv.FormatInt(time.Now().Unix(), 10),
		},
	}
}
