package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"dinsos-bot/internal/domain"
	"dinsos-bot/internal/store"
)

// maxIncrementAttempts bounds the update/put race between concurrent writers
// for the same sender.
const maxIncrementAttempts = 4

var errIncrementContention = errors.New("repository: rate limit window kept changing")

func (c *Client) GetRateLimit(ctx context.Context, sender string) (*domain.RateLimitRecord, error) {
	item, err := c.getItem(ctx, userPK(sender), skRateLimit)
	if err != nil {
		return nil, fmt.Errorf("repository: GetRateLimit get item: %w", err)
	}
	if item == nil {
		return nil, nil
	}
	rec, err := itemToRateLimit(sender, item)
	if err != nil {
		return nil, fmt.Errorf("repository: GetRateLimit decode: %w", err)
	}
	return &rec, nil
}

func (c *Client) UpsertRateLimit(ctx context.Context, sender string, count int, resetAt time.Time) error {
	_, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.tableName),
		Item:      rateLimitItem(domain.RateLimitRecord{Sender: sender, Count: count, ResetAt: resetAt}),
	})
	if err != nil {
		return fmt.Errorf("repository: UpsertRateLimit: %w", err)
	}
	return nil
}

// IncrementRateLimit adds one to a live window with a conditional update. When
// the window is missing or expired it writes a fresh one instead, guarded so
// that a concurrent writer's fresh window is never overwritten.
func (c *Client) IncrementRateLimit(ctx context.Context, sender string, now time.Time, window time.Duration) (domain.RateLimitRecord, error) {
	for attempt := 0; attempt < maxIncrementAttempts; attempt++ {
		rec, ok, err := c.incrementLive(ctx, sender, now)
		if err != nil {
			return domain.RateLimitRecord{}, err
		}
		if ok {
			return rec, nil
		}

		fresh := store.FreshWindow(sender, now, window)
		ok, err = c.putFresh(ctx, fresh, now)
		if err != nil {
			return domain.RateLimitRecord{}, err
		}
		if ok {
			return fresh, nil
		}
	}
	return domain.RateLimitRecord{}, fmt.Errorf("repository: IncrementRateLimit %s: %w", sender, errIncrementContention)
}

func (c *Client) incrementLive(ctx context.Context, sender string, now time.Time) (domain.RateLimitRecord, bool, error) {
	out, err := c.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(c.tableName),
		Key:                 key(userPK(sender), skRateLimit),
		UpdateExpression:    aws.String("SET #count = #count + :one"),
		ConditionExpression: aws.String("attribute_exists(PK) AND resetAt >= :now"),
		ExpressionAttributeNames: map[string]string{
			"#count": "count",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":one": numVal(1),
			":now": millisVal(now),
		},
		ReturnValues: types.ReturnValueAllNew,
	})
	if isConditionFailed(err) {
		return domain.RateLimitRecord{}, false, nil
	}
	if err != nil {
		return domain.RateLimitRecord{}, false, fmt.Errorf("repository: IncrementRateLimit update: %w", err)
	}
	rec, err := itemToRateLimit(sender, out.Attributes)
	if err != nil {
		return domain.RateLimitRecord{}, false, fmt.Errorf("repository: IncrementRateLimit decode: %w", err)
	}
	return rec, true, nil
}

func (c *Client) putFresh(ctx context.Context, fresh domain.RateLimitRecord, now time.Time) (bool, error) {
	_, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(c.tableName),
		Item:                rateLimitItem(fresh),
		ConditionExpression: aws.String("attribute_not_exists(PK) OR resetAt < :now"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":now": millisVal(now),
		},
	})
	if isConditionFailed(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("repository: IncrementRateLimit put: %w", err)
	}
	return true, nil
}

func rateLimitItem(rec domain.RateLimitRecord) map[string]types.AttributeValue {
	item := key(userPK(rec.Sender), skRateLimit)
	item["sender"] = strVal(rec.Sender)
	item["count"] = numVal(int64(rec.Count))
	item["resetAt"] = millisVal(rec.ResetAt)
	return item
}

func itemToRateLimit(sender string, item map[string]types.AttributeValue) (domain.RateLimitRecord, error) {
	count, err := int64Attr(item, "count")
	if err != nil {
		return domain.RateLimitRecord{}, err
	}
	resetAt, err := timeAttr(item, "resetAt")
	if err != nil {
		return domain.RateLimitRecord{}, err
	}
	return domain.RateLimitRecord{Sender: sender, Count: int(count), ResetAt: resetAt}, nil
}
