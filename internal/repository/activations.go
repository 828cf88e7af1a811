package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"dinsos-bot/internal/domain"
)

func (c *Client) GetActivation(ctx context.Context, sender string) (*domain.ActivationRecord, error) {
	item, err := c.getItem(ctx, userPK(sender), skActivation)
	if err != nil {
		return nil, fmt.Errorf("repository: GetActivation get item: %w", err)
	}
	if item == nil {
		return nil, nil
	}
	rec, err := itemToActivation(sender, item)
	if err != nil {
		return nil, fmt.Errorf("repository: GetActivation decode: %w", err)
	}
	return &rec, nil
}

// SetActivated marks sender activated. activatedAt is only written when the
// item does not have one yet.
func (c *Client) SetActivated(ctx context.Context, sender string, at time.Time) error {
	_, err := c.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        aws.String(c.tableName),
		Key:              key(userPK(sender), skActivation),
		UpdateExpression: aws.String("SET activated = :true, activatedAt = if_not_exists(activatedAt, :at), lastMessageAt = :at, sender = :sender, entity = :entity"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":true":   &types.AttributeValueMemberBOOL{Value: true},
			":at":     millisVal(at),
			":sender": strVal(sender),
			":entity": strVal(entityActivation),
		},
	})
	if err != nil {
		return fmt.Errorf("repository: SetActivated: %w", err)
	}
	return nil
}

// TouchActivation updates lastMessageAt of an existing record; a missing
// record is left absent.
func (c *Client) TouchActivation(ctx context.Context, sender string, at time.Time) error {
	_, err := c.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(c.tableName),
		Key:                 key(userPK(sender), skActivation),
		UpdateExpression:    aws.String("SET lastMessageAt = :at"),
		ConditionExpression: aws.String("attribute_exists(PK)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":at": millisVal(at),
		},
	})
	if err != nil && !isConditionFailed(err) {
		return fmt.Errorf("repository: TouchActivation: %w", err)
	}
	return nil
}

// CountActivations scans the table for activation items.
func (c *Client) CountActivations(ctx context.Context) (int, error) {
	total := 0
	var start map[string]types.AttributeValue
	for {
		out, err := c.api.Scan(ctx, &dynamodb.ScanInput{
			TableName:        aws.String(c.tableName),
			Select:           types.SelectCount,
			FilterExpression: aws.String("entity = :entity AND activated = :true"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":entity": strVal(entityActivation),
				":true":   &types.AttributeValueMemberBOOL{Value: true},
			},
			ExclusiveStartKey: start,
		})
		if err != nil {
			return 0, fmt.Errorf("repository: CountActivations scan: %w", err)
		}
		total += int(out.Count)
		if len(out.LastEvaluatedKey) == 0 {
			return total, nil
		}
		start = out.LastEvaluatedKey
	}
}

func itemToActivation(sender string, item map[string]types.AttributeValue) (domain.ActivationRecord, error) {
	activatedAt, err := timeAttr(item, "activatedAt")
	if err != nil {
		return domain.ActivationRecord{}, err
	}
	lastMessageAt, err := timeAttr(item, "lastMessageAt")
	if err != nil {
		return domain.ActivationRecord{}, err
	}
	return domain.ActivationRecord{
		Sender:        sender,
		Activated:     boolAttr(item, "activated"),
		ActivatedAt:   activatedAt,
		LastMessageAt: lastMessageAt,
	}, nil
}
