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

// registrationSKLayout is fixed width so that SK order is creation order.
const registrationSKLayout = "2006-01-02T15:04:05.000000000Z"

// ErrDuplicateRegistration is returned when a registration ID already exists.
var ErrDuplicateRegistration = store.ErrDuplicateRegistration

// SaveRegistration writes the record and an ID guard item in one transaction.
// The guard makes a repeated ID fail instead of adding a second record.
func (c *Client) SaveRegistration(ctx context.Context, rec domain.RegistrationRecord) (string, error) {
	rec, err := store.PrepareRegistration(rec, c.clock.Now())
	if err != nil {
		return "", fmt.Errorf("repository: SaveRegistration: %w", err)
	}

	guard := key("REGID#"+rec.ID, skRegID)
	guard["sender"] = strVal(rec.Sender)

	_, err = c.api.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Put: &types.Put{
					TableName:           aws.String(c.tableName),
					Item:                guard,
					ConditionExpression: aws.String("attribute_not_exists(PK)"),
				},
			},
			{
				Put: &types.Put{
					TableName: aws.String(c.tableName),
					Item:      registrationItem(rec),
				},
			},
		},
	})
	if err != nil {
		var tce *types.TransactionCanceledException
		if errors.As(err, &tce) && guardRejected(tce) {
			return "", fmt.Errorf("repository: SaveRegistration %s: %w", rec.ID, ErrDuplicateRegistration)
		}
		return "", fmt.Errorf("repository: SaveRegistration: %w", err)
	}
	return rec.ID, nil
}

func guardRejected(tce *types.TransactionCanceledException) bool {
	if len(tce.CancellationReasons) == 0 {
		return false
	}
	code := tce.CancellationReasons[0].Code
	return code != nil && *code == "ConditionalCheckFailed"
}

func (c *Client) CountRegistrations(ctx context.Context) (int, error) {
	total := 0
	var start map[string]types.AttributeValue
	for {
		out, err := c.api.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(c.tableName),
			KeyConditionExpression: aws.String("PK = :pk"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":pk": strVal(pkRegistry),
			},
			Select:            types.SelectCount,
			ExclusiveStartKey: start,
		})
		if err != nil {
			return 0, fmt.Errorf("repository: CountRegistrations query: %w", err)
		}
		total += int(out.Count)
		if len(out.LastEvaluatedKey) == 0 {
			return total, nil
		}
		start = out.LastEvaluatedKey
	}
}

// ListRecentRegistrations reads the REG partition backwards.
func (c *Client) ListRecentRegistrations(ctx context.Context, limit int) ([]domain.RegistrationRecord, error) {
	if limit <= 0 {
		return nil, nil
	}
	recs := make([]domain.RegistrationRecord, 0, limit)
	var start map[string]types.AttributeValue
	for len(recs) < limit {
		out, err := c.api.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(c.tableName),
			KeyConditionExpression: aws.String("PK = :pk"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":pk": strVal(pkRegistry),
			},
			ScanIndexForward:  aws.Bool(false),
			Limit:             aws.Int32(int32(limit - len(recs))),
			ExclusiveStartKey: start,
		})
		if err != nil {
			return nil, fmt.Errorf("repository: ListRecentRegistrations query: %w", err)
		}
		for _, item := range out.Items {
			rec, err := itemToRegistration(item)
			if err != nil {
				return nil, fmt.Errorf("repository: ListRecentRegistrations decode: %w", err)
			}
			recs = append(recs, rec)
		}
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		start = out.LastEvaluatedKey
	}
	return recs, nil
}

func registrationSK(rec domain.RegistrationRecord) string {
	return rec.CreatedAt.UTC().Format(registrationSKLayout) + "#" + rec.ID
}

func registrationItem(rec domain.RegistrationRecord) map[string]types.AttributeValue {
	item := key(pkRegistry, registrationSK(rec))
	item["id"] = strVal(rec.ID)
	item["sender"] = strVal(rec.Sender)
	item["program"] = strVal(rec.Program)
	item["name"] = strVal(rec.Name)
	item["nik"] = strVal(rec.NIK)
	item["address"] = strVal(rec.Address)
	item["phone"] = strVal(rec.Phone)
	item["status"] = strVal(rec.Status)
	item["createdAt"] = numVal(rec.CreatedAt.UnixNano())
	return item
}

func itemToRegistration(item map[string]types.AttributeValue) (domain.RegistrationRecord, error) {
	var rec domain.RegistrationRecord
	var err error
	fields := []struct {
		name string
		dst  *string
	}{
		{"id", &rec.ID},
		{"sender", &rec.Sender},
		{"program", &rec.Program},
		{"name", &rec.Name},
		{"nik", &rec.NIK},
		{"address", &rec.Address},
		{"phone", &rec.Phone},
		{"status", &rec.Status},
	}
	for _, f := range fields {
		if *f.dst, err = optStrAttr(item, f.name); err != nil {
			return rec, err
		}
	}
	if rec.ID == "" {
		return rec, fmt.Errorf("repository: registration item has no id")
	}
	ns, err := int64Attr(item, "createdAt")
	if err != nil {
		return rec, err
	}
	rec.CreatedAt = time.Unix(0, ns).UTC()
	return rec, nil
}
