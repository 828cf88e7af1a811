package repository

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

type tableKey struct{ pk, sk string }

func (k tableKey) less(o tableKey) bool {
	if k.pk != o.pk {
		return k.pk < o.pk
	}
	return k.sk < o.sk
}

// fakeDynamo is an in-memory table that understands the expressions Client
// sends. Unknown expressions fail loudly so a changed query is noticed.
type fakeDynamo struct {
	mu       sync.Mutex
	items    map[tableKey]map[string]types.AttributeValue
	pageSize int
	errs     map[string]error
	calls    map[string]int

	lastQuery *dynamodb.QueryInput
	lastPut   *dynamodb.PutItemInput
}

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{
		items: make(map[tableKey]map[string]types.AttributeValue),
		errs:  make(map[string]error),
		calls: make(map[string]int),
	}
}

func (f *fakeDynamo) enter(op string) error {
	f.mu.Lock()
	f.calls[op]++
	return f.errs[op]
}

func ccf() error {
	return &types.ConditionalCheckFailedException{Message: aws.String("The conditional request failed")}
}

func keyOf(item map[string]types.AttributeValue) tableKey {
	return tableKey{pk: sAttr(item, "PK"), sk: sAttr(item, "SK")}
}

func sAttr(item map[string]types.AttributeValue, name string) string {
	if v, ok := item[name].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}

func nAttr(item map[string]types.AttributeValue, name string) int64 {
	if v, ok := item[name].(*types.AttributeValueMemberN); ok {
		n, _ := strconv.ParseInt(v.Value, 10, 64)
		return n
	}
	return 0
}

func copyItem(item map[string]types.AttributeValue) map[string]types.AttributeValue {
	out := make(map[string]types.AttributeValue, len(item))
	for k, v := range item {
		out[k] = v
	}
	return out
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	err := f.enter("GetItem")
	defer f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	item, ok := f.items[keyOf(in.Key)]
	if !ok {
		return &dynamodb.GetItemOutput{}, nil
	}
	return &dynamodb.GetItemOutput{Item: copyItem(item)}, nil
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	err := f.enter("PutItem")
	defer f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	f.lastPut = in
	k := keyOf(in.Item)
	existing, exists := f.items[k]
	switch cond := aws.ToString(in.ConditionExpression); cond {
	case "":
	case "attribute_not_exists(PK) OR resetAt < :now":
		if exists && nAttr(existing, "resetAt") >= nAttr(in.ExpressionAttributeValues, ":now") {
			return nil, ccf()
		}
	default:
		return nil, fmt.Errorf("fake: unsupported put condition %q", cond)
	}
	f.items[k] = copyItem(in.Item)
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	err := f.enter("UpdateItem")
	defer f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	k := keyOf(in.Key)
	vals := in.ExpressionAttributeValues
	existing, exists := f.items[k]
	expr := aws.ToString(in.UpdateExpression)

	switch {
	case strings.HasPrefix(expr, "SET activated = :true"):
		item := copyItem(in.Key)
		if exists {
			item = copyItem(existing)
		}
		item["activated"] = vals[":true"]
		item["lastMessageAt"] = vals[":at"]
		item["sender"] = vals[":sender"]
		item["entity"] = vals[":entity"]
		if _, ok := item["activatedAt"]; !ok {
			item["activatedAt"] = vals[":at"]
		}
		f.items[k] = item
		return &dynamodb.UpdateItemOutput{}, nil

	case expr == "SET lastMessageAt = :at":
		if !exists {
			return nil, ccf()
		}
		item := copyItem(existing)
		item["lastMessageAt"] = vals[":at"]
		f.items[k] = item
		return &dynamodb.UpdateItemOutput{}, nil

	case expr == "SET #count = #count + :one":
		if !exists || nAttr(existing, "resetAt") < nAttr(vals, ":now") {
			return nil, ccf()
		}
		item := copyItem(existing)
		item["count"] = numVal(nAttr(existing, "count") + nAttr(vals, ":one"))
		f.items[k] = item
		return &dynamodb.UpdateItemOutput{Attributes: copyItem(item)}, nil
	}
	return nil, fmt.Errorf("fake: unsupported update %q", expr)
}

func (f *fakeDynamo) DeleteItem(_ context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	err := f.enter("DeleteItem")
	defer f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	delete(f.items, keyOf(in.Key))
	return &dynamodb.DeleteItemOutput{}, nil
}

// page slices keys after start, honouring limit and the fake's page size.
func (f *fakeDynamo) page(keys []tableKey, start map[string]types.AttributeValue, limit int) ([]tableKey, map[string]types.AttributeValue) {
	if len(start) > 0 {
		sk := keyOf(start)
		for i, k := range keys {
			if k == sk {
				keys = keys[i+1:]
				break
			}
		}
	}
	if f.pageSize > 0 && (limit == 0 || f.pageSize < limit) {
		limit = f.pageSize
	}
	if limit == 0 || len(keys) <= limit {
		return keys, nil
	}
	last := keys[limit-1]
	return keys[:limit], key(last.pk, last.sk)
}

func (f *fakeDynamo) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	err := f.enter("Query")
	defer f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	f.lastQuery = in
	if cond := aws.ToString(in.KeyConditionExpression); cond != "PK = :pk" {
		return nil, fmt.Errorf("fake: unsupported key condition %q", cond)
	}
	pk := sAttr(in.ExpressionAttributeValues, ":pk")

	var keys []tableKey
	for k := range f.items {
		if k.pk == pk {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].less(keys[j]) })
	if in.ScanIndexForward != nil && !*in.ScanIndexForward {
		for i, j := 0, len(keys)-1; i < j; i, j = i+1, j-1 {
			keys[i], keys[j] = keys[j], keys[i]
		}
	}
	keys, next := f.page(keys, in.ExclusiveStartKey, int(aws.ToInt32(in.Limit)))

	out := &dynamodb.QueryOutput{Count: int32(len(keys)), LastEvaluatedKey: next}
	if in.Select != types.SelectCount {
		for _, k := range keys {
			out.Items = append(out.Items, copyItem(f.items[k]))
		}
	}
	return out, nil
}

func (f *fakeDynamo) Scan(_ context.Context, in *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	err := f.enter("Scan")
	defer f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if filter := aws.ToString(in.FilterExpression); filter != "entity = :entity AND activated = :true" {
		return nil, fmt.Errorf("fake: unsupported filter %q", filter)
	}
	keys := make([]tableKey, 0, len(f.items))
	for k := range f.items {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].less(keys[j]) })
	keys, next := f.page(keys, in.ExclusiveStartKey, 0)

	entity := sAttr(in.ExpressionAttributeValues, ":entity")
	out := &dynamodb.ScanOutput{LastEvaluatedKey: next}
	for _, k := range keys {
		item := f.items[k]
		activated, _ := item["activated"].(*types.AttributeValueMemberBOOL)
		if sAttr(item, "entity") == entity && activated != nil && activated.Value {
			out.Count++
		}
	}
	return out, nil
}

func (f *fakeDynamo) TransactWriteItems(_ context.Context, in *dynamodb.TransactWriteItemsInput, _ ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	err := f.enter("TransactWriteItems")
	defer f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	reasons := make([]types.CancellationReason, len(in.TransactItems))
	failed := false
	for i, ti := range in.TransactItems {
		reasons[i].Code = aws.String("None")
		if ti.Put == nil {
			return nil, fmt.Errorf("fake: only puts are supported")
		}
		switch cond := aws.ToString(ti.Put.ConditionExpression); cond {
		case "":
		case "attribute_not_exists(PK)":
			if _, ok := f.items[keyOf(ti.Put.Item)]; ok {
				reasons[i].Code = aws.String("ConditionalCheckFailed")
				failed = true
			}
		default:
			return nil, fmt.Errorf("fake: unsupported transact condition %q", cond)
		}
	}
	if failed {
		return nil, &types.TransactionCanceledException{
			Message:             aws.String("Transaction cancelled"),
			CancellationReasons: reasons,
		}
	}
	for _, ti := range in.TransactItems {
		f.items[keyOf(ti.Put.Item)] = copyItem(ti.Put.Item)
	}
	return &dynamodb.TransactWriteItemsOutput{}, nil
}
