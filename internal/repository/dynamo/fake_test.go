package dynamo

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

type attrs = map[string]types.AttributeValue

// fakeDynamo is an in-memory stand-in for the conditional writes and
// filtered scans the store issues. It pages scans pageSize items at a time.
type fakeDynamo struct {
	mu       sync.Mutex
	tables   map[string]map[string]attrs
	pageSize int
	err      error
	scans    int
}

func newFakeDynamo(tables ...string) *fakeDynamo {
	f := &fakeDynamo{tables: make(map[string]map[string]attrs), pageSize: 2}
	for _, t := range tables {
		f.tables[t] = make(map[string]attrs)
	}
	return f
}

func sval(av types.AttributeValue) string {
	if s, ok := av.(*types.AttributeValueMemberS); ok {
		return s.Value
	}
	return ""
}

func nval(av types.AttributeValue) int64 {
	if n, ok := av.(*types.AttributeValueMemberN); ok {
		v, _ := strconv.ParseInt(n.Value, 10, 64)
		return v
	}
	return 0
}

func pkOf(item attrs) string {
	if v, ok := item["email_key"]; ok {
		return sval(v)
	}
	return sval(item["id"])
}

func (f *fakeDynamo) table(name *string) (map[string]attrs, error) {
	t, ok := f.tables[aws.ToString(name)]
	if !ok {
		return nil, &types.ResourceNotFoundException{Message: aws.String("table not found")}
	}
	return t, nil
}

func ownedReservation(existing attrs, vals attrs) bool {
	return existing != nil &&
		sval(existing["id"]) == sval(vals[":id"]) &&
		sval(existing["record_state"]) == sval(vals[":reserved"])
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	t, err := f.table(in.TableName)
	if err != nil {
		return nil, err
	}
	pk := pkOf(in.Item)
	if in.ConditionExpression != nil {
		existing := t[pk]
		vals := in.ExpressionAttributeValues
		expired := existing != nil &&
			sval(existing["record_state"]) == sval(vals[":reserved"]) &&
			nval(existing["reserved_until"]) < nval(vals[":now"])
		if existing != nil && !expired {
			return nil, &types.ConditionalCheckFailedException{Message: aws.String("conditional request failed")}
		}
	}
	t[pk] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	t, err := f.table(in.TableName)
	if err != nil {
		return nil, err
	}
	pk := sval(in.Key["email_key"])
	vals := in.ExpressionAttributeValues
	existing := t[pk]
	if !ownedReservation(existing, vals) {
		return nil, &types.ConditionalCheckFailedException{Message: aws.String("conditional request failed")}
	}

	updated := make(attrs, len(existing))
	for k, v := range existing {
		updated[k] = v
	}
	updated["record_state"] = vals[":committed"]
	updated["sync_status"] = vals[":status"]
	updated["sync_external_id"] = vals[":ext_id"]
	updated["sync_external_status"] = vals[":ext_status"]
	delete(updated, "reserved_until")
	t[pk] = updated
	return &dynamodb.UpdateItemOutput{}, nil
}

func (f *fakeDynamo) DeleteItem(_ context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	t, err := f.table(in.TableName)
	if err != nil {
		return nil, err
	}
	pk := sval(in.Key["email_key"])
	if !ownedReservation(t[pk], in.ExpressionAttributeValues) {
		return nil, &types.ConditionalCheckFailedException{Message: aws.String("conditional request failed")}
	}
	delete(t, pk)
	return &dynamodb.DeleteItemOutput{}, nil
}

func (f *fakeDynamo) Scan(_ context.Context, in *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scans++
	if f.err != nil {
		return nil, f.err
	}
	t, err := f.table(in.TableName)
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(t))
	for k := range t {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	start := 0
	if in.ExclusiveStartKey != nil {
		after := pkOf(in.ExclusiveStartKey)
		start = sort.SearchStrings(keys, after)
		if start < len(keys) && keys[start] == after {
			start++
		}
	}
	end := start + f.pageSize
	if end > len(keys) {
		end = len(keys)
	}

	out := &dynamodb.ScanOutput{}
	vals := in.ExpressionAttributeValues
	for _, k := range keys[start:end] {
		item := t[k]
		if v, ok := vals[":committed"]; ok && sval(item["record_state"]) != sval(v) {
			continue
		}
		if v, ok := vals[":role"]; ok && sval(item["role"]) != sval(v) {
			continue
		}
		out.Count++
		if in.Select != types.SelectCount {
			out.Items = append(out.Items, item)
		}
	}
	if end < len(keys) {
		last := t[keys[end-1]]
		if _, ok := last["email_key"]; ok {
			out.LastEvaluatedKey = attrs{"email_key": last["email_key"]}
		} else {
			out.LastEvaluatedKey = attrs{"id": last["id"]}
		}
	}
	return out, nil
}

func (f *fakeDynamo) DescribeTable(_ context.Context, in *dynamodb.DescribeTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if _, err := f.table(in.TableName); err != nil {
		return nil, err
	}
	return &dynamodb.DescribeTableOutput{Table: &types.TableDescription{TableName: in.TableName}}, nil
}

var errThrottled = errors.New("ProvisionedThroughputExceededException")
