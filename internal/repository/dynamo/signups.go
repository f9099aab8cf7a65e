package dynamo

import (
	"context"
	"fmt"
	"iter"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/founderfund/waitlist/internal/domain"
	"github.com/founderfund/waitlist/internal/service/signup"
)

const (
	stateReserved  = "reserved"
	stateCommitted = "committed"
)

// item is the DynamoDB layout of a signup.
type item struct {
	EmailKey           string `dynamodbav:"email_key"`
	ID                 string `dynamodbav:"id"`
	Email              string `dynamodbav:"email"`
	Role               string `dynamodbav:"role"`
	FounderStage       string `dynamodbav:"founder_stage,omitempty"`
	FundingStage       string `dynamodbav:"funding_stage,omitempty"`
	BiggestPain        string `dynamodbav:"biggest_pain"`
	DetailedPain       string `dynamodbav:"detailed_pain,omitempty"`
	CreatedAt          string `dynamodbav:"created_at"`
	SyncStatus         string `dynamodbav:"sync_status"`
	SyncExternalID     string `dynamodbav:"sync_external_id,omitempty"`
	SyncExternalStatus string `dynamodbav:"sync_external_status,omitempty"`
	RecordState        string `dynamodbav:"record_state"`
	ReservedUntil      int64  `dynamodbav:"reserved_until,omitempty"`
}

func (it item) signup() (domain.Signup, error) {
	created, err := time.Parse(time.RFC3339Nano, it.CreatedAt)
	if err != nil {
		return domain.Signup{}, fmt.Errorf("parse created_at for %s: %w", it.ID, err)
	}
	return domain.Signup{
		ID:           it.ID,
		Email:        it.Email,
		EmailKey:     it.EmailKey,
		Role:         it.Role,
		FounderStage: it.FounderStage,
		FundingStage: it.FundingStage,
		BiggestPain:  it.BiggestPain,
		DetailedPain: it.DetailedPain,
		CreatedAt:    created.UTC(),
		Sync: domain.SyncState{
			Status:         domain.SyncStatus(it.SyncStatus),
			ExternalID:     it.SyncExternalID,
			ExternalStatus: it.SyncExternalStatus,
		},
	}, nil
}

func millis(t time.Time) types.AttributeValue {
	return &types.AttributeValueMemberN{Value: strconv.FormatInt(t.UnixMilli(), 10)}
}

func str(v string) types.AttributeValue {
	return &types.AttributeValueMemberS{Value: v}
}

// Reserve writes a reserved item unless the key is held by a committed
// item or a reservation that has not yet expired.
func (s *Store) Reserve(ctx context.Context, rec *domain.Signup) (signup.Reservation, error) {
	now := s.clock()
	av, err := attributevalue.MarshalMap(item{
		EmailKey:      rec.EmailKey,
		ID:            rec.ID,
		Email:         rec.Email,
		Role:          rec.Role,
		FounderStage:  rec.FounderStage,
		FundingStage:  rec.FundingStage,
		BiggestPain:   rec.BiggestPain,
		DetailedPain:  rec.DetailedPain,
		CreatedAt:     rec.CreatedAt.UTC().Format(time.RFC3339Nano),
		SyncStatus:    string(rec.Sync.Status),
		RecordState:   stateReserved,
		ReservedUntil: now.Add(s.reservationTTL).UnixMilli(),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal signup: %w", err)
	}

	_, err = s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.table),
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(email_key) OR (record_state = :reserved AND reserved_until < :now)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":reserved": str(stateReserved),
			":now":      millis(now),
		},
	})
	if err != nil {
		if isConditionFailed(err) {
			return nil, signup.ErrAlreadyExists
		}
		return nil, fmt.Errorf("reserve signup: %w", err)
	}
	return &reservation{store: s, key: rec.EmailKey, id: rec.ID}, nil
}

type reservation struct {
	store *Store
	key   string
	id    string
}

func (r *reservation) itemKey() map[string]types.AttributeValue {
	return map[string]types.AttributeValue{"email_key": str(r.key)}
}

func (r *reservation) Commit(ctx context.Context, st domain.SyncState) error {
	_, err := r.store.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(r.store.table),
		Key:                 r.itemKey(),
		UpdateExpression:    aws.String("SET record_state = :committed, sync_status = :status, sync_external_id = :ext_id, sync_external_status = :ext_status REMOVE reserved_until"),
		ConditionExpression: aws.String("id = :id AND record_state = :reserved"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":committed":  str(stateCommitted),
			":reserved":   str(stateReserved),
			":status":     str(string(st.Status)),
			":ext_id":     str(st.ExternalID),
			":ext_status": str(st.ExternalStatus),
			":id":         str(r.id),
		},
	})
	if err != nil {
		if isConditionFailed(err) {
			return signup.ErrReservationLost
		}
		return fmt.Errorf("commit signup: %w", err)
	}
	return nil
}

func (r *reservation) Release(ctx context.Context) error {
	_, err := r.store.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:           aws.String(r.store.table),
		Key:                 r.itemKey(),
		ConditionExpression: aws.String("id = :id AND record_state = :reserved"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":id":       str(r.id),
			":reserved": str(stateReserved),
		},
	})
	if err != nil && !isConditionFailed(err) {
		return fmt.Errorf("release signup: %w", err)
	}
	return nil
}

func (s *Store) committedScan(role string, countOnly bool) *dynamodb.ScanInput {
	in := &dynamodb.ScanInput{
		TableName:        aws.String(s.table),
		ConsistentRead:   aws.Bool(true),
		FilterExpression: aws.String("record_state = :committed"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":committed": str(stateCommitted),
		},
	}
	if role != "" {
		// ROLE is a DynamoDB reserved word.
		in.FilterExpression = aws.String("record_state = :committed AND #role = :role")
		in.ExpressionAttributeNames = map[string]string{"#role": "role"}
		in.ExpressionAttributeValues[":role"] = str(role)
	}
	if countOnly {
		in.Select = types.SelectCount
	}
	return in
}

// Count scans the table counting committed items.
func (s *Store) Count(ctx context.Context, f signup.CountFilter) (int, error) {
	p := dynamodb.NewScanPaginator(s.api, s.committedScan(f.Role, true))
	total := 0
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return 0, fmt.Errorf("count signups: %w", err)
		}
		total += int(page.Count)
	}
	return total, nil
}

// All streams committed items one scan page at a time, in table order.
func (s *Store) All(ctx context.Context) iter.Seq2[domain.Signup, error] {
	return func(yield func(domain.Signup, error) bool) {
		p := dynamodb.NewScanPaginator(s.api, s.committedScan("", false))
		for p.HasMorePages() {
			page, err := p.NextPage(ctx)
			if err != nil {
				yield(domain.Signup{}, fmt.Errorf("list signups: %w", err))
				return
			}

			var items []item
			if err := attributevalue.UnmarshalListOfMaps(page.Items, &items); err != nil {
				yield(domain.Signup{}, fmt.Errorf("unmarshal signups: %w", err))
				return
			}
			for _, it := range items {
				rec, err := it.signup()
				if err != nil {
					yield(domain.Signup{}, err)
					return
				}
				if !yield(rec, nil) {
					return
				}
			}
		}
	}
}

var _ signup.Repository = (*Store)(nil)
