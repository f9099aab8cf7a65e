package dynamo

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"github.com/founderfund/waitlist/internal/domain"
	"github.com/founderfund/waitlist/internal/service/status"
)

type statusItem struct {
	ID         string `dynamodbav:"id"`
	ClientName string `dynamodbav:"client_name"`
	Timestamp  string `dynamodbav:"timestamp"`
}

func (s *Store) CreateStatusCheck(ctx context.Context, c *domain.StatusCheck) error {
	av, err := attributevalue.MarshalMap(statusItem{
		ID:         c.ID,
		ClientName: c.ClientName,
		Timestamp:  c.Timestamp.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("marshal status check: %w", err)
	}
	if _, err := s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.statusTable),
		Item:      av,
	}); err != nil {
		return fmt.Errorf("create status check: %w", err)
	}
	return nil
}

// ListStatusChecks scans the whole status table and sorts in memory; the
// table only ever holds low-volume diagnostic pings.
func (s *Store) ListStatusChecks(ctx context.Context, limit int) ([]domain.StatusCheck, error) {
	var out []domain.StatusCheck
	p := dynamodb.NewScanPaginator(s.api, &dynamodb.ScanInput{TableName: aws.String(s.statusTable)})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list status checks: %w", err)
		}
		var items []statusItem
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &items); err != nil {
			return nil, fmt.Errorf("unmarshal status checks: %w", err)
		}
		for _, it := range items {
			ts, err := time.Parse(time.RFC3339Nano, it.Timestamp)
			if err != nil {
				return nil, fmt.Errorf("parse timestamp for %s: %w", it.ID, err)
			}
			out = append(out, domain.StatusCheck{ID: it.ID, ClientName: it.ClientName, Timestamp: ts.UTC()})
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

var _ status.Repository = (*Store)(nil)
