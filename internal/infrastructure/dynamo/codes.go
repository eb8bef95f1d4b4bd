package dynamo

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/youme-api/internal/domain"
)

// CodeRepo manages couple codes.
// PK: code, GSI user_id-index on the creator.
type CodeRepo struct {
	client    API
	tableName string
}

func NewCodeRepo(client API, tableName string) *CodeRepo {
	return &CodeRepo{client: client, tableName: tableName}
}

func (r *CodeRepo) Get(ctx context.Context, code string) (*domain.CoupleCode, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            strKey(fieldCode, code),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, storeErr("get couple code", err)
	}
	if out.Item == nil {
		return nil, fmt.Errorf("couple code %s: %w", code, domain.ErrInvalidCode)
	}
	var c domain.CoupleCode
	if err := attributevalue.UnmarshalMap(out.Item, &c); err != nil {
		return nil, fmt.Errorf("unmarshal couple code: %w", err)
	}
	return &c, nil
}

// Create writes c only if no document with the same code exists.
func (r *CodeRepo) Create(ctx context.Context, c *domain.CoupleCode) error {
	item, err := attributevalue.MarshalMap(c)
	if err != nil {
		return fmt.Errorf("marshal couple code: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                aws.String(r.tableName),
		Item:                     item,
		ConditionExpression:      aws.String("attribute_not_exists(#c)"),
		ExpressionAttributeNames: map[string]string{"#c": fieldCode},
	})
	if isConditionFailed(err) {
		return fmt.Errorf("couple code %s: %w", c.Code, domain.ErrCodeCollision)
	}
	if err != nil {
		return storeErr("create couple code", err)
	}
	return nil
}

// DeleteByUser removes every code created by userID and returns how many were removed.
// Each delete is conditioned on ownership so a code value reused by someone else survives.
func (r *CodeRepo) DeleteByUser(ctx context.Context, userID string) (int, error) {
	p := dynamodb.NewQueryPaginator(r.client, &dynamodb.QueryInput{
		TableName:                 aws.String(r.tableName),
		IndexName:                 aws.String(indexUserID),
		KeyConditionExpression:    aws.String("#u = :u"),
		ExpressionAttributeNames:  map[string]string{"#u": fieldUserID},
		ExpressionAttributeValues: map[string]types.AttributeValue{":u": strVal(userID)},
	})
	removed := 0
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return removed, storeErr("query couple codes by user", err)
		}
		var codes []domain.CoupleCode
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &codes); err != nil {
			return removed, fmt.Errorf("unmarshal couple codes: %w", err)
		}
		for _, c := range codes {
			ok, err := r.deleteWhere(ctx, c.Code, "#u = :u",
				map[string]string{"#u": fieldUserID},
				map[string]types.AttributeValue{":u": strVal(userID)})
			if err != nil {
				return removed, err
			}
			if ok {
				removed++
			}
		}
	}
	return removed, nil
}

// ListCreatedBefore scans for codes whose created_at is strictly before cutoffMillis.
func (r *CodeRepo) ListCreatedBefore(ctx context.Context, cutoffMillis int64) ([]domain.CoupleCode, error) {
	p := dynamodb.NewScanPaginator(r.client, &dynamodb.ScanInput{
		TableName:                 aws.String(r.tableName),
		FilterExpression:          aws.String("#t < :cutoff"),
		ExpressionAttributeNames:  map[string]string{"#t": fieldCreatedAt},
		ExpressionAttributeValues: map[string]types.AttributeValue{":cutoff": numVal(cutoffMillis)},
	})
	var out []domain.CoupleCode
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, storeErr("scan stale couple codes", err)
		}
		var codes []domain.CoupleCode
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &codes); err != nil {
			return nil, fmt.Errorf("unmarshal couple codes: %w", err)
		}
		out = append(out, codes...)
	}
	return out, nil
}

// DeleteIfCreatedBefore removes code only while it is still older than cutoffMillis.
// Returns false when the code is gone or was re-created since the scan.
func (r *CodeRepo) DeleteIfCreatedBefore(ctx context.Context, code string, cutoffMillis int64) (bool, error) {
	return r.deleteWhere(ctx, code, "#t < :cutoff",
		map[string]string{"#t": fieldCreatedAt},
		map[string]types.AttributeValue{":cutoff": numVal(cutoffMillis)})
}

func (r *CodeRepo) deleteWhere(ctx context.Context, code, cond string, names map[string]string, values map[string]types.AttributeValue) (bool, error) {
	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       strKey(fieldCode, code),
		ConditionExpression:       aws.String(cond),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	})
	if isConditionFailed(err) {
		return false, nil
	}
	if err != nil {
		return false, storeErr("delete couple code", err)
	}
	return true, nil
}
