package dynamo

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/youme-api/internal/domain"
)

// ProfileRepo provides typed DynamoDB operations for the users table.
type ProfileRepo struct {
	client    API
	tableName string
}

func NewProfileRepo(client API, tableName string) *ProfileRepo {
	return &ProfileRepo{client: client, tableName: tableName}
}

func (r *ProfileRepo) Put(ctx context.Context, p *domain.UserProfile) error {
	item, err := attributevalue.MarshalMap(p)
	if err != nil {
		return fmt.Errorf("marshal profile: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	if err != nil {
		return storeErr("put profile", err)
	}
	return nil
}

func (r *ProfileRepo) Get(ctx context.Context, userID string) (*domain.UserProfile, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            strKey(fieldUserID, userID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, storeErr("get profile", err)
	}
	if out.Item == nil {
		return nil, fmt.Errorf("profile %s: %w", userID, domain.ErrProfileNotFound)
	}
	var p domain.UserProfile
	if err := attributevalue.UnmarshalMap(out.Item, &p); err != nil {
		return nil, fmt.Errorf("unmarshal profile: %w", err)
	}
	return &p, nil
}

// Update applies a partial SET to an existing profile.
// partner_id is owned by PairingTx and is rejected here.
func (r *ProfileRepo) Update(ctx context.Context, userID string, updates map[string]interface{}) error {
	if _, ok := updates[fieldPartnerID]; ok {
		return fmt.Errorf("partner_id is managed by pairing: %w", domain.ErrBadRequest)
	}
	ue, err := buildUpdateExpr(updates)
	if err != nil {
		return err
	}
	ue.Names["#pk"] = fieldUserID
	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       strKey(fieldUserID, userID),
		UpdateExpression:          aws.String(ue.Expr),
		ConditionExpression:       aws.String("attribute_exists(#pk)"),
		ExpressionAttributeNames:  ue.Names,
		ExpressionAttributeValues: ue.Values,
	})
	if isConditionFailed(err) {
		return fmt.Errorf("profile %s: %w", userID, domain.ErrProfileNotFound)
	}
	if err != nil {
		return storeErr("update profile", err)
	}
	return nil
}
