package dynamo

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/youme-api/internal/config"
	"github.com/youme-api/internal/domain"
)

// PairingTx performs the multi-document pairing mutations as single
// TransactWriteItems calls, so neither side is ever observed half-linked.
type PairingTx struct {
	client     API
	usersTable string
	codesTable string
}

func NewPairingTx(client API, tables config.DynamoTables) *PairingTx {
	return &PairingTx{client: client, usersTable: tables.Users, codesTable: tables.CoupleCodes}
}

// Link sets partner_id on both profiles and consumes the code.
func (t *PairingTx) Link(ctx context.Context, requesterID, ownerID, code string) error {
	_, err := t.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Update: t.setPartner(requesterID, ownerID)},
			{Update: t.setPartner(ownerID, requesterID)},
			{Delete: &types.Delete{
				TableName:                 aws.String(t.codesTable),
				Key:                       strKey(fieldCode, code),
				ConditionExpression:       aws.String("attribute_exists(#c) AND #u = :owner"),
				ExpressionAttributeNames:  map[string]string{"#c": fieldCode, "#u": fieldUserID},
				ExpressionAttributeValues: map[string]types.AttributeValue{":owner": strVal(ownerID)},
			}},
		},
	})
	if err != nil {
		return linkTxErr(err)
	}
	return nil
}

// Unlink clears partner_id on both profiles. Each side must still point at the other.
func (t *PairingTx) Unlink(ctx context.Context, userID, partnerID string) error {
	_, err := t.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Update: t.clearPartner(userID, partnerID)},
			{Update: t.clearPartner(partnerID, userID)},
		},
	})
	if err != nil {
		if cancelledAt(err) >= 0 {
			return fmt.Errorf("unlink %s/%s: pairing changed concurrently: %w", userID, partnerID, domain.ErrConflict)
		}
		return storeErr("unlink", err)
	}
	return nil
}

// DeleteProfile removes a profile. When partnerID is set the partner's
// partner_id is cleared in the same transaction.
func (t *PairingTx) DeleteProfile(ctx context.Context, userID, partnerID string) error {
	if partnerID == "" {
		_, err := t.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
			TableName:                aws.String(t.usersTable),
			Key:                      strKey(fieldUserID, userID),
			ConditionExpression:      aws.String("attribute_not_exists(#p)"),
			ExpressionAttributeNames: map[string]string{"#p": fieldPartnerID},
		})
		if isConditionFailed(err) {
			return fmt.Errorf("delete profile %s: linked concurrently: %w", userID, domain.ErrConflict)
		}
		if err != nil {
			return storeErr("delete profile", err)
		}
		return nil
	}

	_, err := t.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Delete: &types.Delete{
				TableName:                 aws.String(t.usersTable),
				Key:                       strKey(fieldUserID, userID),
				ConditionExpression:       aws.String("#p = :partner"),
				ExpressionAttributeNames:  map[string]string{"#p": fieldPartnerID},
				ExpressionAttributeValues: map[string]types.AttributeValue{":partner": strVal(partnerID)},
			}},
			{Update: t.clearPartner(partnerID, userID)},
		},
	})
	if err != nil {
		if cancelledAt(err) >= 0 {
			return fmt.Errorf("delete profile %s: pairing changed concurrently: %w", userID, domain.ErrConflict)
		}
		return storeErr("delete profile", err)
	}
	return nil
}

func (t *PairingTx) setPartner(userID, partnerID string) *types.Update {
	return &types.Update{
		TableName:                 aws.String(t.usersTable),
		Key:                       strKey(fieldUserID, userID),
		UpdateExpression:          aws.String("SET #p = :partner"),
		ConditionExpression:       aws.String("attribute_exists(#u) AND attribute_not_exists(#p)"),
		ExpressionAttributeNames:  map[string]string{"#u": fieldUserID, "#p": fieldPartnerID},
		ExpressionAttributeValues: map[string]types.AttributeValue{":partner": strVal(partnerID)},
	}
}

func (t *PairingTx) clearPartner(userID, partnerID string) *types.Update {
	return &types.Update{
		TableName:                 aws.String(t.usersTable),
		Key:                       strKey(fieldUserID, userID),
		UpdateExpression:          aws.String("REMOVE #p"),
		ConditionExpression:       aws.String("#p = :partner"),
		ExpressionAttributeNames:  map[string]string{"#p": fieldPartnerID},
		ExpressionAttributeValues: map[string]types.AttributeValue{":partner": strVal(partnerID)},
	}
}

// linkTxErr maps the first failed condition of a Link transaction to the
// pairing error it stands for: requester, owner, then code.
func linkTxErr(err error) error {
	switch cancelledAt(err) {
	case 0:
		return fmt.Errorf("link: %w", domain.ErrAlreadyLinked)
	case 1:
		return fmt.Errorf("link: %w", domain.ErrPartnerAlreadyLinked)
	case 2:
		return fmt.Errorf("link: %w", domain.ErrInvalidCode)
	}
	return storeErr("link", err)
}

// cancelledAt returns the index of the first item whose condition failed in a
// cancelled transaction, or -1.
func cancelledAt(err error) int {
	var tce *types.TransactionCanceledException
	if !errors.As(err, &tce) {
		return -1
	}
	for i, r := range tce.CancellationReasons {
		if aws.ToString(r.Code) == "ConditionalCheckFailed" {
			return i
		}
	}
	return -1
}
