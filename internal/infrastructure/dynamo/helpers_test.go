package dynamo

import (
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/youme-api/internal/domain"
)

func TestBuildUpdateExpr_SingleField(t *testing.T) {
	ue, err := buildUpdateExpr(map[string]interface{}{"display_name": "Ann"})
	require.NoError(t, err)
	assert.Equal(t, "SET #f0 = :v0", ue.Expr)
	assert.Equal(t, map[string]string{"#f0": "display_name"}, ue.Names)
	_, ok := ue.Values[":v0"]
	assert.True(t, ok)
}

func TestBuildUpdateExpr_MultipleFields_Deterministic(t *testing.T) {
	updates := map[string]interface{}{
		"phone_number":      "+15550100",
		"display_name":      "Ann",
		"is_email_verified": true,
	}
	ue1, err := buildUpdateExpr(updates)
	require.NoError(t, err)
	ue2, err := buildUpdateExpr(updates)
	require.NoError(t, err)

	assert.Equal(t, ue1.Expr, ue2.Expr)
	assert.Equal(t, "display_name", ue1.Names["#f0"])
	assert.Equal(t, "is_email_verified", ue1.Names["#f1"])
	assert.Equal(t, "phone_number", ue1.Names["#f2"])
	assert.Equal(t, "SET #f0 = :v0, #f1 = :v1, #f2 = :v2", ue1.Expr)
}

func TestBuildUpdateExpr_ValuesMarshalledCorrectly(t *testing.T) {
	ue, err := buildUpdateExpr(map[string]interface{}{"is_email_verified": true})
	require.NoError(t, err)
	boolVal, isBool := ue.Values[":v0"].(*types.AttributeValueMemberBOOL)
	require.True(t, isBool)
	assert.True(t, boolVal.Value)
}

func TestBuildUpdateExpr_EmptyMap_ReturnsError(t *testing.T) {
	_, err := buildUpdateExpr(map[string]interface{}{})
	assert.ErrorContains(t, err, "no fields to update")
}

func cancelled(codes ...string) error {
	reasons := make([]types.CancellationReason, len(codes))
	for i, c := range codes {
		reasons[i] = types.CancellationReason{Code: aws.String(c)}
	}
	return &types.TransactionCanceledException{CancellationReasons: reasons}
}

func TestLinkTxErr_MapsCancellationIndex(t *testing.T) {
	assert.ErrorIs(t, linkTxErr(cancelled("ConditionalCheckFailed", "None", "None")), domain.ErrAlreadyLinked)
	assert.ErrorIs(t, linkTxErr(cancelled("None", "ConditionalCheckFailed", "None")), domain.ErrPartnerAlreadyLinked)
	assert.ErrorIs(t, linkTxErr(cancelled("None", "None", "ConditionalCheckFailed")), domain.ErrInvalidCode)
}

func TestLinkTxErr_OtherFailuresAreStoreErrors(t *testing.T) {
	err := linkTxErr(cancelled("None", "TransactionConflict", "None"))
	assert.ErrorIs(t, err, domain.ErrStore)
	assert.Equal(t, domain.LinkFailed, domain.LinkResultOf(err))

	err = linkTxErr(errors.New("connection reset"))
	assert.ErrorIs(t, err, domain.ErrStore)
}

func TestStoreErr_AccessDeniedIsPermissionDenied(t *testing.T) {
	apiErr := &smithy.GenericAPIError{Code: "AccessDeniedException", Message: "not allowed"}
	err := storeErr("get profile", apiErr)
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)
	assert.NotErrorIs(t, err, domain.ErrStore)

	err = storeErr("get profile", &smithy.GenericAPIError{Code: "ProvisionedThroughputExceededException"})
	assert.ErrorIs(t, err, domain.ErrStore)
}
