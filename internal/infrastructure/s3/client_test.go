package s3infra

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/youme-api/internal/domain"
)

type mockPutter struct{ mock.Mock }

func (m *mockPutter) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	args := m.Called(ctx, in)
	if out, _ := args.Get(0).(*s3.PutObjectOutput); out != nil {
		return out, args.Error(1)
	}
	return nil, args.Error(1)
}

func TestLedger_Report(t *testing.T) {
	var captured *s3.PutObjectInput
	m := &mockPutter{}
	m.On("PutObject", mock.Anything, mock.AnythingOfType("*s3.PutObjectInput")).
		Run(func(args mock.Arguments) { captured = args.Get(1).(*s3.PutObjectInput) }).
		Return(&s3.PutObjectOutput{}, nil)

	r := domain.OrphanReport{
		ReportID:   "01HZX",
		Kind:       domain.OrphanIdentityRetained,
		UserID:     "u1",
		Email:      "ann@example.com",
		Reason:     "requires recent login",
		DetectedAt: time.Date(2026, 3, 9, 12, 0, 0, 0, time.UTC),
	}
	url, err := NewLedger(m, "recon").Report(context.Background(), r)
	require.NoError(t, err)

	assert.Equal(t, "s3://recon/reconciliation/identity_retained/2026/03/09/01HZX.json", url)
	assert.Equal(t, "recon", aws.ToString(captured.Bucket))
	assert.Equal(t, "application/json", aws.ToString(captured.ContentType))
	raw, err := io.ReadAll(captured.Body)
	require.NoError(t, err)
	var got domain.OrphanReport
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, "u1", got.UserID)
}

func TestLedger_Report_PutFails(t *testing.T) {
	m := &mockPutter{}
	m.On("PutObject", mock.Anything, mock.Anything).Return(nil, assert.AnError)

	_, err := NewLedger(m, "recon").Report(context.Background(), domain.OrphanReport{Kind: domain.OrphanProfileMissing})
	assert.ErrorIs(t, err, assert.AnError)
}
