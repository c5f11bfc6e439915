package web

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/raine/tix-seo-studio/internal/history"
	"github.com/raine/tix-seo-studio/internal/listing"
	"github.com/raine/tix-seo-studio/internal/llm"
	"github.com/raine/tix-seo-studio/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockGenerator struct {
	mock.Mock
}

func (m *mockGenerator) GenerateListing(ctx context.Context, req listing.GenerationRequest) (*listing.AnalysisResult, error) {
	args := m.Called(ctx, req)
	res, _ := args.Get(0).(*listing.AnalysisResult)
	return res, args.Error(1)
}

func (m *mockGenerator) request(i int) listing.GenerationRequest {
	return m.Calls[i].Arguments.Get(1).(listing.GenerationRequest)
}

func newTestMemory(t *testing.T) *history.Memory {
	t.Helper()
	store, err := storage.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	memory, err := history.NewMemory(store)
	require.NoError(t, err)
	return memory
}

func approvedResult(title, description string) *listing.AnalysisResult {
	return &listing.AnalysisResult{
		Status:           listing.StatusApproved,
		MerchantFeedback: listing.MerchantFeedback{Summary: "ok", SEOScore: 90, GEOScore: 85},
		ListingContent: &listing.ListingContent{
			Title:                   title,
			Description:             description,
			Highlights:              []string{"**مقاومة** للماء"},
			TechnicalSpecifications: listing.TechnicalSpecs{"brand": "ASUS", "model": "BP1501G"},
		},
	}
}

func rejectedResult() *listing.AnalysisResult {
	return &listing.AnalysisResult{
		Status: listing.StatusRejected,
		MerchantFeedback: listing.MerchantFeedback{
			SEOScore:       10,
			GEOScore:       5,
			CriticalIssues: []string{"اسم المنتج غير واضح"},
		},
	}
}

func TestListingService_SecondGenerationGetsOnePriorDescription(t *testing.T) {
	memory := newTestMemory(t)
	gen := &mockGenerator{}
	gen.On("GenerateListing", mock.Anything, mock.Anything).Return(approvedResult("حقيبة ASUS", "الوصف الأول"), nil).Once()
	gen.On("GenerateListing", mock.Anything, mock.Anything).Return(approvedResult("حقيبة ASUS", "الوصف الثاني"), nil).Once()
	svc := NewListingService(memory, gen, nil)

	input := listing.ProductInput{MerchantID: "shop", Name: "حقيبة ظهر ASUS"}
	first, err := svc.Generate(context.Background(), input)
	require.NoError(t, err)
	assert.True(t, first.Recorded)
	assert.Equal(t, 0, first.PriorCount)

	second, err := svc.Generate(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, 1, second.PriorCount)

	assert.Empty(t, gen.request(0).PriorDescriptions)
	assert.Equal(t, []string{"الوصف الأول"}, gen.request(1).PriorDescriptions)
	assert.Equal(t, 2, memory.Len())

	last, err := memory.LastMerchant()
	require.NoError(t, err)
	assert.Equal(t, "shop", last)
	gen.AssertExpectations(t)
}

func TestListingService_FailureLeavesHistoryUnchanged(t *testing.T) {
	memory := newTestMemory(t)
	gen := &mockGenerator{}
	gen.On("GenerateListing", mock.Anything, mock.Anything).
		Return(nil, fmt.Errorf("%w: no JSON object found in response", llm.ErrMalformedResponse))
	svc := NewListingService(memory, gen, nil)

	_, err := svc.Generate(context.Background(), listing.ProductInput{MerchantID: "shop", Name: "x"})
	assert.ErrorIs(t, err, llm.ErrMalformedResponse)
	assert.Equal(t, 0, memory.Len())
}

func TestListingService_RejectedIsNotRecorded(t *testing.T) {
	memory := newTestMemory(t)
	gen := &mockGenerator{}
	gen.On("GenerateListing", mock.Anything, mock.Anything).Return(rejectedResult(), nil)
	svc := NewListingService(memory, gen, nil)

	out, err := svc.Generate(context.Background(), listing.ProductInput{MerchantID: "shop", Name: "x"})
	require.NoError(t, err)
	assert.False(t, out.Recorded)
	assert.Nil(t, out.Derived)
	assert.Equal(t, 0, memory.Len())
}

func TestListingService_EmptyName(t *testing.T) {
	gen := &mockGenerator{}
	svc := NewListingService(newTestMemory(t), gen, nil)

	_, err := svc.Generate(context.Background(), listing.ProductInput{MerchantID: "shop", Name: "  "})
	assert.ErrorIs(t, err, llm.ErrEmptyName)
	gen.AssertNotCalled(t, "GenerateListing", mock.Anything, mock.Anything)
}

func TestListingService_DerivesSEOAndWritesLog(t *testing.T) {
	memory := newTestMemory(t)
	gen := &mockGenerator{}
	gen.On("GenerateListing", mock.Anything, mock.Anything).Return(approvedResult("ASUS ROG Backpack!", "short"), nil)
	logs, err := NewListingLog(t.TempDir())
	require.NoError(t, err)
	svc := NewListingService(memory, gen, logs)
	svc.now = func() time.Time { return time.UnixMilli(1_700_000_000_000) }

	out, err := svc.Generate(context.Background(), listing.ProductInput{MerchantID: "shop/1", Name: "حقيبة"})
	require.NoError(t, err)
	require.NotNil(t, out.Derived)
	assert.Equal(t, "asus-rog-backpack", out.Derived.URLSlug)
	assert.Equal(t, "short", out.Derived.MetaDescription)
	assert.Equal(t, int64(1_700_000_000_000), memory.Records()[0].Timestamp)

	data, err := os.ReadFile(logs.Path("shop/1"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "Merchant: shop/1")
	assert.Contains(t, string(data), "OUTCOME  status=approved")
	assert.Contains(t, logs.Path("shop/1"), "listing_shop_1_")
}
