package web

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/raine/tix-seo-studio/internal/history"
	"github.com/raine/tix-seo-studio/internal/listing"
	"github.com/raine/tix-seo-studio/internal/llm"
	"github.com/raine/tix-seo-studio/internal/media"
	"github.com/raine/tix-seo-studio/internal/studio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

type mockStudio struct {
	mock.Mock
}

func (m *mockStudio) Render(ctx context.Context, mode studio.Mode, img *media.Image, scene string) (string, error) {
	args := m.Called(ctx, mode, img, scene)
	return args.String(0), args.Error(1)
}

type testServer struct {
	srv    *Server
	gen    *mockGenerator
	studio *mockStudio
	memory *history.Memory
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	memory := newTestMemory(t)
	gen := &mockGenerator{}
	st := &mockStudio{}
	srv, err := New(Deps{
		Service: NewListingService(memory, gen, nil),
		Memory:  memory,
		Studio:  st,
		Images:  media.NewDownloader(),
	})
	require.NoError(t, err)
	return &testServer{srv: srv, gen: gen, studio: st, memory: memory}
}

func (ts *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	ts.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func multipartRequest(t *testing.T, path string, fields map[string]string, image []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if image != nil {
		fw, err := mw.CreateFormFile("image", "product.png")
		require.NoError(t, err)
		_, err = fw.Write(image)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func jsonRequest(t *testing.T, method, path string, v any) *http.Request {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	req := httptest.NewRequest(method, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestIndex_PrefillsLastMerchant(t *testing.T) {
	ts := newTestServer(t)
	require.NoError(t, ts.memory.SetLastMerchant("متجر-7"))

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `value="متجر-7"`)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestUnknownPathIsNotFound(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGenerate_ApprovedRendersListingAndResetsForm(t *testing.T) {
	ts := newTestServer(t)
	result := approvedResult("حقيبة ظهر ASUS ROG", "فقرة أولى.\n\nفقرة ثانية.")
	result.GroundingSources = []listing.GroundingSource{{Title: "asus.com", URI: "https://asus.com/p"}}
	ts.gen.On("GenerateListing", mock.Anything, mock.MatchedBy(func(req listing.GenerationRequest) bool {
		return req.Name == "حقيبة ظهر ASUS" && req.Image != nil && req.Image.MIMEType == "image/png"
	})).Return(result, nil)

	rec := ts.do(multipartRequest(t, "/generate", map[string]string{
		"merchant_id": "shop",
		"name":        "حقيبة ظهر ASUS",
		"notes":       "لون أسود",
	}, pngBytes))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "حقيبة ظهر ASUS ROG")
	assert.Contains(t, body, "<p>فقرة ثانية.</p>")
	assert.Contains(t, body, "<strong>مقاومة</strong>")
	assert.Contains(t, body, "العلامة التجارية")
	assert.Contains(t, body, `&#34;@type&#34;: &#34;Product&#34;`)
	assert.Contains(t, body, "https://asus.com/p")
	assert.Contains(t, body, `name="name" value=""`)
	assert.NotContains(t, body, "لون أسود")
	assert.Equal(t, 1, ts.memory.Len())

	// The last result stays visible on the next visit.
	rec = ts.do(httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Contains(t, rec.Body.String(), "حقيبة ظهر ASUS ROG")
}

func TestGenerate_RejectedShowsIssues(t *testing.T) {
	ts := newTestServer(t)
	ts.gen.On("GenerateListing", mock.Anything, mock.Anything).Return(rejectedResult(), nil)

	rec := ts.do(multipartRequest(t, "/generate", map[string]string{"merchant_id": "shop", "name": "شيء"}, pngBytes))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "اسم المنتج غير واضح")
	assert.Equal(t, 0, ts.memory.Len())
}

func TestGenerate_RequiresNameAndImage(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(multipartRequest(t, "/generate", map[string]string{"merchant_id": "shop", "name": "حقيبة"}, nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), alertMissingInput)
	assert.Contains(t, rec.Body.String(), `value="حقيبة"`)

	rec = ts.do(multipartRequest(t, "/generate", map[string]string{"merchant_id": "shop"}, pngBytes))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	ts.gen.AssertNotCalled(t, "GenerateListing", mock.Anything, mock.Anything)
}

func TestGenerate_UnreadableImage(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(multipartRequest(t, "/generate", map[string]string{"name": "حقيبة"}, []byte("just some text")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), alertGenerationFailed)
}

func TestGenerate_FailureKeepsInputAndPreviousView(t *testing.T) {
	ts := newTestServer(t)
	ts.gen.On("GenerateListing", mock.Anything, mock.Anything).Return(approvedResult("العنوان السابق", "وصف"), nil).Once()
	ts.gen.On("GenerateListing", mock.Anything, mock.Anything).
		Return(nil, fmt.Errorf("%w: unterminated JSON object", llm.ErrMalformedResponse)).Once()

	rec := ts.do(multipartRequest(t, "/generate", map[string]string{"merchant_id": "shop", "name": "أ"}, pngBytes))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(multipartRequest(t, "/generate", map[string]string{"merchant_id": "shop", "name": "ب", "notes": "ملاحظة"}, pngBytes))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, alertGenerationFailed)
	assert.Contains(t, body, "العنوان السابق")
	assert.Contains(t, body, "ملاحظة")
	assert.Equal(t, 1, ts.memory.Len())
}

func TestHistoryPageAndClear(t *testing.T) {
	ts := newTestServer(t)
	require.NoError(t, ts.memory.Append(history.Record{MerchantID: "shop", ProductName: "حقيبة", Title: "ASUS ROG Bag", Description: "d", Timestamp: 1}))

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/history", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ASUS ROG Bag")
	assert.Contains(t, rec.Body.String(), "/asus-rog-bag")

	rec = ts.do(httptest.NewRequest(http.MethodPost, "/history/clear", nil))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, 0, ts.memory.Len())
}

func TestStudioForm(t *testing.T) {
	ts := newTestServer(t)
	ts.studio.On("Render", mock.Anything, studio.ModeLifestyle, mock.Anything, "على طاولة رخامية").
		Return("data:image/png;base64,AAAA", nil)

	rec := ts.do(multipartRequest(t, "/studio", map[string]string{"mode": "lifestyle", "scene": "على طاولة رخامية"}, pngBytes))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `src="data:image/png;base64,AAAA"`)
	ts.studio.AssertExpectations(t)
}

func TestStudioForm_Errors(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(multipartRequest(t, "/studio", map[string]string{"mode": "white"}, nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), alertStudioMissing)

	ts.studio.On("Render", mock.Anything, studio.ModeWhite, mock.Anything, "").
		Return("", fmt.Errorf("render: %w", llm.ErrImageGenerationFailed))
	rec = ts.do(multipartRequest(t, "/studio", map[string]string{"mode": "white"}, pngBytes))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), alertStudioFailed)
}

func TestAPIGenerate(t *testing.T) {
	ts := newTestServer(t)
	ts.gen.On("GenerateListing", mock.Anything, mock.MatchedBy(func(req listing.GenerationRequest) bool {
		return req.Image == nil
	})).Return(approvedResult("ASUS ROG", "وصف قصير"), nil)

	rec := ts.do(jsonRequest(t, http.MethodPost, "/api/listings", map[string]string{
		"merchant_id": "shop",
		"name":        "حقيبة ظهر ASUS",
	}))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "approved", resp["status"])
	assert.Equal(t, true, resp["recorded"])
	assert.NotEmpty(t, resp["id"])
	seo := resp["seo"].(map[string]any)
	assert.Equal(t, "asus-rog", seo["url_slug"])
	content := resp["listing_content"].(map[string]any)
	assert.Equal(t, "ASUS ROG", content["h1_title"])
}

func TestAPIGenerate_InlineImage(t *testing.T) {
	ts := newTestServer(t)
	ts.gen.On("GenerateListing", mock.Anything, mock.MatchedBy(func(req listing.GenerationRequest) bool {
		return req.Image != nil && bytes.Equal(req.Image.Data, pngBytes)
	})).Return(rejectedResult(), nil)

	rec := ts.do(jsonRequest(t, http.MethodPost, "/api/listings", map[string]any{
		"merchant_id": "shop",
		"name":        "x",
		"image_data":  pngBytes,
	}))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "listing_content")
	ts.gen.AssertExpectations(t)
}

func TestAPIGenerate_ErrorStatuses(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"malformed", fmt.Errorf("x: %w", llm.ErrMalformedResponse), http.StatusBadGateway},
		{"timeout", fmt.Errorf("x: %w", llm.ErrTimeout), http.StatusGatewayTimeout},
		{"other", fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)
			ts.gen.On("GenerateListing", mock.Anything, mock.Anything).Return(nil, tt.err)

			rec := ts.do(jsonRequest(t, http.MethodPost, "/api/listings", map[string]string{"name": "x"}))
			assert.Equal(t, tt.status, rec.Code)
			assert.Contains(t, rec.Body.String(), `"error"`)
			assert.Equal(t, 0, ts.memory.Len())
		})
	}
}

func TestAPIGenerate_BadRequests(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(jsonRequest(t, http.MethodPost, "/api/listings", map[string]string{"name": " "}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/listings", strings.NewReader("{"))
	rec = ts.do(req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(jsonRequest(t, http.MethodPost, "/api/listings", map[string]string{"name": "x", "image_url": "ftp://example.com/a.png"}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPIGenerate_BusyMerchant(t *testing.T) {
	ts := newTestServer(t)
	release, err := ts.srv.gate.acquire("shop")
	require.NoError(t, err)
	defer release()

	rec := ts.do(jsonRequest(t, http.MethodPost, "/api/listings", map[string]string{"merchant_id": "shop", "name": "x"}))
	assert.Equal(t, http.StatusConflict, rec.Code)
	ts.gen.AssertNotCalled(t, "GenerateListing", mock.Anything, mock.Anything)
}

func TestAPIHistory(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/api/history", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	require.NoError(t, ts.memory.Append(history.Record{MerchantID: "A", ProductName: "P", Title: "T", Description: "D", Timestamp: 5}))
	rec = ts.do(httptest.NewRequest(http.MethodGet, "/api/history", nil))
	assert.JSONEq(t, `[{"merchantId":"A","productName":"P","h1_title":"T","description":"D","timestamp":5}]`, rec.Body.String())

	rec = ts.do(httptest.NewRequest(http.MethodDelete, "/api/history", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 0, ts.memory.Len())
}

func TestAPIStudio(t *testing.T) {
	ts := newTestServer(t)
	ts.studio.On("Render", mock.Anything, studio.ModeWhite, mock.Anything, "").Return("data:image/png;base64,QQ==", nil)

	rec := ts.do(jsonRequest(t, http.MethodPost, "/api/studio", map[string]any{"image_data": pngBytes}))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"mode":"white","image":"data:image/png;base64,QQ=="}`, rec.Body.String())

	rec = ts.do(jsonRequest(t, http.MethodPost, "/api/studio", map[string]any{"mode": "sepia", "image_data": pngBytes}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(jsonRequest(t, http.MethodPost, "/api/studio", map[string]any{"mode": "white"}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}
