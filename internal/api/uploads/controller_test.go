package uploads_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/webflix/webflix/internal/api/uploads"
)

type mockSigner struct{ mock.Mock }

func (m *mockSigner) PresignUpload(ctx context.Context) (string, string, error) {
	args := m.Called(ctx)
	return args.String(0), args.String(1), args.Error(2)
}

func performPresign(signer uploads.Signer) *httptest.ResponseRecorder {
	ec := echo.New()
	uploads.New(signer).SetRoutes(ec.Group("/presign-upload"))

	request := httptest.NewRequest(http.MethodGet, "/presign-upload/", nil)
	recorder := httptest.NewRecorder()
	ec.ServeHTTP(recorder, request)
	return recorder
}

func Test_Presign_ReturnsSignedUrlAndKey(t *testing.T) {
	t.Parallel()

	signer := new(mockSigner)
	signer.On("PresignUpload", mock.Anything).Return("https://bucket.s3.test/signed", "uploads/123-abc", nil)

	response := performPresign(signer)
	require.Equal(t, http.StatusOK, response.Code)

	var dto uploads.Dto
	require.NoError(t, json.Unmarshal(response.Body.Bytes(), &dto))
	assert.Equal(t, "https://bucket.s3.test/signed", dto.Url)
	assert.Equal(t, "uploads/123-abc", dto.Key)
}

func Test_Presign_SurfacesSigningFailures(t *testing.T) {
	t.Parallel()

	signer := new(mockSigner)
	signer.On("PresignUpload", mock.Anything).Return("", "", fmt.Errorf("credentials expired"))

	response := performPresign(signer)
	assert.Equal(t, http.StatusInternalServerError, response.Code)
}
