package responses

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aidin1998/instapay/pkg/errors"
)

func TestFailCarriesKindStatusAndPayload(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/v1/payment/instanet", nil)

	err := errors.GatewaySubmission.Explain("gateway rejected payout").WithPayload(map[string]string{"code": "E42"})
	Fail(c, err)

	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "GatewaySubmissionError", body["title"])
	assert.Equal(t, "gateway rejected payout", body["detail"])
	assert.Equal(t, map[string]interface{}{"code": "E42"}, body["error"])
}

func TestCreatePaginationMeta(t *testing.T) {
	m := CreatePaginationMeta(2, 10, 25)
	assert.Equal(t, 3, m.TotalPages)
	assert.True(t, m.HasNext)
	assert.True(t, m.HasPrev)

	empty := CreatePaginationMeta(1, 10, 0)
	assert.Equal(t, 1, empty.TotalPages)
	assert.False(t, empty.HasNext)
}
