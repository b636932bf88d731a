package response

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/tidwall/gjson"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(h gin.HandlerFunc, reqID string) *httptest.ResponseRecorder {
	r := gin.New()
	r.Use(RequestIDMiddleware())
	r.GET("/x", h)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	if reqID != "" {
		req.Header.Set("X-Request-ID", reqID)
	}
	r.ServeHTTP(w, req)
	return w
}

func TestSuccessEnvelope(t *testing.T) {
	w := serve(func(c *gin.Context) {
		Success(c, http.StatusOK, gin.H{"status": "ok"})
	}, "req-1")

	assert.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Equal(t, "ok", gjson.Get(body, "data.status").String())
	assert.Equal(t, "req-1", gjson.Get(body, "metadata.request_id").String())
	assert.False(t, gjson.Get(body, "error").Exists())
	assert.Equal(t, "req-1", w.Header().Get("X-Request-ID"))
}

func TestFailWithDetail(t *testing.T) {
	w := serve(func(c *gin.Context) {
		FailWithDetail(c, http.StatusBadGateway, ErrNetwork, "upstream 503")
	}, "")

	body := w.Body.String()
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, string(ErrNetwork), gjson.Get(body, "error.code").String())
	assert.Equal(t, GetMessage(ErrNetwork), gjson.Get(body, "error.message").String())
	assert.Equal(t, "upstream 503", gjson.Get(body, "error.detail").String())
	assert.NotEmpty(t, gjson.Get(body, "metadata.request_id").String())
}

func TestRequestIDRejectsOversizedHeader(t *testing.T) {
	long := strings.Repeat("a", 200)
	w := serve(func(c *gin.Context) { Success(c, http.StatusOK, nil) }, long)

	assert.NotEqual(t, long, w.Header().Get("X-Request-ID"))
	assert.Len(t, w.Header().Get("X-Request-ID"), 36)
}

func TestGetMessageDefault(t *testing.T) {
	assert.Equal(t, "An unexpected error occurred.", GetMessage("SOMETHING_ELSE"))
}
