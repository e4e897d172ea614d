package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestError_IncludesDetail(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	Error(c, http.StatusConflict, "Session is completed", nil, errors.New("frozen"))

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.True(t, c.IsAborted())
	require.Len(t, c.Errors, 1)

	var resp Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, http.StatusConflict, resp.Code)
	assert.Equal(t, "frozen", resp.Error)
}

func TestNewPage(t *testing.T) {
	p := NewPage([]int{1, 2}, 5, 0, 2)
	assert.Equal(t, 1, p.Page)
	assert.Equal(t, 3, p.TotalPages)

	assert.Equal(t, 0, NewPage(nil, 0, 1, 50).TotalPages)
}
