package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func rateLimitedRouter(rdb *redis.Client, limit int) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/checkout", RateLimit(rdb, "checkout", limit, time.Minute, zap.NewNop()), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return r
}

func rateLimitRequest(r *gin.Engine) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/checkout", nil)
	req.RemoteAddr = "198.51.100.7:4321"
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRateLimitAllowsUnderLimit(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	mock.ExpectIncr("ratelimit:checkout:198.51.100.7").SetVal(1)
	mock.ExpectExpire("ratelimit:checkout:198.51.100.7", time.Minute).SetVal(true)

	w := rateLimitRequest(rateLimitedRouter(rdb, 5))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRateLimitBlocksOverLimit(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	mock.ExpectIncr("ratelimit:checkout:198.51.100.7").SetVal(6)

	w := rateLimitRequest(rateLimitedRouter(rdb, 5))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRateLimitFailsOpenWhenRedisDown(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	mock.ExpectIncr("ratelimit:checkout:198.51.100.7").SetErr(errors.New("connection refused"))

	w := rateLimitRequest(rateLimitedRouter(rdb, 5))
	assert.Equal(t, http.StatusOK, w.Code)
}
