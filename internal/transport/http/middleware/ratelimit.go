package middleware

import (
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	resp "user-account-service/internal/transport/http/response"
)

// RateLimit is a process-wide token bucket. Rejected requests get 429 and a
// Retry-After hint in whole seconds.
func RateLimit(rps rate.Limit, burst int) gin.HandlerFunc {
	lim := rate.NewLimiter(rps, burst)
	return func(c *gin.Context) {
		r := lim.Reserve()
		if r.OK() && r.Delay() == 0 {
			c.Next()
			return
		}
		if r.OK() {
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(r.Delay().Seconds()))))
			r.Cancel()
		}
		c.AbortWithStatusJSON(http.StatusTooManyRequests, resp.Error(resp.MsgTooMany))
	}
}
