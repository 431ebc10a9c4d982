package middleware

import (
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"fileforge/internal/models"
	"fileforge/internal/utils"
)

// RateLimit enforces a fixed one-minute request budget per identity,
// counted in Redis. The identity is the resolved owner when
// Authenticate ran earlier in the chain, the client IP otherwise.
// Redis being unreachable never blocks traffic.
func RateLimit(log *logrus.Logger, rdb *redis.Client, perMinute int) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if rdb == nil || perMinute <= 0 {
			return c.Next()
		}

		now := time.Now()
		key := fmt.Sprintf("ratelimit:%s:%d", limitIdentity(c), now.Unix()/60)

		pipe := rdb.TxPipeline()
		count := pipe.Incr(c.Context(), key)
		// Two minutes covers the window plus clock skew; the key expires
		// on its own even if the last request of a window errors out.
		pipe.Expire(c.Context(), key, 2*time.Minute)
		if _, err := pipe.Exec(c.Context()); err != nil {
			log.WithError(err).Warn("rate limiter unavailable, letting request through")
			return c.Next()
		}

		if count.Val() > int64(perMinute) {
			c.Set(fiber.HeaderRetryAfter, strconv.FormatInt(60-now.Unix()%60, 10))
			return utils.RespondWithError(c, fiber.StatusTooManyRequests, "Rate limit exceeded")
		}
		return c.Next()
	}
}

func limitIdentity(c *fiber.Ctx) string {
	if owner, ok := CtxOwner(c); ok {
		switch {
		case owner.IsUser():
			return "user:" + owner.UserID.String()
		case owner.IsGuest():
			return "guest:" + *owner.GuestToken
		}
	}
	return "ip:" + c.IP()
}
