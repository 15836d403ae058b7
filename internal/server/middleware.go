package server

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/smallbiznis/storesplit/internal/logger"
	"github.com/smallbiznis/storesplit/internal/ratelimit"
	"github.com/smallbiznis/storesplit/pkg/telemetry/correlation"
	"go.uber.org/zap"
)

const (
	HeaderActor         = "X-Actor-ID"
	HeaderRequestID     = "X-Request-Id"
	HeaderCorrelationID = "X-Correlation-Id"
	HeaderIdempotency   = "Idempotency-Key"

	contextActorIDKey   = "actor_id"
	contextRequestIDKey = "request_id"
)

// RequestLogger tags the request with request and correlation ids and logs
// one line per request once the handler chain returns.
func RequestLogger(log *zap.Logger, debug bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := ensureRequestID(c)

		ctx, cid := correlation.Adopt(c.Request.Context(), c.GetHeader(HeaderCorrelationID))
		c.Header(HeaderCorrelationID, cid)
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		status := c.Writer.Status()
		route := c.FullPath()
		if strings.TrimSpace(route) == "" {
			route = "unknown"
		}
		fields := []zap.Field{
			zap.String("request_id", requestID),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			zap.Int("bytes_out", normalizeSize(c.Writer.Size())),
		}
		if actor := strings.TrimSpace(c.GetString(contextActorIDKey)); actor != "" {
			fields = append(fields, zap.String("actor_id", actor))
		}

		if lastErr := c.Errors.Last(); lastErr != nil {
			errorType, errorCode := classifyErrorForLog(lastErr.Err)
			fields = append(fields,
				zap.String("error_type", errorType),
				zap.String("error_code", errorCode),
			)
			if status >= http.StatusInternalServerError {
				fields = append(fields, zap.Error(lastErr.Err))
			}
			if debug {
				fields = append(fields, zap.Stack("stack"))
			}
		}

		entry := logger.WithContext(c.Request.Context(), log)
		switch {
		case status >= http.StatusInternalServerError:
			entry.Error("http_request", fields...)
		case route == "/health":
			entry.Debug("http_request", fields...)
		default:
			entry.Info("http_request", fields...)
		}
	}
}

// ActorRequired resolves the acting user from the X-Actor-ID header.
func (s *Server) ActorRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(HeaderActor))
		if raw == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		actorID, err := snowflake.ParseString(raw)
		if err != nil || actorID <= 0 {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		c.Set(contextActorIDKey, actorID.String())
		c.Next()
	}
}

// WriteGuard applies the per-actor write limit and holds the Idempotency-Key
// lock for the duration of the request.
func (s *Server) WriteGuard() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.limiter.Enabled() {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		actorID, err := actorFromContext(c)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		res, err := s.limiter.AllowActor(ctx, actorID)
		if err != nil {
			// redis outage must not block writes
			s.log.Warn("write rate limit check failed", zap.Error(err))
		} else if !res.Allowed {
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(res.RetryAfter.Seconds()))))
			AbortWithError(c, ErrRateLimited)
			return
		}

		release, ok, err := s.limiter.AcquireIdempotencyKey(ctx, actorID, c.GetHeader(HeaderIdempotency))
		switch {
		case errors.Is(err, ratelimit.ErrInvalidIdempotencyKey):
			AbortWithError(c, err)
			return
		case err != nil:
			s.log.Warn("idempotency lock failed", zap.Error(err))
		case !ok:
			AbortWithError(c, ErrConflict)
			return
		}
		defer release()

		c.Next()
	}
}

// actorFromContext returns the actor set by ActorRequired. Actor 0 is the
// system actor and never comes from a request.
func actorFromContext(c *gin.Context) (snowflake.ID, error) {
	id, err := snowflake.ParseString(c.GetString(contextActorIDKey))
	if err != nil || id <= 0 {
		return 0, ErrUnauthorized
	}
	return id, nil
}

func ensureRequestID(c *gin.Context) string {
	requestID := strings.TrimSpace(c.GetHeader(HeaderRequestID))
	if requestID == "" {
		requestID = strings.TrimSpace(c.GetHeader("X-Request-ID"))
	}
	if requestID == "" {
		requestID = uuid.NewString()
	}

	c.Set(contextRequestIDKey, requestID)
	c.Header(HeaderRequestID, requestID)
	return requestID
}

func normalizeSize(value int) int {
	if value < 0 {
		return 0
	}
	return value
}
