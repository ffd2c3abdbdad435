package server

import (
	"github.com/gin-gonic/gin"
	"github.com/aware88/fresh-crm/internal/observability/logger"
	"github.com/aware88/fresh-crm/internal/orgcontext"
	"go.uber.org/zap"
)

const aiUsageEndpoint = "/api/ai/usage"

// AIUsageRateLimit throttles AI usage recording per organization with
// the shared Redis token bucket. A disabled limiter passes everything
// through.
func (s *Server) AIUsageRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.aiLimiter == nil || !s.aiLimiter.Enabled() {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		orgID, ok := orgcontext.OrgIDFromContext(ctx)
		if !ok || orgID == 0 {
			AbortWithError(c, ErrOrgRequired)
			return
		}

		org := orgIDFromContext(ctx).String()
		result, err := s.aiLimiter.AllowRecord(ctx, org)
		if err != nil {
			logger.FromContext(ctx).Warn("ai usage rate limit check failed", zap.Error(err))
			AbortWithError(c, ErrServiceUnavailable)
			return
		}
		if !result.Allowed {
			logger.FromContext(ctx).Warn("ai usage rate limit exceeded",
				zap.String("endpoint", aiUsageEndpoint),
			)
			if s.obsMetrics != nil {
				s.obsMetrics.RecordRateLimitDenied(ctx, org, aiUsageEndpoint, "org-rate")
			}
			c.Header("Retry-After", "1")
			AbortWithError(c, ErrRateLimited)
			return
		}

		if s.obsMetrics != nil {
			s.obsMetrics.RecordRateLimitAllowed(ctx, org, aiUsageEndpoint)
		}
		c.Next()
	}
}
