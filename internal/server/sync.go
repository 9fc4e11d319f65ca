package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	subscriptiondomain "github.com/platewise/platewise/internal/subscription/domain"
)

func (s *Server) HandleSyncSubscription(c *gin.Context) {
	ctx := c.Request.Context()

	var req subscriptiondomain.SyncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.obsMetrics.RecordSyncRequest(ctx, "invalid")
		AbortWithError(c, invalidRequestError())
		return
	}

	result, err := s.subscriptionSvc.Sync(ctx, req)
	if err != nil {
		switch {
		case errors.Is(err, subscriptiondomain.ErrMissingIdentifiers):
			s.obsMetrics.RecordSyncRequest(ctx, "invalid")
			AbortWithError(c, err)
		case errors.Is(err, subscriptiondomain.ErrNoBillingCustomer):
			s.obsMetrics.RecordSyncRequest(ctx, "no_customer")
			c.JSON(http.StatusNotFound, gin.H{
				"message":         "no subscription info found",
				"hasSubscription": false,
			})
		default:
			s.obsMetrics.RecordSyncRequest(ctx, "failed")
			AbortWithError(c, err)
		}
		return
	}

	s.obsMetrics.RecordSyncRequest(ctx, "ok")
	c.JSON(http.StatusOK, gin.H{
		"success":         true,
		"subscription":    result.Record,
		"customerId":      result.CustomerID,
		"hasSubscription": result.HasSubscription,
	})
}
