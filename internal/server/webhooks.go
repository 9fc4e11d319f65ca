package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	billingdomain "github.com/platewise/platewise/internal/billing/domain"
	"github.com/platewise/platewise/internal/observability/logger"
	subscriptiondomain "github.com/platewise/platewise/internal/subscription/domain"
	"go.uber.org/zap"
)

// HandleStripeWebhook ingests a provider event. Once the signature checks
// out the provider always gets a success acknowledgment, whatever happens
// during reconciliation; failing the request would only trigger redelivery
// of the same payload.
func (s *Server) HandleStripeWebhook(c *gin.Context) {
	ctx := c.Request.Context()
	log := logger.FromContext(ctx)

	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	if err := s.webhookDecoder.Verify(ctx, payload, c.Request.Header); err != nil {
		s.obsMetrics.RecordWebhookEvent(ctx, "unknown", "signature_rejected")
		AbortWithError(c, billingdomain.ErrInvalidSignature)
		return
	}

	event, err := s.webhookDecoder.Parse(ctx, payload)
	if err != nil {
		if errors.Is(err, billingdomain.ErrEventIgnored) {
			s.obsMetrics.RecordWebhookEvent(ctx, "unknown", "ignored")
		} else {
			s.obsMetrics.RecordWebhookEvent(ctx, "unknown", "unparseable")
			log.Warn("webhook payload could not be parsed", zap.Error(err))
		}
		c.JSON(http.StatusOK, gin.H{"received": true})
		return
	}

	if err := s.subscriptionSvc.ApplyEvent(ctx, event); err != nil {
		outcome := "failed"
		switch {
		case errors.Is(err, subscriptiondomain.ErrEventAlreadyProcessed):
			outcome = "duplicate"
		case errors.Is(err, subscriptiondomain.ErrEventDropped):
			outcome = "dropped"
		case errors.Is(err, subscriptiondomain.ErrUserUnresolved):
			outcome = "unresolved"
		default:
			log.Error("webhook reconciliation failed",
				zap.String("event_type", string(event.Kind)),
				zap.String("provider_event_id", event.ProviderEventID),
				zap.Error(err),
			)
		}
		s.obsMetrics.RecordWebhookEvent(ctx, string(event.Kind), outcome)
		c.JSON(http.StatusOK, gin.H{"received": true})
		return
	}

	s.obsMetrics.RecordWebhookEvent(ctx, string(event.Kind), "applied")
	c.JSON(http.StatusOK, gin.H{"received": true})
}
