package blindbox

import (
	"context"
	"fmt"
	"time"

	"ms-blindbox/internal/models"
	"ms-blindbox/internal/utils"
)

type IngestResult struct {
	Processed bool `json:"processed"`
	Duplicate bool `json:"duplicate,omitempty"`
}

// IngestWebhook records a provider-delivered payment event exactly once.
// The inserted event record is the atomic commit point: a concurrent
// duplicate delivery loses on the uniqueness constraint and is reported
// as a benign duplicate, never an error. This path is a secondary,
// eventually-consistent writer to the session's confirmation set; the
// synchronous verify calls remain the source of truth for gating state
// transitions.
func (s *Service) IngestWebhook(ctx context.Context, payload []byte, signature string) (*IngestResult, error) {
	event, err := s.Provider.ConstructEvent(payload, signature)
	if err != nil {
		return nil, err
	}

	record := &models.WebhookEventRecord{
		ID:            utils.GenerateEventRecordID(),
		StripeEventID: event.ID,
		Type:          event.Type,
		CreatedAt:     time.Now().UTC(),
	}

	processed, err := s.DB.RecordWebhookEvent(ctx, record, event)
	if err != nil {
		return nil, err
	}
	if !processed {
		s.logger.LogWebhook(event.ID, "duplicate delivery, already recorded")
		return &IngestResult{Duplicate: true}, nil
	}

	s.logger.LogWebhook(event.ID, fmt.Sprintf("processed %s", event.Type))

	if s.Events != nil && event.Type == models.EventPaymentSucceeded {
		if err := s.Events.PublishPaymentRecorded(*event); err != nil {
			s.logger.Warn("KAFKA", fmt.Sprintf("Failed to publish payment recorded for %s: %v", event.ID, err))
		}
	}

	return &IngestResult{Processed: true}, nil
}
