package lifecycle

import (
	"context"
	"fmt"

	"lablink/db"
	"lablink/models"

	jsoniter "github.com/json-iterator/go"
)

// emit appends an outbox row on tx; it commits or rolls back with the transition.
func emit(ctx context.Context, tx *db.Repo, eventType, aggregateID, actorID, recipientID string, p models.EventPayload) error {
	body, err := jsoniter.ConfigFastest.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", eventType, err)
	}
	return tx.AppendOutbox(ctx, &models.OutboxEvent{
		EventType:   eventType,
		AggregateID: aggregateID,
		ActorID:     actorID,
		RecipientID: recipientID,
		Payload:     string(body),
	})
}

func requestPayload(br *models.BorrowRequest, oldStatus string) models.EventPayload {
	return models.EventPayload{
		RequestID:    br.ID,
		ItemID:       br.ItemID,
		DepartmentID: br.ItemDepartmentID,
		Quantity:     br.Quantity,
		OldStatus:    oldStatus,
		Status:       br.Status,
	}
}
