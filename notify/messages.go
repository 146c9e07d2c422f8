package notify

import (
	"fmt"
	"strings"

	"lablink/models"
)

var messageTypes = map[string]string{
	models.EventRequestSubmitted: models.MessageSubmitted,
	models.EventRequestApproved:  models.MessageApproval,
	models.EventRequestRejected:  models.MessageRejection,
	models.EventRequestWithdrawn: models.MessageRejection,
	models.EventReturnSubmitted:  models.MessageReturnSubmitted,
	models.EventReturnVerified:   models.MessageReturnVerified,
	models.EventReturnRejected:   models.MessageReturnRejected,
}

const timeLayout = "2006-01-02 15:04 MST"

// compose renders the subject and body addressed to the borrower.
func compose(eventType, itemName string, p models.EventPayload) (subject, body string) {
	what := fmt.Sprintf("%d x %s", p.Quantity, itemName)
	switch eventType {
	case models.EventRequestSubmitted:
		return "Borrow request submitted", fmt.Sprintf("Your request for %s is waiting for staff review.", what)
	case models.EventRequestApproved:
		var b strings.Builder
		fmt.Fprintf(&b, "Your request for %s was approved.", what)
		if p.PickupLocation != "" {
			fmt.Fprintf(&b, "\nPickup location: %s", p.PickupLocation)
		}
		if p.CollectionDatetime != nil {
			fmt.Fprintf(&b, "\nCollect at: %s", p.CollectionDatetime.Format(timeLayout))
		}
		if p.DueDate != nil {
			fmt.Fprintf(&b, "\nDue back: %s", p.DueDate.Format(timeLayout))
		}
		if p.Conditions != "" {
			fmt.Fprintf(&b, "\nConditions: %s", p.Conditions)
		}
		return "Borrow request approved", b.String()
	case models.EventRequestRejected:
		return "Borrow request rejected", fmt.Sprintf("Your request for %s was rejected. Reason: %s", what, p.Reason)
	case models.EventRequestWithdrawn:
		return "Borrow request withdrawn", fmt.Sprintf("Your request for %s was withdrawn and the stock released.", what)
	case models.EventReturnSubmitted:
		return "Return submitted", fmt.Sprintf("Your return of %s (%s) is waiting for verification.", what, p.Condition)
	case models.EventReturnVerified:
		if p.Status == models.RequestReturned {
			return "Return verified", fmt.Sprintf("Your return of %s was verified. The request is closed.", what)
		}
		return "Return verified", fmt.Sprintf("Your return of %s was verified. Some items are still outstanding.", what)
	case models.EventReturnRejected:
		return "Return rejected", fmt.Sprintf("Your return of %s was not accepted. Reason: %s. Please submit it again.", what, p.Reason)
	}
	return eventType, ""
}

func entityOf(ev models.OutboxEvent, p models.EventPayload) (entityType, entityID string) {
	switch {
	case ev.EventType == models.EventDamageReported:
		return "item", ev.AggregateID
	case strings.HasPrefix(ev.EventType, "return.") && p.ReturnID != "":
		return "return_request", p.ReturnID
	}
	return "borrow_request", ev.AggregateID
}
