package lifecycle

import "lablink/models"

var transitions = map[string][]string{
	models.RequestPending:       {models.RequestApproved, models.RequestRejected},
	models.RequestApproved:      {models.RequestReturnPending},
	models.RequestReturnPending: {models.RequestReturned},
}

// CanTransition reports whether a borrow request may move from one status to another.
// rejected and returned have no outgoing edges.
func CanTransition(from, to string) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func terminal(status string) bool { return len(transitions[status]) == 0 }
