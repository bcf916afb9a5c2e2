package reconciliation

import (
	"strings"

	"github.com/Aidin1998/instapay/internal/gateway"
	"github.com/Aidin1998/instapay/pkg/models"
)

// transitions lists every allowed move. FAILED and VOUCHER_POSTED have no
// entry, so nothing leaves them.
var transitions = map[models.State][]models.State{
	models.StateSubmitted:       {models.StatePendingApproval},
	models.StatePendingApproval: {models.StatePendingApproval, models.StateSuccess, models.StateFailed},
	models.StateSuccess:         {models.StateVoucherPosted},
}

// CanTransition reports whether from may move to to
func CanTransition(from, to models.State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

var (
	completedStatuses = map[string]bool{"COMPLETED": true, "SUCCESS": true}
	failedStatuses    = map[string]bool{"FAILED": true, "REJECTED": true, "RETURNED": true, "CANCELLED": true, "CANCELED": true}
)

// MapSettlement derives the lifecycle state implied by a gateway status.
// Completion needs a UTR; a completed status without one stays pending and
// is polled again.
func MapSettlement(p gateway.ParsedStatus) models.State {
	status := strings.ToUpper(strings.TrimSpace(p.Status))
	switch {
	case completedStatuses[status] && strings.TrimSpace(p.UTR) != "":
		return models.StateSuccess
	case failedStatuses[status]:
		return models.StateFailed
	default:
		return models.StatePendingApproval
	}
}
