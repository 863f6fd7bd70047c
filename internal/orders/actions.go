package orders

import (
	"github.com/gigmarket/gigmarket-backend/pkg/db/models"
	"github.com/gigmarket/gigmarket-backend/pkg/enums"
)

// Action names a request the actor can make next.
type Action string

const (
	ActionStart           Action = "start"
	ActionCancel          Action = "cancel"
	ActionUploadDelivery  Action = "upload_delivery"
	ActionMarkDelivered   Action = "mark_delivered"
	ActionAccessFiles     Action = "access_files"
	ActionDeleteFile      Action = "delete_file"
	ActionPay             Action = "pay"
	ActionRequestRevision Action = "request_revision"
	ActionAcceptRevision  Action = "accept_revision"
	ActionDeclineRevision Action = "decline_revision"
)

// NextActions lists what actor may do with order given how many delivery
// files it has. Status actions come from the transition table.
func NextActions(order *models.Order, actor enums.ActorRole, fileCount int64) []Action {
	actions := []Action{}
	if order == nil {
		return actions
	}
	from := order.Status
	hasFiles := fileCount > 0

	for _, e := range transitions {
		if e.from != from || !e.allows(actor) {
			continue
		}
		switch {
		case e.to == enums.OrderStatusInProgress && from == enums.OrderStatusPending:
			actions = append(actions, ActionStart)
		case e.to == enums.OrderStatusCancelled:
			actions = append(actions, ActionCancel)
		case e.to == enums.OrderStatusDelivered && hasFiles:
			actions = append(actions, ActionMarkDelivered)
			if from == enums.OrderStatusRevisionRequested {
				actions = append(actions, ActionDeclineRevision)
			}
		case e.to == enums.OrderStatusRevisionRequested:
			actions = append(actions, ActionRequestRevision)
		case e.to == enums.OrderStatusInProgress && from == enums.OrderStatusRevisionRequested:
			actions = append(actions, ActionAcceptRevision)
		case e.to == enums.OrderStatusCompleted:
			actions = append(actions, ActionPay)
		}
	}

	if actor == enums.ActorRoleSeller && (from == enums.OrderStatusInProgress || from == enums.OrderStatusRevisionRequested) {
		actions = append(actions, ActionUploadDelivery)
	}
	if hasFiles && canAccessFiles(from, actor) {
		actions = append(actions, ActionAccessFiles)
	}
	if hasFiles && from != enums.OrderStatusCompleted {
		actions = append(actions, ActionDeleteFile)
	}
	return actions
}

func canAccessFiles(status enums.OrderStatus, actor enums.ActorRole) bool {
	if actor == enums.ActorRoleSeller {
		return true
	}
	return status == enums.OrderStatusDelivered || status == enums.OrderStatusCompleted
}
