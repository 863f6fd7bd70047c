package orders

import (
	"fmt"

	"github.com/gigmarket/gigmarket-backend/pkg/db/models"
	"github.com/gigmarket/gigmarket-backend/pkg/enums"
	pkgerrors "github.com/gigmarket/gigmarket-backend/pkg/errors"
	"github.com/google/uuid"
)

type edge struct {
	from   enums.OrderStatus
	to     enums.OrderStatus
	actors []enums.ActorRole
}

// transitions is the complete set of permitted status changes.
var transitions = []edge{
	{enums.OrderStatusPending, enums.OrderStatusInProgress, []enums.ActorRole{enums.ActorRoleSeller}},
	{enums.OrderStatusPending, enums.OrderStatusCancelled, []enums.ActorRole{enums.ActorRoleBuyer, enums.ActorRoleSeller}},
	{enums.OrderStatusInProgress, enums.OrderStatusDelivered, []enums.ActorRole{enums.ActorRoleSeller}},
	{enums.OrderStatusRevisionRequested, enums.OrderStatusDelivered, []enums.ActorRole{enums.ActorRoleSeller}},
	{enums.OrderStatusDelivered, enums.OrderStatusRevisionRequested, []enums.ActorRole{enums.ActorRoleBuyer}},
	{enums.OrderStatusRevisionRequested, enums.OrderStatusInProgress, []enums.ActorRole{enums.ActorRoleSeller}},
	{enums.OrderStatusDelivered, enums.OrderStatusCompleted, []enums.ActorRole{enums.ActorRoleBuyer}},
}

func findEdge(from, to enums.OrderStatus) (edge, bool) {
	for _, e := range transitions {
		if e.from == from && e.to == to {
			return e, true
		}
	}
	return edge{}, false
}

func (e edge) allows(actor enums.ActorRole) bool {
	for _, candidate := range e.actors {
		if candidate == actor {
			return true
		}
	}
	return false
}

// CanTransition reports whether actor may move an order from one status to another.
func CanTransition(from, to enums.OrderStatus, actor enums.ActorRole) bool {
	e, ok := findEdge(from, to)
	return ok && e.allows(actor)
}

// Authorize validates a status change against the transition table. Edges
// outside the table are InvalidTransition; a valid edge taken by the wrong
// party is Forbidden.
func Authorize(from, to enums.OrderStatus, actor enums.ActorRole) error {
	e, ok := findEdge(from, to)
	if !ok {
		return invalidTransition(from, to)
	}
	if !e.allows(actor) {
		return pkgerrors.New(pkgerrors.CodeForbidden, fmt.Sprintf("the %s cannot move an order from %s to %s", actor, from, to)).
			WithDetails(map[string]string{"current": string(from), "requested": string(to), "role": string(actor)})
	}
	return nil
}

// ResolveActor maps a principal onto their role in order. Principals who are
// neither buyer nor seller are rejected.
func ResolveActor(order *models.Order, userID uuid.UUID) (enums.ActorRole, error) {
	switch {
	case order == nil:
		return "", pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	case userID == uuid.Nil:
		return "", pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	case userID == order.ClientID:
		return enums.ActorRoleBuyer, nil
	case userID == order.GigOwnerID:
		return enums.ActorRoleSeller, nil
	}
	return "", pkgerrors.New(pkgerrors.CodeForbidden, "you are not a party to this order")
}

func invalidTransition(from, to enums.OrderStatus) error {
	return pkgerrors.New(pkgerrors.CodeInvalidTransition, fmt.Sprintf("cannot move order from %s to %s", from, to)).
		WithDetails(map[string]string{"current": string(from), "requested": string(to)})
}
