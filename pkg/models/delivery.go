package models

import (
	"errors"
	"fmt"
)

// DeliveryStatus is the lifecycle state of an open delivery.
type DeliveryStatus string

const (
	DeliveryOpen       DeliveryStatus = "open"
	DeliveryCommitted  DeliveryStatus = "committed"
	DeliveryRolledBack DeliveryStatus = "rolled_back"
)

// ErrInvalidTransition is returned for any status change other than
// open to committed or open to rolled back.
var ErrInvalidTransition = errors.New("invalid delivery status transition")

// Delivery is one incoming shipment, alive only inside a single write transaction.
type Delivery struct {
	ID         int64          `json:"id"`
	OperatorID string         `json:"operator_id"`
	Status     DeliveryStatus `json:"status"`
}

// NewDelivery creates a delivery in the open state.
func NewDelivery(id int64, operatorID string) *Delivery {
	return &Delivery{ID: id, OperatorID: operatorID, Status: DeliveryOpen}
}

// Transition moves the delivery to next.
func (d *Delivery) Transition(next DeliveryStatus) error {
	if d.Status != DeliveryOpen || (next != DeliveryCommitted && next != DeliveryRolledBack) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, d.Status, next)
	}
	d.Status = next
	return nil
}

// UnresolvedLine is a line item left out of the write for manual handling.
type UnresolvedLine struct {
	Index int      `json:"index"`
	Item  LineItem `json:"item"`
}

// DeliverySummary is the only durable record of a push.
type DeliverySummary struct {
	DeliveryID      int64            `json:"delivery_id"`
	Status          DeliveryStatus   `json:"status"`
	DryRun          bool             `json:"dry_run"`
	Total           int              `json:"total"`
	AutoResolved    int              `json:"auto_resolved"`
	ManuallyChosen  int              `json:"manually_chosen"`
	Unresolved      int              `json:"unresolved"`
	UnresolvedItems []UnresolvedLine `json:"unresolved_items,omitempty"`
}

// Written is the number of detail rows the push wrote, or would have written.
func (s *DeliverySummary) Written() int {
	return s.AutoResolved + s.ManuallyChosen
}
