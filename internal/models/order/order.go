package order

import (
	"fmt"
	"net/mail"
	"sort"
	"strings"

	"github.com/KretovDmitry/nairabulk-orders/internal/models/errs"
)

// Store is the third-party shop the cart was built on.
type Store string

const (
	Temu       Store = "Temu"
	AliExpress Store = "AliExpress"
)

// ParseStore accepts store names regardless of case.
func ParseStore(s string) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "temu":
		return Temu, nil
	case "aliexpress":
		return AliExpress, nil
	}
	return "", &errs.InvalidFieldError{FieldName: "store", Reason: "must be one of Temu, AliExpress"}
}

// State is the lifecycle position of an order. It is derived from the
// record and never stored.
type State string

const (
	Created        State = "created"
	ProofSubmitted State = "proof_submitted"
	Processed      State = "processed"
)

// ParseState parses a state filter value.
func ParseState(s string) (State, error) {
	switch st := State(strings.ToLower(strings.TrimSpace(s))); st {
	case Created, ProofSubmitted, Processed:
		return st, nil
	}
	return "", &errs.InvalidFieldError{FieldName: "state", Reason: "must be one of created, proof_submitted, processed"}
}

// Order is a customer's proxy-purchase request. Fields aligned for JSON
// records shared with the front-end.
type Order struct {
	OrderID      string `json:"orderId"`
	CreatedAt    int64  `json:"createdAt"`
	FullName     string `json:"fullName"`
	Phone        string `json:"phone"`
	Email        string `json:"email"`
	Address      string `json:"address"`
	Store        Store  `json:"store"`
	Notes        string `json:"notes,omitempty"`
	Screenshot   string `json:"screenshot"`
	PaymentProof string `json:"paymentProof,omitempty"`
	IsProcessed  bool   `json:"isProcessed"`
}

// State reports where the order is in its lifecycle.
func (o *Order) State() State {
	switch {
	case o.IsProcessed:
		return Processed
	case o.PaymentProof != "":
		return ProofSubmitted
	default:
		return Created
	}
}

// CanAcceptProof reports whether a payment proof may be attached.
// Once processed, the proof is frozen.
func (o *Order) CanAcceptProof() error {
	if o.State() == Processed {
		return fmt.Errorf("%w: order %s is already processed", errs.ErrPreconditionFailed, o.OrderID)
	}
	return nil
}

// CanProcess reports whether the order may be marked processed.
func (o *Order) CanProcess() error {
	if o.State() == Created {
		return fmt.Errorf("%w: cannot process order %s without payment proof",
			errs.ErrPreconditionFailed, o.OrderID)
	}
	return nil
}

// Details are the customer-supplied fields of a new order.
type Details struct {
	FullName string
	Phone    string
	Email    string
	Address  string
	Store    Store
	Notes    string
}

// Validate trims the fields in place and checks them.
func (d *Details) Validate() error {
	d.FullName = strings.TrimSpace(d.FullName)
	d.Phone = strings.TrimSpace(d.Phone)
	d.Email = strings.TrimSpace(d.Email)
	d.Address = strings.TrimSpace(d.Address)
	d.Notes = strings.TrimSpace(d.Notes)

	required := []struct {
		name  string
		value string
	}{
		{"fullName", d.FullName},
		{"phone", d.Phone},
		{"email", d.Email},
		{"address", d.Address},
	}
	for _, f := range required {
		if f.value == "" {
			return &errs.RequiredFieldError{FieldName: f.name}
		}
	}

	if addr, err := mail.ParseAddress(d.Email); err != nil || addr.Address != d.Email {
		return &errs.InvalidFieldError{FieldName: "email", Reason: "is not a valid email address"}
	}

	store, err := ParseStore(string(d.Store))
	if err != nil {
		return err
	}
	d.Store = store

	return nil
}

// SortNewestFirst orders by creation time, newest first.
// Equal timestamps fall back to the ID, which embeds the same instant.
func SortNewestFirst(orders []*Order) {
	sort.SliceStable(orders, func(i, j int) bool {
		if orders[i].CreatedAt != orders[j].CreatedAt {
			return orders[i].CreatedAt > orders[j].CreatedAt
		}
		return orders[i].OrderID > orders[j].OrderID
	})
}
