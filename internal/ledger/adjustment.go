package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/example/gateway-ledger/pkg/audit"
)

// AdjustmentReasonCode classifies why a manual entry was needed.
type AdjustmentReasonCode string

const (
	ReasonCorrection AdjustmentReasonCode = "correction"
	ReasonChargeback AdjustmentReasonCode = "chargeback"
	ReasonFeeRefund  AdjustmentReasonCode = "fee_refund"
	ReasonGoodwill   AdjustmentReasonCode = "goodwill"
	ReasonOther      AdjustmentReasonCode = "other"
)

type AdjustmentReason struct {
	Code AdjustmentReasonCode `json:"code" validate:"required,oneof=correction chargeback fee_refund goodwill other"`
	Note string               `json:"note" validate:"required,max=400"`
}

// AdjustmentRequest is an admin correction to an entity's balance.
type AdjustmentRequest struct {
	EntityType EntityType       `json:"entity_type" validate:"required,oneof=merchant trader affiliate system"`
	EntityID   string           `json:"entity_id" validate:"required,max=100"`
	Amount     int64            `json:"amount" validate:"gt=0"`
	IsCredit   bool             `json:"is_credit"`
	Reason     AdjustmentReason `json:"reason"`
	ActorID    string           `json:"actor_id" validate:"required,max=100"`
	// ReferenceID makes retries idempotent. A random one is used when empty.
	ReferenceID string `json:"reference_id,omitempty" validate:"omitempty,max=100"`
}

// AdjustmentService is the privileged manual posting path.
type AdjustmentService struct {
	engine   *Engine
	clearing string
	opts     Options
}

// NewAdjustmentService wires the service. Postings are refused while the
// store holds an unacknowledged integrity alarm.
func NewAdjustmentService(engine *Engine, clearingAccount string) *AdjustmentService {
	return &AdjustmentService{engine: engine, clearing: clearingAccount, opts: engine.opts}
}

// PostAdjustment posts a two-line entry between the entity's account and
// the adjustments clearing account. Corrections to an adjustment are made
// with another adjustment.
func (s *AdjustmentService) PostAdjustment(ctx context.Context, req AdjustmentRequest) (*JournalEntry, error) {
	entry, err := s.postAdjustment(ctx, req)
	if err != nil {
		s.engine.failed("post adjustment", err, "actor", req.ActorID, "entity", string(req.EntityType)+":"+req.EntityID)
		return nil, err
	}
	return entry, nil
}

func (s *AdjustmentService) postAdjustment(ctx context.Context, req AdjustmentRequest) (*JournalEntry, error) {
	const op = "post adjustment"
	req.ActorID = strings.TrimSpace(req.ActorID)
	req.Reason.Note = strings.TrimSpace(req.Reason.Note)
	req.EntityID = strings.TrimSpace(req.EntityID)
	if err := checkStruct(op, req); err != nil {
		return nil, err
	}

	entity := EntityRef{Type: req.EntityType, ID: req.EntityID}
	acct, err := s.engine.store.FindEntityAccount(ctx, entity)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, newError(KindUnknownAccount, op, "%s has no balance account", entity)
		}
		return nil, err
	}

	refID := req.ReferenceID
	if refID == "" {
		refID = uuid.NewString()
	}
	side := Debit
	if req.IsCredit {
		side = Credit
	}
	halted := func(ctx context.Context, tx Tx) error {
		return checkNotHalted(ctx, tx, op, "adjustments")
	}
	entry, err := s.engine.postTx(ctx, PostRequest{
		ReferenceType: RefAdjustment,
		ReferenceID:   refID,
		Description:   truncate(fmt.Sprintf("adjustment (%s): %s", req.Reason.Code, req.Reason.Note), maxDescriptionLen),
		CreatedBy:     req.ActorID,
		Lines: []LineRequest{
			{AccountCode: acct.Code, EntryType: side, Amount: req.Amount},
			{AccountCode: s.clearing, EntryType: side.Opposite(), Amount: req.Amount},
		},
	}, halted)
	if err != nil {
		return nil, err
	}
	s.engine.committed(ctx, entry)

	if !entry.Replayed {
		s.opts.Auditor.Record(audit.Event{
			Action:  "adjustment.posted",
			Actor:   req.ActorID,
			Subject: acct.Code,
			Detail: fmt.Sprintf("entry=%d side=%s amount=%d reason=%s note=%q",
				entry.EntryNumber, side, req.Amount, req.Reason.Code, req.Reason.Note),
		})
	}
	return entry, nil
}
