package ledger_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/gateway-ledger/internal/ledger"
	"github.com/example/gateway-ledger/pkg/audit"
)

func adjustment(amount int64, credit bool) ledger.AdjustmentRequest {
	return ledger.AdjustmentRequest{
		EntityType: ledger.EntityMerchant,
		EntityID:   "9",
		Amount:     amount,
		IsCredit:   credit,
		Reason:     ledger.AdjustmentReason{Code: ledger.ReasonCorrection, Note: "duplicate payin booked twice"},
		ActorID:    "admin-42",
	}
}

func TestPostAdjustment_DebitAndCredit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	code := f.merchant(t, "9")

	entry, err := f.adjust.PostAdjustment(ctx, adjustment(150, false))
	require.NoError(t, err)
	assert.Equal(t, ledger.RefAdjustment, entry.ReferenceType)
	assert.Equal(t, "admin-42", entry.CreatedBy)
	require.Len(t, entry.Lines, 2)
	assert.Equal(t, code, entry.Lines[0].AccountCode)
	assert.Equal(t, ledger.Debit, entry.Lines[0].EntryType)
	assert.Equal(t, f.sys.AdjustmentClearing, entry.Lines[1].AccountCode)
	assert.Equal(t, int64(150), f.balance(t, code))

	_, err = f.adjust.PostAdjustment(ctx, adjustment(50, true))
	require.NoError(t, err)
	assert.Equal(t, int64(100), f.balance(t, code))
	f.requireHealthy(t)
}

func TestPostAdjustment_RecordsActorInAuditChain(t *testing.T) {
	f := newFixture(t)
	f.merchant(t, "9")

	req := adjustment(10, true)
	req.ReferenceID = "ticket-881"
	entry, err := f.adjust.PostAdjustment(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "ticket-881", entry.ReferenceID)

	// Retrying the same ticket is answered from the journal and not audited twice.
	replay, err := f.adjust.PostAdjustment(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, replay.Replayed)
	assert.Equal(t, entry.EntryNumber, replay.EntryNumber)

	entries := f.auditEntries(t)
	require.Len(t, entries, 1)
	assert.Equal(t, -1, audit.VerifyChain(entries))

	var ev audit.Event
	require.NoError(t, json.Unmarshal([]byte(entries[0].Payload), &ev))
	assert.Equal(t, "adjustment.posted", ev.Action)
	assert.Equal(t, "admin-42", ev.Actor)
	assert.Equal(t, "MERCH_9", ev.Subject)
}

func TestPostAdjustment_Validation(t *testing.T) {
	f := newFixture(t)
	f.merchant(t, "9")

	cases := map[string]func(r *ledger.AdjustmentRequest){
		"missing actor":      func(r *ledger.AdjustmentRequest) { r.ActorID = "" },
		"blank actor":        func(r *ledger.AdjustmentRequest) { r.ActorID = "   " },
		"missing reason":     func(r *ledger.AdjustmentRequest) { r.Reason = ledger.AdjustmentReason{} },
		"blank reason note":  func(r *ledger.AdjustmentRequest) { r.Reason.Note = " " },
		"unknown reason":     func(r *ledger.AdjustmentRequest) { r.Reason.Code = "because" },
		"zero amount":        func(r *ledger.AdjustmentRequest) { r.Amount = 0 },
		"negative amount":    func(r *ledger.AdjustmentRequest) { r.Amount = -1 },
		"missing entity id":  func(r *ledger.AdjustmentRequest) { r.EntityID = "" },
		"invalid entity typ": func(r *ledger.AdjustmentRequest) { r.EntityType = "bank" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			req := adjustment(10, true)
			mutate(&req)
			_, err := f.adjust.PostAdjustment(context.Background(), req)
			require.ErrorIs(t, err, ledger.ErrValidation)
		})
	}

	req := adjustment(10, true)
	req.EntityID = "404"
	_, err := f.adjust.PostAdjustment(context.Background(), req)
	assert.ErrorIs(t, err, ledger.ErrUnknownAccount)
}
