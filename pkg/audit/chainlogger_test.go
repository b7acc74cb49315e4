package audit

import (
	"bufio"
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChainLogger(t *testing.T) {
	logger := NewChainLogger()

	e1 := logger.Record(Event{Action: "adjustment.posted", Actor: "ops-1", Subject: "MERCH_1001"})
	e2 := logger.Record(Event{Action: "integrity.acknowledged", Actor: "ops-2"})
	e3 := logger.Append("raw payload")

	chain := []*LogEntry{e1, e2, e3}
	require.Equal(t, -1, VerifyChain(chain))
	assert.Equal(t, e3.Hash, logger.Head())

	original := e2.Payload
	e2.Payload = `{"action":"adjustment.posted","actor":"someone-else"}`
	assert.Equal(t, 1, VerifyChain(chain), "tampered payload")
	e2.Payload = original

	originalHash := e2.Hash
	e2.Hash = "deadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeef"
	assert.Equal(t, 1, VerifyChain(chain), "tampered hash")
	e2.Hash = originalHash

	assert.Equal(t, 1, VerifyChain([]*LogEntry{e1, e3}), "dropped entry")
}

func TestChainLogger_WritesSink(t *testing.T) {
	var buf bytes.Buffer
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	logger := NewChainLogger(WithSink(&buf), WithClock(func() time.Time { return fixed }))

	logger.Record(Event{Action: "a", Actor: "x"})
	logger.Record(Event{Action: "b", Actor: "y"})

	var entries []*LogEntry
	sc := bufio.NewScanner(&buf)
	for sc.Scan() {
		var e LogEntry
		require.NoError(t, json.Unmarshal(sc.Bytes(), &e))
		entries = append(entries, &e)
	}
	require.Len(t, entries, 2)
	assert.Equal(t, uint64(1), entries[0].Sequence)
	assert.Equal(t, fixed.Format(time.RFC3339Nano), entries[0].Timestamp)
	assert.Equal(t, -1, VerifyChain(entries))
}
