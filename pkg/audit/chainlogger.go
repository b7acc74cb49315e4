package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// Event is one privileged action recorded in the audit chain.
type Event struct {
	Action  string `json:"action"`
	Actor   string `json:"actor"`
	Subject string `json:"subject,omitempty"`
	Detail  string `json:"detail,omitempty"`
}

// LogEntry is a single link of the chain.
type LogEntry struct {
	Sequence     uint64 `json:"sequence"`
	Timestamp    string `json:"timestamp"`
	PreviousHash string `json:"previous_hash"`
	Payload      string `json:"payload"`
	Hash         string `json:"hash"`
}

// ChainLogger is an append-only hash chain of audit records. Each entry's
// hash covers the previous hash, so editing or dropping a record breaks
// every later link.
type ChainLogger struct {
	mu           sync.Mutex
	previousHash string
	sequence     uint64
	sink         io.Writer
	now          func() time.Time
}

type Option func(*ChainLogger)

// WithSink writes each entry as one JSON line to w after it is chained.
func WithSink(w io.Writer) Option {
	return func(c *ChainLogger) { c.sink = w }
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(c *ChainLogger) { c.now = now }
}

// NewChainLogger creates a chain whose genesis hash is all zeros.
func NewChainLogger(opts ...Option) *ChainLogger {
	c := &ChainLogger{
		previousHash: strings.Repeat("0", 64),
		now:          time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Record appends a structured event.
func (c *ChainLogger) Record(ev Event) *LogEntry {
	payload, err := json.Marshal(ev)
	if err != nil {
		payload = []byte(fmt.Sprintf("action=%s actor=%s", ev.Action, ev.Actor))
	}
	return c.Append(string(payload))
}

// Append adds a raw payload to the chain.
func (c *ChainLogger) Append(payload string) *LogEntry {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.sequence++
	entry := &LogEntry{
		Sequence:     c.sequence,
		Timestamp:    c.now().UTC().Format(time.RFC3339Nano),
		PreviousHash: c.previousHash,
		Payload:      payload,
	}
	entry.Hash = entryHash(entry.PreviousHash, entry.Sequence, entry.Timestamp, entry.Payload)
	c.previousHash = entry.Hash

	if c.sink != nil {
		if line, err := json.Marshal(entry); err == nil {
			_, _ = c.sink.Write(append(line, '\n'))
		}
	}
	return entry
}

// Head returns the hash of the latest entry.
func (c *ChainLogger) Head() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.previousHash
}

func entryHash(prev string, seq uint64, ts, payload string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%d|%s|%s", prev, seq, ts, payload)))
	return hex.EncodeToString(sum[:])
}

// VerifyChain checks that entries form an unbroken chain. It returns the index
// of the first bad entry, or -1.
func VerifyChain(entries []*LogEntry) int {
	for i, entry := range entries {
		if i > 0 {
			if entry.PreviousHash != entries[i-1].Hash || entry.Sequence != entries[i-1].Sequence+1 {
				return i
			}
		}
		if entryHash(entry.PreviousHash, entry.Sequence, entry.Timestamp, entry.Payload) != entry.Hash {
			return i
		}
	}
	return -1
}
