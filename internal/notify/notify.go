// Package notify implements the shared plumbing of the notification
// channels: credential parsing with multi-account fan-out, per-channel
// account caps, token/chat-id pairing checks, and the once-per-day push
// gate backed by the storage layer's push records. The channel senders
// themselves (webhook bodies, SMTP, bot payloads) live outside the engine.
package notify

import (
	"context"
	"fmt"
	"strings"

	"trendradar/internal/storage"
)

// DefaultMaxAccounts caps fan-out per channel.
const DefaultMaxAccounts = 3

// Sender delivers one fully-rendered report body with one account's
// credential. Implementations are out of engine scope.
type Sender interface {
	Send(ctx context.Context, credential, body string) error
}

// SplitAccounts splits a `;`-separated credential string into individual
// accounts, dropping empties and applying the per-channel cap.
func SplitAccounts(raw string, maxAccounts int) []string {
	if maxAccounts <= 0 {
		maxAccounts = DefaultMaxAccounts
	}
	var accounts []string
	for _, part := range strings.Split(raw, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		accounts = append(accounts, part)
		if len(accounts) == maxAccounts {
			break
		}
	}
	return accounts
}

// TokenPair is one (token, chat id) account of a paired channel.
type TokenPair struct {
	Token  string
	ChatID string
}

// SplitTokenPairs parses paired credentials (Telegram, ntfy-with-token):
// both sides fan out on `;` and must have equal cardinality, otherwise the
// channel is skipped with an error.
func SplitTokenPairs(tokens, chatIDs string, maxAccounts int) ([]TokenPair, error) {
	ts := SplitAccounts(tokens, maxAccounts)
	cs := SplitAccounts(chatIDs, maxAccounts)
	if len(ts) != len(cs) {
		return nil, fmt.Errorf("token/chat-id count mismatch: %d tokens vs %d chat ids", len(ts), len(cs))
	}
	pairs := make([]TokenPair, len(ts))
	for i := range ts {
		pairs[i] = TokenPair{Token: ts[i], ChatID: cs[i]}
	}
	return pairs, nil
}

// Gate decides whether a report may be pushed today and records the push.
type Gate struct {
	backend storage.Backend
}

// NewGate wraps a storage backend.
func NewGate(backend storage.Backend) *Gate {
	return &Gate{backend: backend}
}

// ShouldPush reports whether no push happened yet for the date.
func (g *Gate) ShouldPush(ctx context.Context, date string) (bool, error) {
	pushed, err := g.backend.HasPushedToday(ctx, date)
	if err != nil {
		return false, err
	}
	return !pushed, nil
}

// MarkPushed upserts the day's push record.
func (g *Gate) MarkPushed(ctx context.Context, reportType, date string) error {
	return g.backend.RecordPush(ctx, reportType, date)
}
