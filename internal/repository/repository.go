// Package repository persists chat history. DynamoStore serves the Lambda
// deployment; SQLiteStore serves local mode.
package repository

import (
	"context"
	"time"

	"little-giant/internal/domain"
)

// Store is the history contract shared by both backends. History returns
// the newest limit messages in chronological order; limit <= 0 means all.
type Store interface {
	Append(ctx context.Context, msgs ...domain.HistoryMessage) error
	History(ctx context.Context, conversationID string, limit int) ([]domain.HistoryMessage, error)
	Clear(ctx context.Context, conversationID string) error
	// TurnCount is the number of user messages in the conversation.
	TurnCount(ctx context.Context, conversationID string) (int, error)
}

var (
	_ Store = (*DynamoStore)(nil)
	_ Store = (*SQLiteStore)(nil)
)

// sortableTime formats timestamps so that lexical order is time order.
const sortableTime = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(sortableTime)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(sortableTime, s)
}

func userTurns(msgs []domain.HistoryMessage) int {
	n := 0
	for _, m := range msgs {
		if m.Role == domain.RoleUser {
			n++
		}
	}
	return n
}
