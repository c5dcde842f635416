package repository

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"little-giant/internal/domain"
)

const (
	skPrefixMsg    = "MSG#"
	skMeta         = "META#"
	ttlDuration    = 30 * 24 * time.Hour // 30-day TTL
	maxBatchWrite  = 25
	maxTransaction = 100
)

// dynamodbAPI is the minimal DynamoDB interface required by DynamoStore.
// Defined here for testability.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
	BatchWriteItem(ctx context.Context, in *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
}

// DynamoStore keeps history in a single table: CONV#<id> partitions hold
// MSG#<time> items and one META# item with the turn count.
type DynamoStore struct {
	api       dynamodbAPI
	tableName string
	now       func() time.Time
}

func NewDynamoStore(api dynamodbAPI, tableName string) (*DynamoStore, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &DynamoStore{api: api, tableName: tableName, now: time.Now}, nil
}

// convPK returns the DynamoDB partition key for a conversation.
func convPK(conversationID string) string {
	return "CONV#" + conversationID
}

// msgSK orders messages by creation time; role breaks ties.
func msgSK(m domain.HistoryMessage) string {
	return skPrefixMsg + formatTime(m.CreatedAt) + "#" + string(m.Role)
}

func (s *DynamoStore) ttlValue() int64 {
	return s.now().Add(ttlDuration).Unix()
}

// Append writes the messages and bumps the conversation metadata in one
// transaction. All messages must belong to the same conversation.
func (s *DynamoStore) Append(ctx context.Context, msgs ...domain.HistoryMessage) error {
	if len(msgs) == 0 {
		return nil
	}
	if len(msgs) >= maxTransaction {
		return fmt.Errorf("repository: Append: %d messages exceed one transaction", len(msgs))
	}
	convID := msgs[0].ConversationID
	ttl := s.ttlValue()

	items := make([]types.TransactWriteItem, 0, len(msgs)+1)
	for _, m := range msgs {
		if m.ConversationID != convID {
			return errors.New("repository: Append: messages span conversations")
		}
		if strings.TrimSpace(m.ConversationID) == "" {
			return errors.New("repository: Append: conversation id is required")
		}
		items = append(items, types.TransactWriteItem{
			Put: &types.Put{
				TableName:           aws.String(s.tableName),
				Item:                messageItem(m, ttl),
				ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
			},
		})
	}
	items = append(items, types.TransactWriteItem{
		Update: &types.Update{
			TableName: aws.String(s.tableName),
			Key: map[string]types.AttributeValue{
				"PK": &types.AttributeValueMemberS{Value: convPK(convID)},
				"SK": &types.AttributeValueMemberS{Value: skMeta},
			},
			UpdateExpression: aws.String("ADD turns :turns SET conversationId = :cid, lastActivity = :now, #ttl = :ttl"),
			ExpressionAttributeNames: map[string]string{
				"#ttl": "ttl",
			},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":turns": &types.AttributeValueMemberN{Value: strconv.Itoa(userTurns(msgs))},
				":cid":   &types.AttributeValueMemberS{Value: convID},
				":now":   &types.AttributeValueMemberS{Value: s.now().UTC().Format(time.RFC3339)},
				":ttl":   &types.AttributeValueMemberN{Value: strconv.FormatInt(ttl, 10)},
			},
		},
	})

	if _, err := s.api.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: items}); err != nil {
		return fmt.Errorf("repository: Append: %w", err)
	}
	return nil
}

// History queries MSG# items newest first and returns them chronologically.
func (s *DynamoStore) History(ctx context.Context, conversationID string, limit int) ([]domain.HistoryMessage, error) {
	in := &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     &types.AttributeValueMemberS{Value: convPK(conversationID)},
			":prefix": &types.AttributeValueMemberS{Value: skPrefixMsg},
		},
		// Read newest first so LIMIT favors the most recent context.
		ScanIndexForward: aws.Bool(false),
	}
	if limit > 0 {
		in.Limit = aws.Int32(int32(min(limit, math.MaxInt32)))
	}

	var msgs []domain.HistoryMessage
	for {
		out, err := s.api.Query(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("repository: History query: %w", err)
		}
		for _, item := range out.Items {
			msg, err := itemToMessage(item)
			if err != nil {
				return nil, fmt.Errorf("repository: History unmarshal: %w", err)
			}
			msgs = append(msgs, msg)
		}
		if limit > 0 || len(out.LastEvaluatedKey) == 0 {
			break
		}
		in.ExclusiveStartKey = out.LastEvaluatedKey
	}

	// Reverse to chronological order before returning to prompt assembly.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// TurnCount returns the persisted user turn count for a conversation.
func (s *DynamoStore) TurnCount(ctx context.Context, conversationID string) (int, error) {
	out, err := s.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: convPK(conversationID)},
			"SK": &types.AttributeValueMemberS{Value: skMeta},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return 0, fmt.Errorf("repository: TurnCount get item: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return 0, nil
	}

	turns, err := intAttr(out.Item, "turns")
	if err != nil {
		return 0, fmt.Errorf("repository: TurnCount decode turns: %w", err)
	}
	return turns, nil
}

// Clear deletes every item of the conversation partition, metadata included.
func (s *DynamoStore) Clear(ctx context.Context, conversationID string) error {
	in := &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		KeyConditionExpression: aws.String("PK = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: convPK(conversationID)},
		},
		ProjectionExpression: aws.String("PK, SK"),
	}
	var keys []map[string]types.AttributeValue
	for {
		out, err := s.api.Query(ctx, in)
		if err != nil {
			return fmt.Errorf("repository: Clear query: %w", err)
		}
		for _, item := range out.Items {
			keys = append(keys, map[string]types.AttributeValue{"PK": item["PK"], "SK": item["SK"]})
		}
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		in.ExclusiveStartKey = out.LastEvaluatedKey
	}

	for start := 0; start < len(keys); start += maxBatchWrite {
		end := min(start+maxBatchWrite, len(keys))
		reqs := make([]types.WriteRequest, 0, end-start)
		for _, k := range keys[start:end] {
			reqs = append(reqs, types.WriteRequest{DeleteRequest: &types.DeleteRequest{Key: k}})
		}
		if err := s.batchDelete(ctx, reqs); err != nil {
			return err
		}
	}
	return nil
}

func (s *DynamoStore) batchDelete(ctx context.Context, reqs []types.WriteRequest) error {
	pending := map[string][]types.WriteRequest{s.tableName: reqs}
	for attempt := 0; len(pending[s.tableName]) > 0; attempt++ {
		if attempt == 3 {
			return fmt.Errorf("repository: Clear: %d deletes left unprocessed", len(pending[s.tableName]))
		}
		out, err := s.api.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{RequestItems: pending})
		if err != nil {
			return fmt.Errorf("repository: Clear batch delete: %w", err)
		}
		pending = out.UnprocessedItems
	}
	return nil
}

// itemToMessage converts a DynamoDB attribute map to a HistoryMessage.
func itemToMessage(item map[string]types.AttributeValue) (domain.HistoryMessage, error) {
	convID, err := strAttr(item, "conversationId")
	if err != nil {
		return domain.HistoryMessage{}, err
	}
	role, err := strAttr(item, "role")
	if err != nil {
		return domain.HistoryMessage{}, err
	}
	content, _ := strAttr(item, "content") // allow empty
	created, err := strAttr(item, "createdAt")
	if err != nil {
		return domain.HistoryMessage{}, err
	}
	at, err := parseTime(created)
	if err != nil {
		return domain.HistoryMessage{}, fmt.Errorf("repository: parse createdAt: %w", err)
	}
	return domain.HistoryMessage{
		ConversationID: convID,
		Role:           domain.Role(role),
		Content:        content,
		CreatedAt:      at,
	}, nil
}

func messageItem(m domain.HistoryMessage, ttl int64) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":             &types.AttributeValueMemberS{Value: convPK(m.ConversationID)},
		"SK":             &types.AttributeValueMemberS{Value: msgSK(m)},
		"conversationId": &types.AttributeValueMemberS{Value: m.ConversationID},
		"role":           &types.AttributeValueMemberS{Value: string(m.Role)},
		"content":        &types.AttributeValueMemberS{Value: m.Content},
		"createdAt":      &types.AttributeValueMemberS{Value: formatTime(m.CreatedAt)},
		"ttl":            &types.AttributeValueMemberN{Value: strconv.FormatInt(ttl, 10)},
	}
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("repository: missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("repository: attribute %q is not a string", key)
	}
	return s.Value, nil
}

func intAttr(item map[string]types.AttributeValue, key string) (int, error) {
	v, ok := item[key]
	if !ok {
		return 0, fmt.Errorf("repository: missing attribute %q", key)
	}
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("repository: attribute %q is not a number", key)
	}
	parsed, err := strconv.Atoi(n.Value)
	if err != nil {
		return 0, fmt.Errorf("repository: parse attribute %q: %w", key, err)
	}
	return parsed, nil
}
