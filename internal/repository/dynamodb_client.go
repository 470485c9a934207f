// Package repository persists survey records and (for the webhook
// deployment) in-progress sessions in a single DynamoDB table keyed by
// user: PK=USER#<id>, SK=REC#<timestamp> for committed entries and
// SK=SESSION# for the one in-flight session.
package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"mindlog-bot/internal/domain"
)

const (
	skPrefixRecord = "REC#"
	skSession      = "SESSION#"
	ttlDuration    = 30 * 24 * time.Hour // session retention in the webhook variant
)

// dynamodbAPI is the minimal DynamoDB interface required by the clients.
// Defined here for testability.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// reservedAttrs are the fixed record item attributes; everything else on
// a record item is a topic answer column. Topic ids therefore must not
// collide with these names, which catalog revisions keep additive.
var reservedAttrs = map[string]bool{
	"PK": true, "SK": true, "id": true, "userId": true,
	"userName": true, "createdAt": true, "rating": true, "ttl": true,
}

// Client wraps the DynamoDB table for committed records.
type Client struct {
	api       dynamodbAPI
	tableName string
}

// New creates a record store Client.
func New(api dynamodbAPI, tableName string) (*Client, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &Client{api: api, tableName: tableName}, nil
}

// userPK returns the partition key for a user.
func userPK(userID int64) string {
	return "USER#" + strconv.FormatInt(userID, 10)
}

// recordSK returns the sort key for a record from its commit timestamp.
func recordSK(ts time.Time) string {
	return skPrefixRecord + ts.UTC().Format(time.RFC3339Nano)
}

// AppendRecord writes one committed record. The conditional put makes
// the append atomic: the item either lands whole or not at all, and an
// existing item is never overwritten.
func (c *Client) AppendRecord(ctx context.Context, rec domain.Record) error {
	if rec.UserID == 0 {
		return errors.New("repository: AppendRecord: user id is required")
	}
	if rec.ID == "" {
		return errors.New("repository: AppendRecord: record id is required")
	}

	_, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(c.tableName),
		Item:                recordItem(rec),
		ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
	})
	if err != nil {
		return fmt.Errorf("repository: AppendRecord: %w", err)
	}
	return nil
}

// ListRecords queries all REC# items for a user in chronological order.
func (c *Client) ListRecords(ctx context.Context, userID int64) ([]domain.Record, error) {
	in := &dynamodb.QueryInput{
		TableName:              aws.String(c.tableName),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     &types.AttributeValueMemberS{Value: userPK(userID)},
			":prefix": &types.AttributeValueMemberS{Value: skPrefixRecord},
		},
		ScanIndexForward: aws.Bool(true),
	}

	out, err := c.api.Query(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("repository: ListRecords query: %w", err)
	}

	recs := make([]domain.Record, 0, len(out.Items))
	for _, item := range out.Items {
		rec, err := itemToRecord(item)
		if err != nil {
			return nil, fmt.Errorf("repository: ListRecords unmarshal: %w", err)
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

func recordItem(rec domain.Record) map[string]types.AttributeValue {
	item := map[string]types.AttributeValue{
		"PK":        &types.AttributeValueMemberS{Value: userPK(rec.UserID)},
		"SK":        &types.AttributeValueMemberS{Value: recordSK(rec.CreatedAt)},
		"id":        &types.AttributeValueMemberS{Value: rec.ID},
		"userId":    &types.AttributeValueMemberN{Value: strconv.FormatInt(rec.UserID, 10)},
		"userName":  &types.AttributeValueMemberS{Value: rec.UserName},
		"createdAt": &types.AttributeValueMemberS{Value: rec.CreatedAt.UTC().Format(time.RFC3339Nano)},
		"rating":    &types.AttributeValueMemberN{Value: strconv.Itoa(rec.Rating)},
	}
	for topicID, answer := range rec.Answers {
		item[topicID] = &types.AttributeValueMemberS{Value: answer}
	}
	return item
}

func itemToRecord(item map[string]types.AttributeValue) (domain.Record, error) {
	id, err := strAttr(item, "id")
	if err != nil {
		return domain.Record{}, err
	}
	userID, err := int64Attr(item, "userId")
	if err != nil {
		return domain.Record{}, err
	}
	userName, _ := strAttr(item, "userName") // allow empty
	createdAtRaw, err := strAttr(item, "createdAt")
	if err != nil {
		return domain.Record{}, err
	}
	createdAt, err := time.Parse(time.RFC3339Nano, createdAtRaw)
	if err != nil {
		return domain.Record{}, fmt.Errorf("repository: parse createdAt: %w", err)
	}
	rating, err := intAttr(item, "rating")
	if err != nil {
		return domain.Record{}, err
	}

	answers := map[string]string{}
	for key, v := range item {
		if reservedAttrs[key] {
			continue
		}
		if s, ok := v.(*types.AttributeValueMemberS); ok {
			answers[key] = s.Value
		}
	}

	return domain.Record{
		ID:        id,
		UserID:    userID,
		UserName:  userName,
		CreatedAt: createdAt,
		Answers:   answers,
		Rating:    rating,
	}, nil
}

// SessionClient stores the single in-progress session per user in the
// same table. It satisfies the engine's SessionStore.
type SessionClient struct {
	api       dynamodbAPI
	tableName string
}

// NewSessionClient creates a session store over the given table.
func NewSessionClient(api dynamodbAPI, tableName string) (*SessionClient, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &SessionClient{api: api, tableName: tableName}, nil
}

func (c *SessionClient) Get(ctx context.Context, userID int64) (domain.Session, bool, error) {
	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(c.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: userPK(userID)},
			"SK": &types.AttributeValueMemberS{Value: skSession},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return domain.Session{}, false, fmt.Errorf("repository: Get session: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return domain.Session{}, false, nil
	}
	sess, err := itemToSession(out.Item)
	if err != nil {
		return domain.Session{}, false, fmt.Errorf("repository: Get session unmarshal: %w", err)
	}
	return sess, true, nil
}

func (c *SessionClient) Put(ctx context.Context, sess domain.Session) error {
	if sess.UserID == 0 {
		return errors.New("repository: Put session: user id is required")
	}
	_, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.tableName),
		Item:      sessionItem(sess),
	})
	if err != nil {
		return fmt.Errorf("repository: Put session: %w", err)
	}
	return nil
}

func (c *SessionClient) Delete(ctx context.Context, userID int64) error {
	_, err := c.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(c.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: userPK(userID)},
			"SK": &types.AttributeValueMemberS{Value: skSession},
		},
	})
	if err != nil {
		return fmt.Errorf("repository: Delete session: %w", err)
	}
	return nil
}

// ttlValue returns a Unix timestamp 30 days in the future.
func ttlValue() int64 {
	return time.Now().Add(ttlDuration).Unix()
}

func sessionItem(sess domain.Session) map[string]types.AttributeValue {
	answers := make(map[string]types.AttributeValue, len(sess.Answers))
	for topicID, answer := range sess.Answers {
		answers[topicID] = &types.AttributeValueMemberS{Value: answer}
	}
	return map[string]types.AttributeValue{
		"PK":        &types.AttributeValueMemberS{Value: userPK(sess.UserID)},
		"SK":        &types.AttributeValueMemberS{Value: skSession},
		"userId":    &types.AttributeValueMemberN{Value: strconv.FormatInt(sess.UserID, 10)},
		"userName":  &types.AttributeValueMemberS{Value: sess.UserName},
		"cursor":    &types.AttributeValueMemberN{Value: strconv.Itoa(sess.Cursor)},
		"phase":     &types.AttributeValueMemberS{Value: string(sess.Phase)},
		"rating":    &types.AttributeValueMemberN{Value: strconv.Itoa(sess.Rating)},
		"answers":   &types.AttributeValueMemberM{Value: answers},
		"startedAt": &types.AttributeValueMemberS{Value: sess.StartedAt.UTC().Format(time.RFC3339Nano)},
		"updatedAt": &types.AttributeValueMemberS{Value: sess.UpdatedAt.UTC().Format(time.RFC3339Nano)},
		"ttl":       &types.AttributeValueMemberN{Value: strconv.FormatInt(ttlValue(), 10)},
	}
}

func itemToSession(item map[string]types.AttributeValue) (domain.Session, error) {
	userID, err := int64Attr(item, "userId")
	if err != nil {
		return domain.Session{}, err
	}
	userName, _ := strAttr(item, "userName") // allow empty
	cursor, err := intAttr(item, "cursor")
	if err != nil {
		return domain.Session{}, err
	}
	phase, err := strAttr(item, "phase")
	if err != nil {
		return domain.Session{}, err
	}
	rating, err := intAttr(item, "rating")
	if err != nil {
		return domain.Session{}, err
	}

	answers := map[string]string{}
	if v, ok := item["answers"]; ok {
		m, ok := v.(*types.AttributeValueMemberM)
		if !ok {
			return domain.Session{}, errors.New(`repository: attribute "answers" is not a map`)
		}
		for topicID, av := range m.Value {
			s, ok := av.(*types.AttributeValueMemberS)
			if !ok {
				return domain.Session{}, fmt.Errorf("repository: answer %q is not a string", topicID)
			}
			answers[topicID] = s.Value
		}
	}

	startedAt, err := timeAttr(item, "startedAt")
	if err != nil {
		return domain.Session{}, err
	}
	updatedAt, err := timeAttr(item, "updatedAt")
	if err != nil {
		return domain.Session{}, err
	}

	return domain.Session{
		UserID:    userID,
		UserName:  userName,
		Cursor:    cursor,
		Phase:     domain.Phase(phase),
		Answers:   answers,
		Rating:    rating,
		StartedAt: startedAt,
		UpdatedAt: updatedAt,
	}, nil
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

func int64Attr(item map[string]types.AttributeValue, key string) (int64, error) {
	v, ok := item[key]
	if !ok {
		return 0, fmt.Errorf("repository: missing attribute %q", key)
	}
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("repository: attribute %q is not a number", key)
	}
	parsed, err := strconv.ParseInt(n.Value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("repository: parse attribute %q: %w", key, err)
	}
	return parsed, nil
}

func timeAttr(item map[string]types.AttributeValue, key string) (time.Time, error) {
	raw, err := strAttr(item, key)
	if err != nil {
		return time.Time{}, err
	}
	ts, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("repository: parse attribute %q: %w", key, err)
	}
	return ts, nil
}
