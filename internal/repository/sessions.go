package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"dinsos-bot/internal/domain"
)

// DefaultSessionTTL is how long an untouched registration session survives.
const DefaultSessionTTL = 24 * time.Hour

// SessionStore keeps registration sessions next to the sender's other items.
// Items carry a ttl attribute (unix seconds) for DynamoDB expiry; Get also
// ignores items past their ttl because expiry deletion is lazy.
type SessionStore struct {
	client *Client
	ttl    time.Duration
}

func NewSessionStore(client *Client, ttl time.Duration) (*SessionStore, error) {
	if client == nil {
		return nil, errors.New("repository: client must not be nil")
	}
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionStore{client: client, ttl: ttl}, nil
}

func (s *SessionStore) Get(ctx context.Context, sender string) (*domain.RegistrationSession, error) {
	item, err := s.client.getItem(ctx, userPK(sender), skSession)
	if err != nil {
		return nil, fmt.Errorf("repository: GetSession get item: %w", err)
	}
	if item == nil {
		return nil, nil
	}
	expires, err := int64Attr(item, "ttl")
	if err != nil {
		return nil, fmt.Errorf("repository: GetSession decode: %w", err)
	}
	if s.client.clock.Now().Unix() >= expires {
		return nil, nil
	}
	raw, err := strAttr(item, "session")
	if err != nil {
		return nil, fmt.Errorf("repository: GetSession decode: %w", err)
	}
	var sess domain.RegistrationSession
	if err := json.Unmarshal([]byte(raw), &sess); err != nil {
		return nil, fmt.Errorf("repository: GetSession unmarshal: %w", err)
	}
	return &sess, nil
}

func (s *SessionStore) Put(ctx context.Context, sess domain.RegistrationSession) error {
	if sess.Sender == "" {
		return errors.New("repository: session sender is required")
	}
	raw, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("repository: PutSession marshal: %w", err)
	}
	item := key(userPK(sess.Sender), skSession)
	item["session"] = strVal(string(raw))
	item["ttl"] = numVal(s.client.clock.Now().Add(s.ttl).Unix())

	_, err = s.client.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.client.tableName),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("repository: PutSession: %w", err)
	}
	return nil
}

func (s *SessionStore) Delete(ctx context.Context, sender string) error {
	_, err := s.client.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.client.tableName),
		Key:       key(userPK(sender), skSession),
	})
	if err != nil {
		return fmt.Errorf("repository: DeleteSession: %w", err)
	}
	return nil
}
