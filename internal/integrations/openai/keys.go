package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// KeySource yields the bearer token for upstream calls.
type KeySource interface {
	APIKey(ctx context.Context) (string, error)
}

// StaticKey is a key supplied directly, for example from the environment.
type StaticKey string

func (k StaticKey) APIKey(context.Context) (string, error) {
	key := strings.TrimSpace(string(k))
	if key == "" {
		return "", errors.New("openai: API token is empty")
	}
	return key, nil
}

// Getter reads one parameter value.
type Getter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

// tokenPayload is the expected JSON shape stored in SSM for the API token.
type tokenPayload struct {
	Token string `json:"token"`
}

// ParamStoreKey loads a JSON {"token": "..."} value from Parameter Store on
// first use and reuses the result, including a failure, for the lifetime of
// the process.
type ParamStoreKey struct {
	getter Getter
	name   string

	once sync.Once
	key  string
	err  error
}

func NewParamStoreKey(g Getter, name string) (*ParamStoreKey, error) {
	if g == nil {
		return nil, errors.New("openai: paramstore getter must not be nil")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("openai: token parameter name must not be empty")
	}
	return &ParamStoreKey{getter: g, name: name}, nil
}

func (k *ParamStoreKey) APIKey(ctx context.Context) (string, error) {
	k.once.Do(func() {
		k.key, k.err = fetchAPIKeyFromParamStore(ctx, k.getter, k.name)
	})
	return k.key, k.err
}

func fetchAPIKeyFromParamStore(ctx context.Context, getter Getter, name string) (string, error) {
	raw, err := getter.GetParameter(ctx, name)
	if err != nil {
		return "", fmt.Errorf("openai: fetch token from paramstore: %w", err)
	}
	var tp tokenPayload
	if err := json.Unmarshal([]byte(raw), &tp); err != nil {
		return "", fmt.Errorf("openai: unmarshal paramstore token value as JSON: %w", err)
	}
	if tp.Token == "" {
		return "", errors.New("openai: API token is empty")
	}
	return tp.Token, nil
}
