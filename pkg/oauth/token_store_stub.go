package oauth

import (
	"context"
	"errors"
	"sync"
)

type TokenStoreStub struct {
	mu      sync.RWMutex
	token   *Token
	saves   []Token
	saveErr error
}

func NewTokenStoreStub() *TokenStoreStub {
	return &TokenStoreStub{}
}

func (s *TokenStoreStub) Load(_ context.Context) (*Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.token == nil {
		return nil, nil
	}
	token := *s.token
	return &token, nil
}

func (s *TokenStoreStub) Save(_ context.Context, token Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.token = &token
	s.saves = append(s.saves, token)
	return nil
}

// Helper methods for test setup

func (s *TokenStoreStub) SetToken(token Token) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = &token
}

func (s *TokenStoreStub) SetSaveError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveErr = err
}

func (s *TokenStoreStub) Saves() []Token {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]Token, len(s.saves))
	copy(result, s.saves)
	return result
}

var ErrStoreTestError = errors.New("token store test error")
