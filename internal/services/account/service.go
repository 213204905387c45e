package account

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/TheMichaelB/pinsync/internal/events"
	"github.com/TheMichaelB/pinsync/internal/models"
	"github.com/TheMichaelB/pinsync/internal/state"
)

// Session is the remembered connection.
type Session struct {
	Account     string    `json:"account"`
	ChainID     string    `json:"chain_id,omitempty"`
	ConnectedAt time.Time `json:"connected_at"`
}

// Service holds the current account.
type Service struct {
	provider Provider
	store    state.Store
	logger   *events.Logger

	mu      sync.RWMutex
	current string
}

// NewService creates an account service. store may be nil.
func NewService(provider Provider, store state.Store, logger *events.Logger) *Service {
	return &Service{
		provider: provider,
		store:    store,
		logger:   logger.WithField("component", "account"),
	}
}

// Connect requests access and remembers the first account, lowercased.
func (s *Service) Connect(ctx context.Context) (string, error) {
	accounts, err := s.provider.RequestAccounts(ctx)
	if err != nil {
		return "", fmt.Errorf("connect: %w", err)
	}
	account := first(accounts)
	if account == "" {
		return "", fmt.Errorf("connect: %w", models.ErrNotConnected)
	}

	chainID, err := s.provider.ChainID(ctx)
	if err != nil {
		s.logger.WithError(err).Debug("Chain id unavailable")
	}

	s.set(account, chainID)
	s.logger.WithFields(map[string]interface{}{
		"account":  account,
		"chain_id": chainID,
	}).Info("Account connected")
	return account, nil
}

// Restore reconnects the remembered account if the provider still
// authorises it. Otherwise the remembered session is forgotten.
func (s *Service) Restore(ctx context.Context) (string, error) {
	if s.store == nil {
		return "", nil
	}

	var session Session
	if err := state.GetJSON(s.store, state.KeyAccount, &session); err != nil {
		if errors.Is(err, state.ErrNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("restore account: %w", err)
	}

	accounts, err := s.provider.Accounts(ctx)
	if err != nil {
		return "", fmt.Errorf("restore account: %w", err)
	}
	for _, a := range accounts {
		if strings.EqualFold(a, session.Account) {
			s.mu.Lock()
			s.current = strings.ToLower(session.Account)
			s.mu.Unlock()
			s.logger.WithField("account", s.Current()).Debug("Account restored")
			return s.Current(), nil
		}
	}

	s.logger.WithField("account", session.Account).Info("Remembered account no longer authorised")
	return "", s.Disconnect()
}

// Disconnect forgets the current account.
func (s *Service) Disconnect() error {
	s.mu.Lock()
	s.current = ""
	s.mu.Unlock()

	if s.store == nil {
		return nil
	}
	if err := s.store.Delete(state.KeyAccount); err != nil && !errors.Is(err, state.ErrNotFound) {
		return fmt.Errorf("forget account: %w", err)
	}
	return nil
}

// Current returns the connected account, or "".
func (s *Service) Current() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Require returns the connected account or models.ErrNotConnected.
func (s *Service) Require() (string, error) {
	if account := s.Current(); account != "" {
		return account, nil
	}
	return "", models.ErrNotConnected
}

// Watch applies account-change events until ctx is done or the provider
// closes its stream. onChange, if set, sees every new value; "" means
// disconnected.
func (s *Service) Watch(ctx context.Context, onChange func(account string)) {
	changes := s.provider.AccountChanges()
	for {
		select {
		case <-ctx.Done():
			return
		case accounts, ok := <-changes:
			if !ok {
				return
			}
			account := first(accounts)
			if account == "" {
				if err := s.Disconnect(); err != nil {
					s.logger.WithError(err).Warn("Failed to forget account")
				}
				s.logger.Info("Wallet disconnected")
			} else {
				s.set(account, "")
				s.logger.WithField("account", account).Info("Account changed")
			}
			if onChange != nil {
				onChange(account)
			}
		}
	}
}

func (s *Service) set(account, chainID string) {
	s.mu.Lock()
	s.current = account
	s.mu.Unlock()

	if s.store == nil {
		return
	}
	session := Session{Account: account, ChainID: chainID, ConnectedAt: time.Now().UTC()}
	if err := state.SetJSON(s.store, state.KeyAccount, session); err != nil {
		s.logger.WithError(err).Warn("Failed to remember account")
	}
}

func first(accounts []string) string {
	for _, a := range accounts {
		if a = strings.TrimSpace(a); a != "" {
			return strings.ToLower(a)
		}
	}
	return ""
}
