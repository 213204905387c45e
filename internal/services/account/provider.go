// Package account tracks the connected wallet account.
package account

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/TheMichaelB/pinsync/internal/config"
	"github.com/TheMichaelB/pinsync/internal/events"
	"github.com/TheMichaelB/pinsync/internal/transport"
)

// Provider is a wallet that can hand out accounts.
type Provider interface {
	// RequestAccounts asks the user for access. It fails with
	// models.ErrUserRejected when the user declines.
	RequestAccounts(ctx context.Context) ([]string, error)
	// Accounts lists already authorised accounts without prompting.
	Accounts(ctx context.Context) ([]string, error)
	ChainID(ctx context.Context) (string, error)
	// AccountChanges delivers the new account list on every change. An
	// empty list means the wallet disconnected.
	AccountChanges() <-chan []string
	Close() error
}

// NewProvider builds the provider named in cfg.
func NewProvider(ctx context.Context, cfg config.WalletConfig, token string, logger *events.Logger) (Provider, error) {
	switch cfg.Provider {
	case "", "static":
		return NewStaticProvider(cfg.Account), nil
	case "ws":
		return DialWSProvider(ctx, cfg.URL, token, logger)
	default:
		return nil, fmt.Errorf("unknown wallet provider: %s", cfg.Provider)
	}
}

// StaticProvider serves one fixed account, taken from config or a flag.
type StaticProvider struct {
	account string
	changes chan []string
	once    sync.Once
}

// NewStaticProvider creates a provider for account. An empty account
// yields no accounts.
func NewStaticProvider(account string) *StaticProvider {
	return &StaticProvider{
		account: strings.TrimSpace(account),
		changes: make(chan []string),
	}
}

func (p *StaticProvider) RequestAccounts(ctx context.Context) ([]string, error) {
	return p.Accounts(ctx)
}

func (p *StaticProvider) Accounts(ctx context.Context) ([]string, error) {
	if p.account == "" {
		return []string{}, nil
	}
	return []string{p.account}, nil
}

func (p *StaticProvider) ChainID(ctx context.Context) (string, error) {
	return "", nil
}

func (p *StaticProvider) AccountChanges() <-chan []string {
	return p.changes
}

func (p *StaticProvider) Close() error {
	p.once.Do(func() { close(p.changes) })
	return nil
}

// Wallet JSON-RPC methods.
const (
	methodRequestAccounts = "eth_requestAccounts"
	methodAccounts        = "eth_accounts"
	methodChainID         = "eth_chainId"
	eventAccountsChanged  = "accountsChanged"
)

// WSProvider talks to a wallet bridge over a WebSocket JSON-RPC session.
type WSProvider struct {
	client  *transport.WalletClient
	changes chan []string
	logger  *events.Logger
}

// DialWSProvider connects to the wallet bridge at url.
func DialWSProvider(ctx context.Context, url, token string, logger *events.Logger) (*WSProvider, error) {
	client := transport.NewWalletClient(url, token, logger)
	if err := client.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connect wallet: %w", err)
	}
	return NewWSProvider(client, logger), nil
}

// NewWSProvider wraps a connected client.
func NewWSProvider(client *transport.WalletClient, logger *events.Logger) *WSProvider {
	p := &WSProvider{
		client:  client,
		changes: make(chan []string, 4),
		logger:  logger.WithField("component", "ws_provider"),
	}
	go p.forward()
	return p
}

func (p *WSProvider) RequestAccounts(ctx context.Context) ([]string, error) {
	var accounts []string
	if err := p.client.Call(ctx, methodRequestAccounts, nil, &accounts); err != nil {
		return nil, fmt.Errorf("request accounts: %w", err)
	}
	return accounts, nil
}

func (p *WSProvider) Accounts(ctx context.Context) ([]string, error) {
	var accounts []string
	if err := p.client.Call(ctx, methodAccounts, nil, &accounts); err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	return accounts, nil
}

func (p *WSProvider) ChainID(ctx context.Context) (string, error) {
	var id string
	if err := p.client.Call(ctx, methodChainID, nil, &id); err != nil {
		return "", fmt.Errorf("chain id: %w", err)
	}
	return id, nil
}

func (p *WSProvider) AccountChanges() <-chan []string {
	return p.changes
}

func (p *WSProvider) Close() error {
	return p.client.Close()
}

// forward turns accountsChanged notifications into account lists until the
// client's notification channel closes.
func (p *WSProvider) forward() {
	defer close(p.changes)
	for n := range p.client.Notifications() {
		if n.Method != eventAccountsChanged {
			continue
		}
		accounts, err := decodeAccounts(n.Params)
		if err != nil {
			p.logger.WithError(err).Warn("Malformed accountsChanged event")
			continue
		}
		select {
		case p.changes <- accounts:
		default:
			p.logger.Warn("Account change dropped, no reader")
		}
	}
}

// decodeAccounts accepts ["0x.."] and the wrapped [["0x.."]] form.
func decodeAccounts(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 {
		return []string{}, nil
	}
	var flat []string
	if err := json.Unmarshal(raw, &flat); err == nil {
		return flat, nil
	}
	var wrapped [][]string
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, err
	}
	if len(wrapped) == 0 {
		return []string{}, nil
	}
	return wrapped[0], nil
}
