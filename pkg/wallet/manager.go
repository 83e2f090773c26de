// Package wallet manages delegated agent wallets: per-user signing
// identities generated by the platform and sealed at rest, used by the
// executor to sign trades on the user's behalf.
package wallet

import (
	"crypto/ecdsa"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"
)

// Account links a user wallet to its delegated agent identity.
type Account struct {
	WalletAddress string       `json:"walletAddress"` // user's wallet, lowercased
	AgentAddress  string       `json:"agentAddress"`  // delegated signer, lowercased
	AutoExecute   bool         `json:"autoExecute"`
	RiskCheck     bool         `json:"riskCheck"` // opt-in advisory veto before execution
	KeyEnvelope   EncryptedKey `json:"keyEnvelope"`
	// LegacyCiphertext holds the colon-delimited sealed key written by
	// older records; read-only, converted on unseal.
	LegacyCiphertext string    `json:"encryptedKey,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
}

// Repo is the persistence surface the manager needs.
type Repo interface {
	SaveAccount(acc *Account) error
	LoadAccount(walletAddress string) (*Account, error) // nil when absent
}

type Manager struct {
	repo   Repo
	secret string
	log    *zap.SugaredLogger
}

func NewManager(repo Repo, secret string, log *zap.SugaredLogger) *Manager {
	if secret == "" || secret == "change-me" {
		log.Warn("weak agent key encryption secret; set AGENT_ENCRYPTION_KEY for production")
	}
	return &Manager{repo: repo, secret: secret, log: log}
}

// Create generates and seals a fresh agent key for a user wallet.
// Idempotent: an existing account is returned unchanged.
func (m *Manager) Create(walletAddress string) (*Account, error) {
	wallet := strings.ToLower(walletAddress)
	if existing, err := m.repo.LoadAccount(wallet); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, nil
	}

	priv, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("generate agent key: %w", err)
	}
	privHex := fmt.Sprintf("%x", crypto.FromECDSA(priv))
	envelope, err := EncryptKey(m.secret, privHex)
	if err != nil {
		return nil, fmt.Errorf("seal agent key: %w", err)
	}

	acc := &Account{
		WalletAddress: wallet,
		AgentAddress:  strings.ToLower(crypto.PubkeyToAddress(priv.PublicKey).Hex()),
		AutoExecute:   true,
		KeyEnvelope:   envelope,
		CreatedAt:     time.Now(),
	}
	if err := m.repo.SaveAccount(acc); err != nil {
		return nil, err
	}
	m.log.Infow("agent_account_created", "wallet", wallet, "agent", acc.AgentAddress)
	return acc, nil
}

func (m *Manager) Get(walletAddress string) (*Account, error) {
	return m.repo.LoadAccount(strings.ToLower(walletAddress))
}

// SigningKey unseals the agent private key for a user wallet.
// Returns (nil, nil) when no account exists.
func (m *Manager) SigningKey(walletAddress string) (*ecdsa.PrivateKey, error) {
	acc, err := m.Get(walletAddress)
	if err != nil || acc == nil {
		return nil, err
	}
	privHex, err := m.unseal(acc)
	if err != nil {
		return nil, fmt.Errorf("unseal agent key: %w", err)
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse agent key: %w", err)
	}
	return key, nil
}

// ExportKey returns the raw hex private key. Callers gate this behind
// an ownership proof.
func (m *Manager) ExportKey(walletAddress string) (string, error) {
	acc, err := m.Get(walletAddress)
	if err != nil {
		return "", err
	}
	if acc == nil {
		return "", nil
	}
	return m.unseal(acc)
}

// unseal decrypts the account's key envelope, converting legacy
// colon-delimited ciphertexts on the fly.
func (m *Manager) unseal(acc *Account) (string, error) {
	envelope := acc.KeyEnvelope
	if envelope.Version == 0 && acc.LegacyCiphertext != "" {
		converted, err := ImportLegacy(acc.LegacyCiphertext)
		if err != nil {
			return "", err
		}
		envelope = converted
	}
	return DecryptKey(m.secret, envelope)
}

func (m *Manager) SetRiskCheck(walletAddress string, enabled bool) (*Account, error) {
	acc, err := m.Get(walletAddress)
	if err != nil {
		return nil, err
	}
	if acc == nil {
		return nil, fmt.Errorf("account not found")
	}
	acc.RiskCheck = enabled
	if err := m.repo.SaveAccount(acc); err != nil {
		return nil, err
	}
	return acc, nil
}
