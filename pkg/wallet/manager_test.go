package wallet

import (
	"fmt"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memRepo struct {
	accounts map[string]*Account
}

func newMemRepo() *memRepo { return &memRepo{accounts: map[string]*Account{}} }

func (r *memRepo) SaveAccount(acc *Account) error {
	r.accounts[acc.WalletAddress] = acc
	return nil
}

func (r *memRepo) LoadAccount(walletAddress string) (*Account, error) {
	return r.accounts[strings.ToLower(walletAddress)], nil
}

func TestManagerCreateIsIdempotent(t *testing.T) {
	m := NewManager(newMemRepo(), "test-secret", zap.NewNop().Sugar())

	first, err := m.Create("0xAbCd")
	require.NoError(t, err)
	require.Equal(t, "0xabcd", first.WalletAddress)
	require.True(t, first.AutoExecute)

	second, err := m.Create("0xABCD")
	require.NoError(t, err)
	require.Equal(t, first.AgentAddress, second.AgentAddress)
}

func TestManagerSigningKeyMatchesAgentAddress(t *testing.T) {
	m := NewManager(newMemRepo(), "test-secret", zap.NewNop().Sugar())

	acc, err := m.Create("0xabcd")
	require.NoError(t, err)

	key, err := m.SigningKey("0xabcd")
	require.NoError(t, err)
	require.Equal(t, acc.AgentAddress, strings.ToLower(crypto.PubkeyToAddress(key.PublicKey).Hex()))
}

func TestManagerSigningKeyNoAccount(t *testing.T) {
	m := NewManager(newMemRepo(), "test-secret", zap.NewNop().Sugar())

	key, err := m.SigningKey("0xmissing")
	require.NoError(t, err)
	require.Nil(t, key)
}

func TestManagerUnsealsLegacyCiphertext(t *testing.T) {
	priv, err := crypto.GenerateKey()
	require.NoError(t, err)
	privHex := fmt.Sprintf("%x", crypto.FromECDSA(priv))

	ek, err := EncryptKey("test-secret", privHex)
	require.NoError(t, err)

	// A record written by the old format carries a colon-delimited
	// ciphertext and no envelope.
	repo := newMemRepo()
	require.NoError(t, repo.SaveAccount(&Account{
		WalletAddress:    "0xabcd",
		AgentAddress:     strings.ToLower(crypto.PubkeyToAddress(priv.PublicKey).Hex()),
		LegacyCiphertext: ek.Salt + ":" + ek.IV + ":" + ek.Ciphertext,
	}))

	m := NewManager(repo, "test-secret", zap.NewNop().Sugar())
	exported, err := m.ExportKey("0xabcd")
	require.NoError(t, err)
	require.Equal(t, privHex, exported)
}
