// Package keys derives owner and operator keys from a mnemonic and signs
// operation hashes with them.
package keys

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/tyler-smith/go-bip39"
	"golang.org/x/crypto/hkdf"

	"github.com/R3E-Network/smartaccount/internal/userop"
)

// DevMnemonic is the well-known development mnemonic used by local chains.
// Never fund keys derived from it on a public network.
const DevMnemonic = "test test test test test test test test test test test junk"

const (
	// LabelOwner derives the account owner key.
	LabelOwner = "owner"
	// LabelOperator derives the operator (bundler) key.
	LabelOperator = "operator"

	hkdfSalt     = "smartaccount/keys/v1"
	maxKeyTrials = 8
)

var (
	ErrInvalidMnemonic = errors.New("invalid mnemonic")
	ErrLabelRequired   = errors.New("derivation label is required")
)

// NewMnemonic creates a fresh 24-word mnemonic.
func NewMnemonic() (string, error) {
	entropy, err := bip39.NewEntropy(256)
	if err != nil {
		return "", err
	}
	return bip39.NewMnemonic(entropy)
}

// Derive returns the secp256k1 key for label under mnemonic. The same inputs
// always produce the same key.
func Derive(mnemonic, label string) (*ecdsa.PrivateKey, error) {
	mnemonic = strings.TrimSpace(mnemonic)
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, ErrInvalidMnemonic
	}
	label = strings.TrimSpace(label)
	if label == "" {
		return nil, ErrLabelRequired
	}

	seed := bip39.NewSeed(mnemonic, "")
	r := hkdf.New(sha256.New, seed, []byte(hkdfSalt), []byte(label))

	buf := make([]byte, 32)
	for i := 0; i < maxKeyTrials; i++ {
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, fmt.Errorf("expand key material: %w", err)
		}
		// Rejects zero and values >= the curve order; draw again.
		if key, err := crypto.ToECDSA(buf); err == nil {
			return key, nil
		}
	}
	return nil, fmt.Errorf("derive key %q: no valid scalar after %d trials", label, maxKeyTrials)
}

// Address returns the address controlled by key.
func Address(key *ecdsa.PrivateKey) common.Address {
	return crypto.PubkeyToAddress(key.PublicKey)
}

// SignOperationHash signs the EIP-191 digest of opHash and returns a 65-byte
// r||s||v signature with v in {27, 28}.
func SignOperationHash(key *ecdsa.PrivateKey, opHash common.Hash) ([]byte, error) {
	digest := userop.SignedMessageDigest(opHash)
	sig, err := crypto.Sign(digest.Bytes(), key)
	if err != nil {
		return nil, fmt.Errorf("sign operation: %w", err)
	}
	sig[64] += 27
	return sig, nil
}

// SignOperation computes op's hash for orchestrator and chainID, signs it and
// stores the signature on op.
func SignOperation(key *ecdsa.PrivateKey, op *userop.Operation, orchestrator common.Address, chainID *big.Int) (common.Hash, error) {
	opHash, err := userop.Hash(op, orchestrator, chainID)
	if err != nil {
		return common.Hash{}, fmt.Errorf("hash operation: %w", err)
	}
	sig, err := SignOperationHash(key, opHash)
	if err != nil {
		return common.Hash{}, err
	}
	op.Signature = sig
	return opHash, nil
}

// Compact converts a 65-byte signature to the 64-byte EIP-2098 form.
func Compact(sig []byte) ([]byte, error) {
	if len(sig) != crypto.SignatureLength {
		return nil, userop.ErrSignatureLength
	}
	v := sig[64]
	if v >= 27 {
		v -= 27
	}
	if v > 1 {
		return nil, userop.ErrSignatureV
	}
	out := make([]byte, 64)
	copy(out, sig[:64])
	if v == 1 {
		out[32] |= 0x80
	}
	return out, nil
}
