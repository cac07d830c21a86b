package userop

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	ErrSignatureLength = errors.New("invalid signature length")
	ErrSignatureV      = errors.New("invalid signature recovery id")
	ErrSignatureValues = errors.New("invalid signature r or s value")
	ErrZeroSigner      = errors.New("signature recovers to the zero address")
)

// ValidationStatus is the outcome an account reports for an operation.
type ValidationStatus uint8

const (
	ValidationSucceeded ValidationStatus = 0
	ValidationFailed    ValidationStatus = 1
)

func (s ValidationStatus) String() string {
	switch s {
	case ValidationSucceeded:
		return "succeeded"
	case ValidationFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// SignedMessageDigest applies the EIP-191 personal-message transform
// ("\x19Ethereum Signed Message:\n32" || hash) and hashes the result.
func SignedMessageDigest(opHash common.Hash) common.Hash {
	return common.BytesToHash(accounts.TextHash(opHash.Bytes()))
}

// RecoverSigner returns the address that produced sig over digest.
//
// Accepted encodings are 65-byte r||s||v with v in {0, 1, 27, 28} and 64-byte
// EIP-2098 compact r||vs. High-s signatures are rejected.
func RecoverSigner(digest common.Hash, sig []byte) (common.Address, error) {
	rsv, err := normalizeSignature(sig)
	if err != nil {
		return common.Address{}, err
	}

	pub, err := crypto.SigToPub(digest.Bytes(), rsv)
	if err != nil {
		return common.Address{}, err
	}
	signer := crypto.PubkeyToAddress(*pub)
	if signer == (common.Address{}) {
		return common.Address{}, ErrZeroSigner
	}
	return signer, nil
}

// normalizeSignature converts sig to the 65-byte r||s||v form with v in {0, 1}.
func normalizeSignature(sig []byte) ([]byte, error) {
	rsv := make([]byte, crypto.SignatureLength)

	switch len(sig) {
	case crypto.SignatureLength:
		copy(rsv, sig)
		if rsv[64] >= 27 {
			rsv[64] -= 27
		}
	case crypto.SignatureLength - 1:
		copy(rsv[:32], sig[:32])
		copy(rsv[32:64], sig[32:64])
		rsv[64] = sig[32] >> 7
		rsv[32] &= 0x7f
	default:
		return nil, ErrSignatureLength
	}

	v := rsv[64]
	if v > 1 {
		return nil, ErrSignatureV
	}
	r := new(big.Int).SetBytes(rsv[:32])
	s := new(big.Int).SetBytes(rsv[32:64])
	if !crypto.ValidateSignatureValues(v, r, s, true) {
		return nil, ErrSignatureValues
	}
	return rsv, nil
}
