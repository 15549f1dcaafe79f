package signer

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/shopspring/decimal"
)

// Instruction is an unsigned transfer instruction for the settlement layer.
// It is ephemeral: built per mutating operation, consumed once, and never
// replayed with the same sequence.
type Instruction struct {
	Sequence    uint64          `json:"sequence"`
	FeePrice    decimal.Decimal `json:"fee_price"`
	GasLimit    uint64          `json:"gas_limit"`
	Destination string          `json:"destination"`
	Value       decimal.Decimal `json:"value"`
	Payload     []byte          `json:"payload"`
}

// SignedInstruction is the wire form accepted by the settlement node.
type SignedInstruction struct {
	Instruction
	Account   string `json:"account"`
	Signature string `json:"signature"`
}

// Signer produces signed, serialized instructions for a single custodian
// identity. The signature is HMAC-SHA256 over the canonical instruction
// bytes, keyed with the custodian signing secret.
type Signer struct {
	account string
	secret  []byte
}

// New creates a signer for the custodian account.
func New(account string, secret []byte) (*Signer, error) {
	if account == "" {
		return nil, fmt.Errorf("signer: account is required")
	}
	if len(secret) == 0 {
		return nil, fmt.Errorf("signer: signing secret cannot be empty")
	}
	return &Signer{account: account, secret: secret}, nil
}

// Account returns the signing identity's settlement-layer address.
func (s *Signer) Account() string { return s.account }

// canonicalBytes serializes the instruction deterministically. Field order
// and encoding are part of the wire contract with the node.
func canonicalBytes(account string, in Instruction) []byte {
	return []byte(fmt.Sprintf("v1|%s|%d|%s|%d|%s|%s|%s",
		account,
		in.Sequence,
		in.FeePrice.String(),
		in.GasLimit,
		in.Destination,
		in.Value.String(),
		hex.EncodeToString(in.Payload),
	))
}

// Sign validates and signs an instruction, returning the submittable form.
func (s *Signer) Sign(in Instruction) (*SignedInstruction, error) {
	if in.Destination == "" {
		return nil, fmt.Errorf("signer: destination is required")
	}
	if in.FeePrice.Sign() < 0 || in.Value.Sign() < 0 {
		return nil, fmt.Errorf("signer: negative fee price or value")
	}
	if in.GasLimit == 0 {
		return nil, fmt.Errorf("signer: gas limit is required")
	}

	h := hmac.New(sha256.New, s.secret)
	h.Write(canonicalBytes(s.account, in))

	return &SignedInstruction{
		Instruction: in,
		Account:     s.account,
		Signature:   hex.EncodeToString(h.Sum(nil)),
	}, nil
}

// Verify checks a signature against the canonical instruction bytes.
// Used in tests and by the reconciliation tooling.
func (s *Signer) Verify(signed *SignedInstruction) bool {
	h := hmac.New(sha256.New, s.secret)
	h.Write(canonicalBytes(signed.Account, signed.Instruction))
	want, err := hex.DecodeString(signed.Signature)
	if err != nil {
		return false
	}
	return hmac.Equal(want, h.Sum(nil))
}
