package signer

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testInstruction() Instruction {
	return Instruction{
		Sequence:    7,
		FeePrice:    decimal.NewFromInt(20000000000),
		GasLimit:    300000,
		Destination: "0x345ca3e014aaf5dca488057592ee47305d9b3e10",
		Value:       decimal.Zero,
		Payload:     []byte(`{"op":"register_token"}`),
	}
}

func TestNewRequiresAccountAndSecret(t *testing.T) {
	_, err := New("", []byte("secret"))
	assert.Error(t, err)

	_, err = New("0xcustodian", nil)
	assert.Error(t, err)

	s, err := New("0xcustodian", []byte("secret"))
	require.NoError(t, err)
	assert.Equal(t, "0xcustodian", s.Account())
}

func TestSignIsDeterministic(t *testing.T) {
	s, err := New("0xcustodian", []byte("secret"))
	require.NoError(t, err)

	a, err := s.Sign(testInstruction())
	require.NoError(t, err)
	b, err := s.Sign(testInstruction())
	require.NoError(t, err)

	assert.Equal(t, a.Signature, b.Signature)
	assert.Equal(t, "0xcustodian", a.Account)
	assert.NotEmpty(t, a.Signature)
}

func TestSignatureCoversEveryField(t *testing.T) {
	s, err := New("0xcustodian", []byte("secret"))
	require.NoError(t, err)

	base, err := s.Sign(testInstruction())
	require.NoError(t, err)

	mutations := map[string]func(*Instruction){
		"sequence":    func(in *Instruction) { in.Sequence++ },
		"fee_price":   func(in *Instruction) { in.FeePrice = in.FeePrice.Add(decimal.NewFromInt(1)) },
		"gas_limit":   func(in *Instruction) { in.GasLimit++ },
		"destination": func(in *Instruction) { in.Destination = "0x0000000000000000000000000000000000000001" },
		"value":       func(in *Instruction) { in.Value = decimal.NewFromInt(1) },
		"payload":     func(in *Instruction) { in.Payload = []byte(`{"op":"payout"}`) },
	}

	for name, mutate := range mutations {
		in := testInstruction()
		mutate(&in)
		signed, err := s.Sign(in)
		require.NoError(t, err, name)
		assert.NotEqual(t, base.Signature, signed.Signature, "field %s not covered by signature", name)
	}
}

func TestSignRejectsInvalidInstructions(t *testing.T) {
	s, err := New("0xcustodian", []byte("secret"))
	require.NoError(t, err)

	in := testInstruction()
	in.Destination = ""
	_, err = s.Sign(in)
	assert.Error(t, err)

	in = testInstruction()
	in.FeePrice = decimal.NewFromInt(-1)
	_, err = s.Sign(in)
	assert.Error(t, err)

	in = testInstruction()
	in.GasLimit = 0
	_, err = s.Sign(in)
	assert.Error(t, err)
}

func TestVerify(t *testing.T) {
	s, err := New("0xcustodian", []byte("secret"))
	require.NoError(t, err)

	signed, err := s.Sign(testInstruction())
	require.NoError(t, err)
	assert.True(t, s.Verify(signed))

	tampered := *signed
	tampered.Sequence++
	assert.False(t, s.Verify(&tampered))

	other, err := New("0xcustodian", []byte("different"))
	require.NoError(t, err)
	assert.False(t, other.Verify(signed))

	badHex := *signed
	badHex.Signature = "zz"
	assert.False(t, s.Verify(&badHex))
}
