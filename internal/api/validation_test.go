package api

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestMintRequestValidate(t *testing.T) {
	valid := MintRequest{
		DestinationAddress: customer,
		Amount:             decimal.RequireFromString("0.2"),
	}
	assert.NoError(t, valid.Validate())

	noAddr := valid
	noAddr.DestinationAddress = "   "
	assert.Error(t, noAddr.Validate())

	zeroAmount := valid
	zeroAmount.Amount = decimal.Zero
	assert.Error(t, zeroAmount.Validate())

	negative := valid
	negative.Amount = decimal.NewFromInt(-1)
	assert.Error(t, negative.Validate())
}

func TestExchangeRequestValidate(t *testing.T) {
	assert.NoError(t, ExchangeRequest{TokenID: 1, OwnerAddress: customer}.Validate())
	assert.Error(t, ExchangeRequest{TokenID: 0, OwnerAddress: customer}.Validate())
	assert.Error(t, ExchangeRequest{TokenID: 1}.Validate())
}

func TestRevokeRequestValidate(t *testing.T) {
	assert.NoError(t, RevokeRequest{TokenID: 1}.Validate())
	assert.Error(t, RevokeRequest{TokenID: 0}.Validate())
}
