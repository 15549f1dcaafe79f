package api

import (
	"fmt"
	"strings"
)

func (r MintRequest) Validate() error {
	if strings.TrimSpace(r.DestinationAddress) == "" {
		return fmt.Errorf("destinationAddress is required")
	}
	if r.Amount.Sign() <= 0 {
		return fmt.Errorf("amount must be greater than 0")
	}
	return nil
}

func (r ExchangeRequest) Validate() error {
	if r.TokenID == 0 {
		return fmt.Errorf("tokenId is required")
	}
	if strings.TrimSpace(r.OwnerAddress) == "" {
		return fmt.Errorf("ownerAddress is required")
	}
	return nil
}

func (r RevokeRequest) Validate() error {
	if r.TokenID == 0 {
		return fmt.Errorf("tokenId is required")
	}
	return nil
}
