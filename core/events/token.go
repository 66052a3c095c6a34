package events

import (
	"strconv"

	"vaultcore/crypto"
)

const (
	// TypeTokenTransferred covers user-to-user moves of either asset.
	TypeTokenTransferred = "token.transferred"
	// TypeTokenMinted is emitted for authority-approved receipt issuance.
	TypeTokenMinted = "token.minted"
	// TypeTokenBurned is emitted when receipts are destroyed on redemption.
	TypeTokenBurned = "token.burned"
)

type TokenTransferred struct {
	Asset  string
	From   crypto.Address
	To     crypto.Address
	Amount uint64
}

func (TokenTransferred) EventType() string { return TypeTokenTransferred }

func (e TokenTransferred) Event() *Envelope {
	return &Envelope{
		Type: TypeTokenTransferred,
		Attributes: map[string]string{
			"asset":  e.Asset,
			"from":   e.From.String(),
			"to":     e.To.String(),
			"amount": strconv.FormatUint(e.Amount, 10),
		},
	}
}

type TokenMinted struct {
	Asset     string
	To        crypto.Address
	Amount    uint64
	Authority crypto.Address
}

func (TokenMinted) EventType() string { return TypeTokenMinted }

func (e TokenMinted) Event() *Envelope {
	return &Envelope{
		Type: TypeTokenMinted,
		Attributes: map[string]string{
			"asset":     e.Asset,
			"to":        e.To.String(),
			"amount":    strconv.FormatUint(e.Amount, 10),
			"authority": e.Authority.String(),
		},
	}
}

type TokenBurned struct {
	Asset  string
	From   crypto.Address
	Amount uint64
}

func (TokenBurned) EventType() string { return TypeTokenBurned }

func (e TokenBurned) Event() *Envelope {
	return &Envelope{
		Type: TypeTokenBurned,
		Attributes: map[string]string{
			"asset":  e.Asset,
			"from":   e.From.String(),
			"amount": strconv.FormatUint(e.Amount, 10),
		},
	}
}
