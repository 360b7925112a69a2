// Package payment verifies x402 payment authorizations.
//
// An X-Payment header carries a base64-encoded, EIP-3009-style
// TransferWithAuthorization signed off-chain by the payer's wallet. The
// verifier checks it locally (EIP-712 signature recovery plus field
// validation) without contacting any network. Settlement never happens
// here: acceptance only proves the payer signed a valid transfer
// authorization for the required amount.
package payment

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethmath "github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"vault-operator/internal/config"
	"vault-operator/pkg/types"
)

// EIP-712 domain of the payment asset's transferWithAuthorization support.
const (
	domainName    = "Wrapped CRO"
	domainVersion = "1"

	schemeExact    = "exact"
	networkCronosT = "cronos-testnet"
)

// Verifier validates payment authorization headers against the configured
// asset and amount. Safe for concurrent use.
type Verifier struct {
	asset   common.Address
	payTo   common.Address
	amount  *big.Int
	timeout int
	descr   string
	chainID int64
	nonces  *nonceLedger
	logger  *slog.Logger
}

// NewVerifier builds a Verifier from wallet + payment config.
func NewVerifier(wallet config.WalletConfig, pay config.PaymentConfig, logger *slog.Logger) (*Verifier, error) {
	amount, ok := new(big.Int).SetString(pay.Amount, 10)
	if !ok || amount.Sign() <= 0 {
		return nil, fmt.Errorf("invalid payment amount %q", pay.Amount)
	}
	return &Verifier{
		asset:   common.HexToAddress(wallet.AssetAddress),
		payTo:   common.HexToAddress(wallet.VaultAddress),
		amount:  amount,
		timeout: pay.TimeoutSeconds,
		descr:   pay.Description,
		chainID: wallet.ChainID,
		nonces:  newNonceLedger(),
		logger:  logger.With("component", "payment"),
	}, nil
}

// Requirements returns the payment terms for one lock attempt. The caller
// renders them into the 402 response body.
func (v *Verifier) Requirements() types.PaymentRequirements {
	return types.PaymentRequirements{
		Scheme:            schemeExact,
		Network:           networkCronosT,
		PayTo:             v.payTo.Hex(),
		Asset:             v.asset.Hex(),
		MaxAmountRequired: v.amount.String(),
		MaxTimeoutSeconds: v.timeout,
		Description:       v.descr,
	}
}

// ParseHeader decodes the base64 JSON wire form of an X-Payment header.
func ParseHeader(header string) (*types.PaymentHeader, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(header))
	if err != nil {
		return nil, types.NewValidationError("malformed payment header")
	}
	var decoded types.PaymentHeader
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, types.NewValidationError("malformed payment header")
	}
	return &decoded, nil
}

// Verify checks one payment header and consumes its nonce on success.
// Every rejection is a *types.ValidationError whose reason is surfaced to
// the caller verbatim.
func (v *Verifier) Verify(header string, now time.Time) (*types.PaymentAuthorization, error) {
	decoded, err := ParseHeader(header)
	if err != nil {
		return nil, err
	}
	p := decoded.Payload

	if !strings.EqualFold(p.Asset, v.asset.Hex()) {
		return nil, types.NewValidationError("invalid asset")
	}

	recovered, err := recoverSigner(p, v.chainID)
	if err != nil {
		v.logger.Warn("signature recovery failed", "error", err)
		return nil, types.NewValidationError("invalid signature")
	}
	if !strings.EqualFold(recovered.Hex(), p.From) {
		return nil, types.NewValidationError("invalid signature")
	}

	nowUnix := now.Unix()
	if p.ValidAfter > nowUnix {
		return nil, types.NewValidationError("authorization not yet valid")
	}
	if p.ValidBefore < nowUnix {
		return nil, types.NewValidationError("authorization expired")
	}

	value, ok := new(big.Int).SetString(p.Value, 10)
	if !ok {
		return nil, types.NewValidationError("malformed payment header")
	}
	if value.Cmp(v.amount) < 0 {
		return nil, types.NewValidationError("insufficient payment value")
	}

	// A captured header could otherwise be replayed until validBefore.
	if !v.nonces.consume(p.Nonce, time.Unix(p.ValidBefore, 0), now) {
		return nil, types.NewValidationError("authorization replayed")
	}

	v.logger.Info("payment authorization accepted",
		"from", recovered.Hex(),
		"value", value.String(),
	)
	return &p, nil
}

// recoverSigner reconstructs the EIP-712 digest for the authorization and
// recovers the signing address from the attached signature.
func recoverSigner(p types.PaymentAuthorization, chainID int64) (common.Address, error) {
	typedData := apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"TransferWithAuthorization": {
				{Name: "from", Type: "address"},
				{Name: "to", Type: "address"},
				{Name: "value", Type: "uint256"},
				{Name: "validAfter", Type: "uint256"},
				{Name: "validBefore", Type: "uint256"},
				{Name: "nonce", Type: "bytes32"},
			},
		},
		PrimaryType: "TransferWithAuthorization",
		Domain: apitypes.TypedDataDomain{
			Name:              domainName,
			Version:           domainVersion,
			ChainId:           (*ethmath.HexOrDecimal256)(big.NewInt(chainID)),
			VerifyingContract: p.Asset,
		},
		Message: apitypes.TypedDataMessage{
			"from":        p.From,
			"to":          p.To,
			"value":       p.Value,
			"validAfter":  strconv.FormatInt(p.ValidAfter, 10),
			"validBefore": strconv.FormatInt(p.ValidBefore, 10),
			"nonce":       p.Nonce,
		},
	}

	hash, _, err := apitypes.TypedDataAndHash(typedData)
	if err != nil {
		return common.Address{}, fmt.Errorf("typed data hash: %w", err)
	}

	sig := common.FromHex(p.Signature)
	if len(sig) != 65 {
		return common.Address{}, fmt.Errorf("signature length %d, want 65", len(sig))
	}
	// EIP-712 wallets produce v in {27,28}; go-ethereum expects {0,1}.
	if sig[64] >= 27 {
		sig = append([]byte(nil), sig...)
		sig[64] -= 27
	}

	pub, err := crypto.SigToPub(hash, sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("recover pubkey: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}
