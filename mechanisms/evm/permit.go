package evm

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// PermitTypedData builds the EIP-712 payload for an EIP-2612 permit on asset.
func PermitTypedData(
	asset AssetInfo,
	chainID *big.Int,
	owner string,
	spender string,
	value *big.Int,
	nonce *big.Int,
	deadline *big.Int,
) (TypedDataDomain, map[string][]TypedDataField, map[string]interface{}) {
	domain := TypedDataDomain{
		Name:              asset.Name,
		Version:           asset.Version,
		ChainID:           chainID,
		VerifyingContract: NormalizeAddress(asset.Address),
	}
	message := map[string]interface{}{
		"owner":    NormalizeAddress(owner),
		"spender":  NormalizeAddress(spender),
		"value":    value,
		"nonce":    nonce,
		"deadline": deadline,
	}
	return domain, GetPermitEIP712Types(), message
}

// ReadPermitNonce returns owner's current EIP-2612 nonce on token.
func ReadPermitNonce(ctx context.Context, reader ChainReader, token string, owner string) (*big.Int, error) {
	result, err := reader.ReadContract(ctx, NormalizeAddress(token), ERC20ABI, FunctionNonces, common.HexToAddress(owner))
	if err != nil {
		return nil, fmt.Errorf("failed to read permit nonce: %w", err)
	}
	nonce, ok := result.(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected nonce type: %T", result)
	}
	return nonce, nil
}

// SignPermit signs an EIP-2612 permit letting spender move value of asset.
//
// The permit is valid until deadline. No on-chain transaction is sent; the
// signature is split into v, r, s so a relayer can call permit() directly.
func SignPermit(
	ctx context.Context,
	wallet Wallet,
	reader ChainReader,
	asset AssetInfo,
	chainID *big.Int,
	spender string,
	value *big.Int,
	deadline time.Time,
) (*Permit, error) {
	owner := wallet.Account().Address
	if owner == "" {
		return nil, fmt.Errorf("wallet has no address")
	}

	nonce, err := ReadPermitNonce(ctx, reader, asset.Address, owner)
	if err != nil {
		return nil, err
	}

	deadlineBig := big.NewInt(deadline.Unix())
	domain, types, message := PermitTypedData(asset, chainID, owner, spender, value, nonce, deadlineBig)

	sig, err := wallet.SignTypedData(ctx, domain, types, "Permit", message)
	if err != nil {
		return nil, fmt.Errorf("failed to sign permit: %w", err)
	}

	split, err := SplitSignature(sig)
	if err != nil {
		return nil, err
	}
	split.Deadline = deadlineBig.String()
	split.Nonce = nonce.String()

	return &Permit{
		Owner:     NormalizeAddress(owner),
		Spender:   NormalizeAddress(spender),
		Token:     NormalizeAddress(asset.Address),
		Value:     value.String(),
		Signature: split,
	}, nil
}

// VerifyPermit checks that p was signed by its owner for asset on chainID.
func VerifyPermit(p *Permit, asset AssetInfo, chainID *big.Int) error {
	value, ok := new(big.Int).SetString(p.Value, 10)
	if !ok {
		return fmt.Errorf("invalid permit value %q", p.Value)
	}
	nonce, ok := new(big.Int).SetString(p.Signature.Nonce, 10)
	if !ok {
		return fmt.Errorf("invalid permit nonce %q", p.Signature.Nonce)
	}
	deadline, ok := new(big.Int).SetString(p.Signature.Deadline, 10)
	if !ok {
		return fmt.Errorf("invalid permit deadline %q", p.Signature.Deadline)
	}

	sig, err := JoinSignature(p.Signature)
	if err != nil {
		return err
	}

	domain, types, message := PermitTypedData(asset, chainID, p.Owner, p.Spender, value, nonce, deadline)
	signer, err := RecoverTypedDataSigner(domain, types, "Permit", message, sig)
	if err != nil {
		return err
	}
	if !SameAddress(signer, p.Owner) {
		return fmt.Errorf("permit signed by %s, expected %s", signer, p.Owner)
	}
	return nil
}

// SplitSignature splits a 65-byte (r, s, v) signature.
// v is normalized to 27/28.
func SplitSignature(sig []byte) (PermitSignature, error) {
	if len(sig) != 65 {
		return PermitSignature{}, fmt.Errorf("invalid signature length: %d", len(sig))
	}
	v := sig[64]
	if v < 27 {
		v += 27
	}
	return PermitSignature{
		V: v,
		R: BytesToHex(sig[0:32]),
		S: BytesToHex(sig[32:64]),
	}, nil
}

// JoinSignature reassembles the 65-byte (r, s, v) form.
func JoinSignature(ps PermitSignature) ([]byte, error) {
	r, err := HexToBytes32(ps.R)
	if err != nil {
		return nil, fmt.Errorf("invalid r: %w", err)
	}
	s, err := HexToBytes32(ps.S)
	if err != nil {
		return nil, fmt.Errorf("invalid s: %w", err)
	}
	sig := make([]byte, 0, 65)
	sig = append(sig, r[:]...)
	sig = append(sig, s[:]...)
	sig = append(sig, ps.V)
	return sig, nil
}

// PermitCall builds the permit() call a relayer submits on-chain.
func PermitCall(p *Permit) (Call, error) {
	value, ok := new(big.Int).SetString(p.Value, 10)
	if !ok {
		return Call{}, fmt.Errorf("invalid permit value %q", p.Value)
	}
	deadline, ok := new(big.Int).SetString(p.Signature.Deadline, 10)
	if !ok {
		return Call{}, fmt.Errorf("invalid permit deadline %q", p.Signature.Deadline)
	}
	r, err := HexToBytes32(p.Signature.R)
	if err != nil {
		return Call{}, fmt.Errorf("invalid r: %w", err)
	}
	s, err := HexToBytes32(p.Signature.S)
	if err != nil {
		return Call{}, fmt.Errorf("invalid s: %w", err)
	}
	return Call{
		To:       p.Token,
		ABI:      ERC20ABI,
		Function: FunctionPermit,
		Args: []interface{}{
			common.HexToAddress(p.Owner),
			common.HexToAddress(p.Spender),
			value,
			deadline,
			p.Signature.V,
			r,
			s,
		},
	}, nil
}
