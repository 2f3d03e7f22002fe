package crypto

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

const (
	authDomainName     = "ClobAuthDomain"
	exchangeDomainName = "Polymarket CTF Exchange"
	domainVersion      = "1"

	// AuthMessage is the fixed attestation string the venue expects in a
	// ClobAuth message.
	AuthMessage = "This message attests that I control the given wallet"
)

var (
	authDomainTypeHash = ethcrypto.Keccak256(
		[]byte("EIP712Domain(string name,string version,uint256 chainId)"),
	)
	exchangeDomainTypeHash = ethcrypto.Keccak256(
		[]byte("EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"),
	)
	clobAuthTypeHash = ethcrypto.Keccak256(
		[]byte("ClobAuth(address address,string timestamp,uint256 nonce,string message)"),
	)
	orderTypeHash = ethcrypto.Keccak256(
		[]byte("Order(uint256 salt,address maker,address signer,address taker,uint256 tokenId,uint256 makerAmount,uint256 takerAmount,uint256 expiration,uint256 nonce,uint256 feeRateBps,uint8 side,uint8 signatureType)"),
	)
)

// Side values in a signed order.
const (
	SideBuy  = 0
	SideSell = 1
)

// OrderPayload is the signed portion of a CLOB order. Integers are decimal
// strings so they survive JSON without precision loss.
type OrderPayload struct {
	Salt          string `json:"salt"`
	Maker         string `json:"maker"`
	Signer        string `json:"signer"`
	Taker         string `json:"taker"`
	TokenID       string `json:"tokenId"`
	MakerAmount   string `json:"makerAmount"`
	TakerAmount   string `json:"takerAmount"`
	Expiration    string `json:"expiration"`
	Nonce         string `json:"nonce"`
	FeeRateBps    string `json:"feeRateBps"`
	Side          int    `json:"side"`
	SignatureType int    `json:"signatureType"`
}

// Signer produces EIP-712 signatures for venue authentication and orders.
type Signer struct {
	privateKey  *ecdsa.PrivateKey
	address     common.Address
	authSep     []byte
	exchangeSep []byte
}

// NewSigner creates a Signer from a hex private key. exchange is the
// verifying contract orders are signed against.
func NewSigner(privateKeyHex string, chainID int64, exchange string) (*Signer, error) {
	pk, err := ethcrypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: invalid private key: %w", err)
	}
	if !common.IsHexAddress(exchange) {
		return nil, fmt.Errorf("crypto/signer: invalid exchange address %q", exchange)
	}

	chain := big.NewInt(chainID)
	return &Signer{
		privateKey: pk,
		address:    ethcrypto.PubkeyToAddress(pk.PublicKey),
		authSep: ethcrypto.Keccak256(
			authDomainTypeHash,
			ethcrypto.Keccak256([]byte(authDomainName)),
			ethcrypto.Keccak256([]byte(domainVersion)),
			word(chain),
		),
		exchangeSep: ethcrypto.Keccak256(
			exchangeDomainTypeHash,
			ethcrypto.Keccak256([]byte(exchangeDomainName)),
			ethcrypto.Keccak256([]byte(domainVersion)),
			word(chain),
			common.LeftPadBytes(common.HexToAddress(exchange).Bytes(), 32),
		),
	}, nil
}

// Address is the EOA derived from the private key.
func (s *Signer) Address() common.Address {
	return s.address
}

// SignAuth signs the ClobAuth message used to derive API credentials.
func (s *Signer) SignAuth(timestamp, nonce int64) (string, error) {
	structHash := ethcrypto.Keccak256(
		clobAuthTypeHash,
		common.LeftPadBytes(s.address.Bytes(), 32),
		ethcrypto.Keccak256([]byte(fmt.Sprintf("%d", timestamp))),
		word(big.NewInt(nonce)),
		ethcrypto.Keccak256([]byte(AuthMessage)),
	)
	return s.sign(s.authSep, structHash)
}

// SignOrder signs an order against the exchange domain.
func (s *Signer) SignOrder(o OrderPayload) (string, error) {
	structHash, err := orderStructHash(o)
	if err != nil {
		return "", err
	}
	return s.sign(s.exchangeSep, structHash)
}

// OrderDigest returns the EIP-712 digest of o. Exposed for verification.
func (s *Signer) OrderDigest(o OrderPayload) ([]byte, error) {
	structHash, err := orderStructHash(o)
	if err != nil {
		return nil, err
	}
	return typedDataHash(s.exchangeSep, structHash), nil
}

func (s *Signer) sign(domainSep, structHash []byte) (string, error) {
	sig, err := ethcrypto.Sign(typedDataHash(domainSep, structHash), s.privateKey)
	if err != nil {
		return "", fmt.Errorf("crypto/signer: signing: %w", err)
	}
	// go-ethereum yields v in {0,1}; the venue expects {27,28}.
	sig[64] += 27
	return "0x" + hex.EncodeToString(sig), nil
}

// typedDataHash is keccak256("\x19\x01" || domainSeparator || structHash).
func typedDataHash(domainSep, structHash []byte) []byte {
	return ethcrypto.Keccak256([]byte{0x19, 0x01}, domainSep, structHash)
}

func orderStructHash(o OrderPayload) ([]byte, error) {
	fields := []struct {
		name, value string
	}{
		{"salt", o.Salt},
		{"tokenId", o.TokenID},
		{"makerAmount", o.MakerAmount},
		{"takerAmount", o.TakerAmount},
		{"expiration", o.Expiration},
		{"nonce", o.Nonce},
		{"feeRateBps", o.FeeRateBps},
	}
	ints := make(map[string]*big.Int, len(fields))
	for _, f := range fields {
		n, ok := new(big.Int).SetString(f.value, 10)
		if !ok || n.Sign() < 0 {
			return nil, fmt.Errorf("crypto/signer: invalid %s %q", f.name, f.value)
		}
		ints[f.name] = n
	}
	for _, addr := range []string{o.Maker, o.Signer, o.Taker} {
		if !common.IsHexAddress(addr) {
			return nil, fmt.Errorf("crypto/signer: invalid address %q", addr)
		}
	}

	return ethcrypto.Keccak256(
		orderTypeHash,
		word(ints["salt"]),
		common.LeftPadBytes(common.HexToAddress(o.Maker).Bytes(), 32),
		common.LeftPadBytes(common.HexToAddress(o.Signer).Bytes(), 32),
		common.LeftPadBytes(common.HexToAddress(o.Taker).Bytes(), 32),
		word(ints["tokenId"]),
		word(ints["makerAmount"]),
		word(ints["takerAmount"]),
		word(ints["expiration"]),
		word(ints["nonce"]),
		word(ints["feeRateBps"]),
		word(big.NewInt(int64(o.Side))),
		word(big.NewInt(int64(o.SignatureType))),
	), nil
}

// word left-pads n to a 32-byte ABI word.
func word(n *big.Int) []byte {
	return common.LeftPadBytes(n.Bytes(), 32)
}
