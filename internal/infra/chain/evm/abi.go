package evm

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	gmath "github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
)

// EncodeWithSignature builds call data for a function signature such as
// "transfer(address,uint256)": the 4-byte keccak selector followed by the
// ABI-encoded arguments. Tuple parameters are not supported.
func EncodeWithSignature(signature string, args ...any) ([]byte, error) {
	types, err := parseSignatureTypes(signature)
	if err != nil {
		return nil, err
	}
	if len(types) != len(args) {
		return nil, fmt.Errorf("signature %q takes %d arguments, got %d", signature, len(types), len(args))
	}

	arguments := make(abi.Arguments, len(types))
	for i, t := range types {
		typ, err := abi.NewType(t, "", nil)
		if err != nil {
			return nil, fmt.Errorf("argument %d of %q: %w", i, signature, err)
		}
		arguments[i] = abi.Argument{Type: typ}
	}

	packed, err := arguments.Pack(args...)
	if err != nil {
		return nil, fmt.Errorf("pack %q: %w", signature, err)
	}

	selector := crypto.Keccak256([]byte(canonicalSignature(signature)))[:4]
	return append(selector, packed...), nil
}

var (
	tt255 = new(big.Int).Lsh(big.NewInt(1), 255)
	tt256 = new(big.Int).Lsh(big.NewInt(1), 256)
)

// ToSigned256 truncates n to 256 bits and reinterprets the word as two's
// complement. n is not modified.
func ToSigned256(n *big.Int) *big.Int {
	v := gmath.U256(new(big.Int).Set(n))
	if v.Cmp(tt255) >= 0 {
		v.Sub(v, tt256)
	}
	return v
}

// EventTopic returns the 0x-prefixed keccak hash of an event signature, e.g.
// "Transfer(address,address,uint256)".
func EventTopic(signature string) string {
	return crypto.Keccak256Hash([]byte(canonicalSignature(signature))).Hex()
}

// ChecksumAddress returns the EIP-55 form of a hex address.
func ChecksumAddress(addr string) (string, error) {
	addr = strings.TrimSpace(addr)
	if !common.IsHexAddress(addr) {
		return "", fmt.Errorf("invalid address %q", addr)
	}
	return common.HexToAddress(addr).Hex(), nil
}

// Word returns the i-th 32-byte word of hex event data as an unsigned
// integer. The data may carry a 0x prefix.
func Word(data string, i int) (*big.Int, error) {
	b := common.FromHex(data)
	start := i * 32
	if i < 0 || start+32 > len(b) {
		return nil, fmt.Errorf("word %d out of range for %d bytes of data", i, len(b))
	}
	return new(big.Int).SetBytes(b[start : start+32]), nil
}

// TopicAddress extracts the address carried by an indexed address topic.
func TopicAddress(topic string) string {
	return common.BytesToAddress(common.FromHex(topic)).Hex()
}

func canonicalSignature(signature string) string {
	return strings.ReplaceAll(signature, " ", "")
}

func parseSignatureTypes(signature string) ([]string, error) {
	sig := canonicalSignature(signature)
	open := strings.IndexByte(sig, '(')
	if open <= 0 || !strings.HasSuffix(sig, ")") {
		return nil, fmt.Errorf("malformed signature %q", signature)
	}
	inner := sig[open+1 : len(sig)-1]
	if inner == "" {
		return nil, nil
	}
	if strings.ContainsAny(inner, "()") {
		return nil, fmt.Errorf("tuple parameters are not supported: %q", signature)
	}
	return strings.Split(inner, ","), nil
}
