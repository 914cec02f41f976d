package chain

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

const (
	caip2Namespace = "eip155"

	// EVM values and ABI uint256 arguments are 256 bits wide.
	maxQuantityBits = 256
)

// Caip2 returns the CAIP-2 identifier of an EVM chain, e.g. "eip155:11155111".
func Caip2(chainId int64) string {
	return fmt.Sprintf("%s:%d", caip2Namespace, chainId)
}

func ParseCaip2(id string) (int64, error) {
	namespace, reference, found := strings.Cut(id, ":")
	if !found || namespace != caip2Namespace {
		return 0, fmt.Errorf("unsupported chain identifier %q", id)
	}
	chainId, err := strconv.ParseInt(reference, 10, 64)
	if err != nil || chainId <= 0 {
		return 0, fmt.Errorf("invalid chain reference in %q", id)
	}
	return chainId, nil
}

// IsAddress reports whether s is a 0x-prefixed 20 byte hex address.
func IsAddress(s string) bool {
	return strings.HasPrefix(s, "0x") && common.IsHexAddress(s)
}

// NormalizeAddress returns the EIP-55 checksummed form used as the storage key.
func NormalizeAddress(s string) string {
	return common.HexToAddress(s).Hex()
}

// ParseQuantity accepts a 0x-prefixed hex quantity or a base 10 integer that
// fits in a uint256.
func ParseQuantity(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty quantity")
	}
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		v, err := hexutil.DecodeBig("0x" + s[2:])
		if err != nil {
			return nil, fmt.Errorf("invalid hex quantity %q: %w", s, err)
		}
		return v, nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("invalid quantity %q", s)
	}
	if v.BitLen() > maxQuantityBits {
		return nil, fmt.Errorf("quantity %q exceeds %d bits", s, maxQuantityBits)
	}
	return v, nil
}

func EncodeQuantity(v *big.Int) string {
	return hexutil.EncodeBig(v)
}

// ParseData decodes optional 0x calldata. An empty string is no calldata.
func ParseData(s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	b, err := hexutil.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("invalid calldata: %w", err)
	}
	return b, nil
}

func EncodeData(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	return hexutil.Encode(b)
}
