package units

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/params"
	"github.com/holiman/uint256"
)

var denominations = map[string]*big.Int{
	"wei":        big.NewInt(params.Wei),
	"kwei":       big.NewInt(1e3),
	"babbage":    big.NewInt(1e3),
	"mwei":       big.NewInt(1e6),
	"lovelace":   big.NewInt(1e6),
	"gwei":       big.NewInt(params.GWei),
	"shannon":    big.NewInt(params.GWei),
	"szabo":      big.NewInt(1e12),
	"microether": big.NewInt(1e12),
	"finney":     big.NewInt(1e15),
	"milliether": big.NewInt(1e15),
	"ether":      big.NewInt(params.Ether),
	"eth":        big.NewInt(params.Ether),
}

// ToWei converts an amount into wei. It accepts integers, *big.Int,
// *uint256.Int, big-endian byte slices, hex strings, decimal strings and
// strings with a denomination such as "1000 ETH" or "1.5 gwei".
// The result always fits in 256 bits.
func ToWei(value any) (*big.Int, error) {
	var wei *big.Int

	switch v := value.(type) {
	case int:
		wei = big.NewInt(int64(v))
	case int64:
		wei = big.NewInt(v)
	case uint64:
		wei = new(big.Int).SetUint64(v)
	case *big.Int:
		if v == nil {
			return nil, fmt.Errorf("nil amount")
		}
		wei = new(big.Int).Set(v)
	case *uint256.Int:
		if v == nil {
			return nil, fmt.Errorf("nil amount")
		}
		wei = v.ToBig()
	case []byte:
		wei = new(big.Int).SetBytes(v)
	case string:
		parsed, err := parseString(v)
		if err != nil {
			return nil, err
		}
		wei = parsed
	default:
		return nil, fmt.Errorf("unsupported amount type %T", value)
	}

	if wei.Sign() < 0 {
		return nil, fmt.Errorf("amount must not be negative: %s", wei)
	}
	if _, overflow := uint256.FromBig(wei); overflow {
		return nil, fmt.Errorf("amount %s overflows 256 bits", wei)
	}
	return wei, nil
}

func parseString(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty amount")
	}

	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		digits := strings.TrimLeft(s[2:], "0")
		if digits == "" {
			return new(big.Int), nil
		}
		n, err := hexutil.DecodeBig("0x" + digits)
		if err != nil {
			return nil, fmt.Errorf("invalid hex amount %q: %w", s, err)
		}
		return n, nil
	}

	fields := strings.Fields(s)
	switch len(fields) {
	case 1:
		n, ok := new(big.Int).SetString(fields[0], 10)
		if !ok {
			return nil, fmt.Errorf("invalid amount %q", s)
		}
		return n, nil
	case 2:
		unit, ok := denominations[strings.ToLower(fields[1])]
		if !ok {
			return nil, fmt.Errorf("unknown denomination %q in %q", fields[1], s)
		}
		amount, ok := new(big.Rat).SetString(fields[0])
		if !ok {
			return nil, fmt.Errorf("invalid amount %q", s)
		}
		amount.Mul(amount, new(big.Rat).SetInt(unit))
		if !amount.IsInt() {
			return nil, fmt.Errorf("amount %q is not a whole number of wei", s)
		}
		return new(big.Int).Set(amount.Num()), nil
	default:
		return nil, fmt.Errorf("invalid amount %q", s)
	}
}

// MustToWei is ToWei for constants known to be valid
func MustToWei(value any) *big.Int {
	wei, err := ToWei(value)
	if err != nil {
		panic(err)
	}
	return wei
}
