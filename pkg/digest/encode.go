package digest

import (
	"encoding/json"
	"fmt"
	"math/big"
	"reflect"
	"strings"

	"github.com/Layr-Labs/eigenx-sigkit/pkg/codec"
	"github.com/Layr-Labs/eigenx-sigkit/pkg/hash"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
)

func encodePrimitive(typ string, value interface{}) ([]byte, error) {
	switch typ {
	case "address":
		addr, err := parseAddress(value)
		if err != nil {
			return nil, err
		}
		return common.LeftPadBytes(addr.Bytes(), 32), nil

	case "bool":
		b, ok := value.(bool)
		if !ok {
			return nil, mismatch(typ, value)
		}
		word := make([]byte, 32)
		if b {
			word[31] = 1
		}
		return word, nil

	case "string":
		s, ok := value.(string)
		if !ok {
			return nil, mismatch(typ, value)
		}
		b, err := codec.TextToBytes(s)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrSchemaMismatch, err)
		}
		h := hash.Keccak256(b)
		return h[:], nil

	case "bytes":
		b, err := parseBytes(value)
		if err != nil {
			return nil, err
		}
		h := hash.Keccak256(b)
		return h[:], nil
	}

	if n, ok := sizedSuffix(typ, "bytes"); ok {
		b, err := parseBytes(value)
		if err != nil {
			return nil, err
		}
		if len(b) != n {
			return nil, fmt.Errorf("%w: %s expects %d bytes, got %d", ErrSchemaMismatch, typ, n, len(b))
		}
		word := make([]byte, 32)
		copy(word, b)
		return word, nil
	}

	if n, ok := sizedSuffix(typ, "uint"); ok {
		return encodeInteger(typ, value, n, false)
	}
	if n, ok := sizedSuffix(typ, "int"); ok {
		return encodeInteger(typ, value, n, true)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownTypeReference, typ)
}

func encodeInteger(typ string, value interface{}, bits int, signed bool) ([]byte, error) {
	v, err := parseInteger(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSchemaMismatch, typ, err)
	}
	if signed {
		limit := new(big.Int).Lsh(big.NewInt(1), uint(bits-1))
		minValue := new(big.Int).Neg(limit)
		if v.Cmp(minValue) < 0 || v.Cmp(limit) >= 0 {
			return nil, fmt.Errorf("%w: %s out of range: %s", ErrSchemaMismatch, typ, v)
		}
	} else if v.Sign() < 0 || v.BitLen() > bits {
		return nil, fmt.Errorf("%w: %s out of range: %s", ErrSchemaMismatch, typ, v)
	}
	// U256Bytes converts to two's complement in place.
	return math.U256Bytes(new(big.Int).Set(v)), nil
}

func parseInteger(value interface{}) (*big.Int, error) {
	switch v := value.(type) {
	case *big.Int:
		if v == nil {
			return nil, fmt.Errorf("nil integer")
		}
		return v, nil
	case *math.HexOrDecimal256:
		if v == nil {
			return nil, fmt.Errorf("nil integer")
		}
		return (*big.Int)(v), nil
	case json.Number:
		return parseIntegerString(string(v))
	case string:
		return parseIntegerString(v)
	case float64:
		if v != v {
			return nil, fmt.Errorf("NaN is not an integer")
		}
		f := new(big.Float).SetFloat64(v)
		i, accuracy := f.Int(nil)
		if accuracy != big.Exact {
			return nil, fmt.Errorf("%v is not an integer", v)
		}
		return i, nil
	}

	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return big.NewInt(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return new(big.Int).SetUint64(rv.Uint()), nil
	}
	return nil, fmt.Errorf("cannot use %T as an integer", value)
}

// parseIntegerString accepts decimal or 0x-prefixed hex with an optional leading minus.
func parseIntegerString(s string) (*big.Int, error) {
	digits := strings.TrimSpace(s)
	negative := strings.HasPrefix(digits, "-")
	if negative {
		digits = digits[1:]
	}
	base := 10
	if strings.HasPrefix(digits, "0x") || strings.HasPrefix(digits, "0X") {
		base = 16
		digits = digits[2:]
	}
	if digits == "" || strings.ContainsAny(digits, "+-_") {
		return nil, fmt.Errorf("invalid integer %q", s)
	}
	v, ok := new(big.Int).SetString(digits, base)
	if !ok {
		return nil, fmt.Errorf("invalid integer %q", s)
	}
	if negative {
		v.Neg(v)
	}
	return v, nil
}

func parseAddress(value interface{}) (common.Address, error) {
	switch v := value.(type) {
	case common.Address:
		return v, nil
	case *common.Address:
		if v != nil {
			return *v, nil
		}
	case string:
		if common.IsHexAddress(v) {
			return common.HexToAddress(v), nil
		}
		return common.Address{}, fmt.Errorf("%w: invalid address %q", ErrSchemaMismatch, v)
	case []byte:
		if len(v) == common.AddressLength {
			return common.BytesToAddress(v), nil
		}
	}
	return common.Address{}, mismatch("address", value)
}

func parseBytes(value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case []byte:
		return v, nil
	case hexutil.Bytes:
		return v, nil
	case string:
		b, err := codec.HexToBytes(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrSchemaMismatch, err)
		}
		return b, nil
	case hash.Digest:
		return v.Bytes(), nil
	case common.Hash:
		return v.Bytes(), nil
	}
	rv := reflect.ValueOf(value)
	if rv.Kind() == reflect.Array && rv.Type().Elem().Kind() == reflect.Uint8 {
		out := make([]byte, rv.Len())
		reflect.Copy(reflect.ValueOf(out), rv)
		return out, nil
	}
	return nil, mismatch("bytes", value)
}

func asStruct(value interface{}) (TypedDataMessage, bool) {
	if m, ok := value.(map[string]interface{}); ok {
		return m, m != nil
	}
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String || rv.IsNil() {
		return nil, false
	}
	out := make(TypedDataMessage, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		out[iter.Key().String()] = iter.Value().Interface()
	}
	return out, true
}

func asArray(value interface{}) ([]interface{}, bool) {
	if items, ok := value.([]interface{}); ok {
		return items, true
	}
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]interface{}, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

func mismatch(typ string, value interface{}) error {
	return fmt.Errorf("%w: cannot use %T as %s", ErrSchemaMismatch, value, typ)
}
