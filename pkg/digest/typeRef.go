package digest

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

type typeKind int

const (
	kindPrimitive typeKind = iota
	kindStruct
	kindArray
)

// typeRef is a parsed field type: a primitive, a reference to a declared struct, or an
// array of another typeRef. length is -1 for dynamic arrays.
type typeRef struct {
	kind   typeKind
	name   string
	elem   *typeRef
	length int
}

var (
	typeNamePattern = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*$`)
	arraySuffix     = regexp.MustCompile(`\[(\d*)\]$`)
)

// parseTypeRef resolves a declared type string against the type set.
func parseTypeRef(typ string, types Types) (*typeRef, error) {
	if loc := arraySuffix.FindStringSubmatchIndex(typ); loc != nil {
		elem, err := parseTypeRef(typ[:loc[0]], types)
		if err != nil {
			return nil, err
		}
		length := -1
		if loc[2] != loc[3] {
			n, err := strconv.Atoi(typ[loc[2]:loc[3]])
			if err != nil {
				return nil, fmt.Errorf("%w: invalid array length in %q", ErrSchemaMismatch, typ)
			}
			length = n
		}
		return &typeRef{kind: kindArray, name: typ, elem: elem, length: length}, nil
	}

	if isPrimitive(typ) {
		return &typeRef{kind: kindPrimitive, name: typ}, nil
	}
	if _, ok := types[typ]; ok {
		return &typeRef{kind: kindStruct, name: typ}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownTypeReference, typ)
}

// structName returns the innermost struct name the ref points at, if any.
func (r *typeRef) structName() (string, bool) {
	for r.kind == kindArray {
		r = r.elem
	}
	return r.name, r.kind == kindStruct
}

func isPrimitive(typ string) bool {
	switch typ {
	case "address", "bool", "string", "bytes":
		return true
	}
	if n, ok := sizedSuffix(typ, "bytes"); ok {
		return n >= 1 && n <= 32
	}
	if n, ok := sizedSuffix(typ, "uint"); ok {
		return validIntSize(n)
	}
	if n, ok := sizedSuffix(typ, "int"); ok {
		return validIntSize(n)
	}
	return false
}

// sizedSuffix parses names like uint256 or bytes32. The bare "int" and "uint" aliases
// are not part of EIP-712 and are rejected.
func sizedSuffix(typ, prefix string) (int, bool) {
	if !strings.HasPrefix(typ, prefix) || len(typ) == len(prefix) {
		return 0, false
	}
	digits := typ[len(prefix):]
	if digits[0] == '0' {
		return 0, false
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0, false
	}
	return n, true
}

func validIntSize(n int) bool {
	return n >= 8 && n <= 256 && n%8 == 0
}
