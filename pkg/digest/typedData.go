package digest

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/Layr-Labs/eigenx-sigkit/pkg/hash"
)

/*
Typed structured data hashing (EIP-712)

	digest        = keccak256(0x19 || 0x01 || domainSeparator || hashStruct(message))
	hashStruct(s) = keccak256(typeHash(S) || enc(field_1) || ... || enc(field_n))
	typeHash(S)   = keccak256(encodeType(S))
	encodeType(S) = "S(t1 n1,...,tn nn)" followed by every struct S references,
	                sorted by name

Field encoding (each result is one 32-byte word):
  - string, bytes: keccak256 of the raw bytes
  - bytes1..bytes32: right padded
  - address, bool, intN, uintN: left padded, signed values in two's complement
  - T[] and T[k]: keccak256 of the concatenated element words
  - struct references: hashStruct of the nested value

The domain separator is hashStruct of EIP712Domain, where the domain type lists only
the fields that are set, in the order name, version, chainId, verifyingContract, salt.
Absent fields are left out of both the type string and the encoding.
*/

// BuildTypedDataDigest returns the EIP-712 signing digest.
func BuildTypedDataDigest(domain TypedDataDomain, types Types, primaryType string, message TypedDataMessage) (hash.Digest, error) {
	td := &TypedData{
		Types:       types,
		PrimaryType: primaryType,
		Domain:      domain,
		Message:     message,
	}
	return td.Digest()
}

// Digest returns keccak256(0x19 || 0x01 || domainSeparator || structHash).
func (td *TypedData) Digest() (hash.Digest, error) {
	preimage, err := td.Preimage()
	if err != nil {
		return hash.Digest{}, err
	}
	return hash.Keccak256(preimage), nil
}

// Preimage returns the bytes hashed by Digest. When the primary type is the domain itself
// the struct hash is omitted.
func (td *TypedData) Preimage() ([]byte, error) {
	if err := td.Types.Validate(); err != nil {
		return nil, err
	}
	domainSeparator, err := td.DomainSeparator()
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, 2+2*hash.DigestLength)
	out = append(out, EnvelopeMarker, VersionTypedData)
	out = append(out, domainSeparator[:]...)
	if td.PrimaryType == DomainTypeName {
		return out, nil
	}

	structHash, err := td.StructHash()
	if err != nil {
		return nil, err
	}
	return append(out, structHash[:]...), nil
}

// DomainSeparator returns hashStruct(EIP712Domain).
func (td *TypedData) DomainSeparator() (hash.Digest, error) {
	return HashDomain(&td.Domain, td.Types)
}

// StructHash returns hashStruct of the message under the primary type.
func (td *TypedData) StructHash() (hash.Digest, error) {
	return HashStruct(td.Types, td.PrimaryType, td.Message)
}

// EncodedType returns the canonical type string of the primary type.
func (td *TypedData) EncodedType() (string, error) {
	return EncodeType(td.Types, td.PrimaryType)
}

// HashDomain returns the domain separator. If types declares EIP712Domain, the declaration
// must list exactly the fields set on domain.
func HashDomain(domain *TypedDataDomain, types Types) (hash.Digest, error) {
	fields := domain.domainFields()
	if declared, ok := types[DomainTypeName]; ok {
		if err := matchDomainFields(declared, fields); err != nil {
			return hash.Digest{}, err
		}
		fields = declared
	}
	domainTypes := Types{DomainTypeName: fields}
	h, err := HashStruct(domainTypes, DomainTypeName, domain.Map())
	if err != nil {
		return hash.Digest{}, fmt.Errorf("domain: %w", err)
	}
	return h, nil
}

func matchDomainFields(declared, present []Type) error {
	presentNames := make(map[string]bool, len(present))
	for _, f := range present {
		presentNames[f.Name] = true
	}
	declaredNames := make(map[string]bool, len(declared))
	for _, f := range declared {
		if !presentNames[f.Name] {
			return fmt.Errorf("%w: %s declares %q but the domain does not set it", ErrSchemaMismatch, DomainTypeName, f.Name)
		}
		declaredNames[f.Name] = true
	}
	for _, f := range present {
		if !declaredNames[f.Name] {
			return fmt.Errorf("%w: domain sets %q but %s does not declare it", ErrSchemaMismatch, f.Name, DomainTypeName)
		}
	}
	return nil
}

// TypeHash returns keccak256(encodeType(name)).
func TypeHash(types Types, name string) (hash.Digest, error) {
	encoded, err := EncodeType(types, name)
	if err != nil {
		return hash.Digest{}, err
	}
	return hash.Keccak256([]byte(encoded)), nil
}

// EncodeType returns the type string of name followed by its struct dependencies in
// alphabetical order.
func EncodeType(types Types, name string) (string, error) {
	if _, ok := types[name]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownTypeReference, name)
	}
	deps, err := dependencies(types, name, nil)
	if err != nil {
		return "", err
	}
	sort.Strings(deps[1:])

	var sb strings.Builder
	for _, dep := range deps {
		sb.WriteString(dep)
		sb.WriteByte('(')
		for i, field := range types[dep] {
			if i > 0 {
				sb.WriteByte(',')
			}
			sb.WriteString(field.Type)
			sb.WriteByte(' ')
			sb.WriteString(field.Name)
		}
		sb.WriteByte(')')
	}
	return sb.String(), nil
}

// dependencies collects name and every struct reachable from it, name first.
func dependencies(types Types, name string, found []string) ([]string, error) {
	if slices.Contains(found, name) {
		return found, nil
	}
	found = append(found, name)
	for _, field := range types[name] {
		ref, err := parseTypeRef(field.Type, types)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", name, field.Name, err)
		}
		if dep, ok := ref.structName(); ok {
			if found, err = dependencies(types, dep, found); err != nil {
				return nil, err
			}
		}
	}
	return found, nil
}

// HashStruct returns keccak256(typeHash || encodeData(message)).
func HashStruct(types Types, name string, message TypedDataMessage) (hash.Digest, error) {
	encoded, err := EncodeData(types, name, message, name)
	if err != nil {
		return hash.Digest{}, err
	}
	return hash.Keccak256(encoded), nil
}

// EncodeData returns typeHash followed by one 32-byte word per field. path names the
// value in error messages.
func EncodeData(types Types, name string, message TypedDataMessage, path string) ([]byte, error) {
	fields, ok := types[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTypeReference, name)
	}
	if message == nil {
		return nil, fmt.Errorf("%w: %s: missing value for struct %s", ErrSchemaMismatch, path, name)
	}

	declared := make(map[string]bool, len(fields))
	for _, f := range fields {
		declared[f.Name] = true
	}
	for key := range message {
		if !declared[key] {
			return nil, fmt.Errorf("%w: %s: field %q is not declared by %s", ErrSchemaMismatch, path, key, name)
		}
	}

	typeHash, err := TypeHash(types, name)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, hash.DigestLength*(len(fields)+1))
	out = append(out, typeHash[:]...)
	for _, field := range fields {
		fieldPath := path + "." + field.Name
		value, ok := message[field.Name]
		if !ok {
			return nil, fmt.Errorf("%w: %s: missing field", ErrSchemaMismatch, fieldPath)
		}
		ref, err := parseTypeRef(field.Type, types)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", fieldPath, err)
		}
		word, err := encodeValue(types, ref, value, fieldPath)
		if err != nil {
			return nil, err
		}
		out = append(out, word...)
	}
	return out, nil
}

func encodeValue(types Types, ref *typeRef, value interface{}, path string) ([]byte, error) {
	switch ref.kind {
	case kindStruct:
		nested, ok := asStruct(value)
		if !ok {
			return nil, fmt.Errorf("%w: %s: expected struct %s, got %T", ErrSchemaMismatch, path, ref.name, value)
		}
		encoded, err := EncodeData(types, ref.name, nested, path)
		if err != nil {
			return nil, err
		}
		h := hash.Keccak256(encoded)
		return h[:], nil

	case kindArray:
		items, ok := asArray(value)
		if !ok {
			return nil, fmt.Errorf("%w: %s: expected array %s, got %T", ErrSchemaMismatch, path, ref.name, value)
		}
		if ref.length >= 0 && len(items) != ref.length {
			return nil, fmt.Errorf("%w: %s: expected %d elements, got %d", ErrSchemaMismatch, path, ref.length, len(items))
		}
		out := make([]byte, 0, hash.DigestLength*len(items))
		for i, item := range items {
			word, err := encodeValue(types, ref.elem, item, fmt.Sprintf("%s[%d]", path, i))
			if err != nil {
				return nil, err
			}
			out = append(out, word...)
		}
		h := hash.Keccak256(out)
		return h[:], nil

	default:
		word, err := encodePrimitive(ref.name, value)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return word, nil
	}
}

// Validate checks that every struct name is well formed, field names are unique, and
// every field type resolves.
func (t Types) Validate() error {
	for name, fields := range t {
		if !typeNamePattern.MatchString(name) || isPrimitive(name) {
			return fmt.Errorf("%w: invalid struct name %q", ErrSchemaMismatch, name)
		}
		seen := make(map[string]bool, len(fields))
		for _, field := range fields {
			if field.Name == "" {
				return fmt.Errorf("%w: %s has a field with no name", ErrSchemaMismatch, name)
			}
			if seen[field.Name] {
				return fmt.Errorf("%w: %s declares %q twice", ErrSchemaMismatch, name, field.Name)
			}
			seen[field.Name] = true
			if _, err := parseTypeRef(field.Type, t); err != nil {
				return fmt.Errorf("%s.%s: %w", name, field.Name, err)
			}
		}
	}
	return nil
}
