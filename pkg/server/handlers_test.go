package server

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"strings"
	"testing"

	"github.com/Layr-Labs/eigenx-sigkit/pkg/codec"
	"github.com/Layr-Labs/eigenx-sigkit/pkg/digest"
	"github.com/Layr-Labs/eigenx-sigkit/pkg/signature"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const mailJSON = `{
  "types": {
    "EIP712Domain": [
      {"name": "name", "type": "string"},
      {"name": "version", "type": "string"},
      {"name": "chainId", "type": "uint256"},
      {"name": "verifyingContract", "type": "address"}
    ],
    "Person": [
      {"name": "name", "type": "string"},
      {"name": "wallet", "type": "address"}
    ],
    "Mail": [
      {"name": "from", "type": "Person"},
      {"name": "to", "type": "Person"},
      {"name": "contents", "type": "string"}
    ]
  },
  "primaryType": "Mail",
  "domain": {
    "name": "Ether Mail",
    "version": "1",
    "chainId": "1",
    "verifyingContract": "0xCcCCccccCCCCcCCCCCCcCcCccCcCCCcCcccccccC"
  },
  "message": {
    "from": {"name": "Cow", "wallet": "0xCD2a3d9F938E13CD947Ec05AbC7FE734Df8DD826"},
    "to": {"name": "Bob", "wallet": "0xbBbBBBBbbBBBbbbBbbBbbbbBBbBbbbbBbBbbBBbB"},
    "contents": "Hello, Bob!"
  }
}`

const (
	mailDigest          = "0xbe609aee343fb3c4b28e1df9e632fca64fcfaede20f02e86244efddf30957bd2"
	mailDomainSeparator = "0xf2cee375fa42b42143804025fc449deafd50cc031ca257e0b194a650a912090f"
	mailStructHash      = "0xc52c0ee5d84264471806290a3f2c4cecfc5490626bf912d01f240d7a274b371e"
	mailSignature       = "0x4355c47d63924e8a72e509b65029052eb6c299d53a04e167c5775fd466751c9d" +
		"07299936d304c153f6443dfa05f40ff007d72911b6f72307f996231605b915621c"
	mailSigner = "0xCD2a3d9F938E13CD947Ec05AbC7FE734Df8DD826"

	helloWorldDigest   = "0xa1de988600a42c4b4ab089b619297c17d53cffae5d5120d82d8a92d0bb3b78f2"
	helloWorldPreimage = "0x19457468657265756d205369676e6564204d6573736167653a0a313148656c6c6f20576f726c64"
)

func signHelloWorld(t *testing.T) *signature.Signature {
	t.Helper()
	sig, err := newTestSigner(t).SignPersonalMessage(context.Background(), []byte("Hello World"))
	require.NoError(t, err)
	return sig
}

func malleate(t *testing.T, sig *signature.Signature) *signature.Signature {
	t.Helper()
	n := new(big.Int).Set(crypto.S256().Params().N)
	out := *sig
	n.Sub(n, sig.SInt()).FillBytes(out.S[:])
	out.V = 2*signature.LegacyVOffset + 1 - sig.V
	return &out
}

func Test_HandleHash(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	t.Run("Should hash packed text", func(t *testing.T) {
		w := doRequest(t, srv, http.MethodPost, "/v1/hash", HashRequest{Text: strPtr("Hello World")})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, "0x592fa743889fc7f92ac2a37bb1f5ba1daf2a5c84741ca0e0061d243a2e6707ba", decodeBody[HashResponse](t, w).Digest)
	})

	t.Run("Should hash hex data", func(t *testing.T) {
		w := doRequest(t, srv, http.MethodPost, "/v1/hash", HashRequest{Data: "0x"})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, "0xc5d2460186f7233c927e7db2dcc703c0e500b653ca82273b7bfad8045d85a470", decodeBody[HashResponse](t, w).Digest)
	})

	t.Run("Should distinguish abi from packed encoding", func(t *testing.T) {
		packed := doRequest(t, srv, http.MethodPost, "/v1/hash", HashRequest{Text: strPtr("abc")})
		abi := doRequest(t, srv, http.MethodPost, "/v1/hash", HashRequest{Text: strPtr("abc"), Encoding: "abi"})
		require.Equal(t, http.StatusOK, abi.Code, abi.Body.String())
		assert.NotEqual(t, decodeBody[HashResponse](t, packed).Digest, decodeBody[HashResponse](t, abi).Digest)
	})

	for name, body := range map[string]string{
		"invalid json":     "invalid json",
		"neither input":    `{}`,
		"both inputs":      `{"data":"0x00","text":"a"}`,
		"odd hex":          `{"data":"0x123"}`,
		"unknown encoding": `{"text":"a","encoding":"rlp"}`,
		"unknown field":    `{"data":"0x00","extra":1}`,
	} {
		t.Run("Should reject "+name, func(t *testing.T) {
			w := doRequest(t, srv, http.MethodPost, "/v1/hash", body)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
		})
	}

	t.Run("Should reject GET", func(t *testing.T) {
		w := doRequest(t, srv, http.MethodGet, "/v1/hash", nil)
		assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	})
}

func Test_HandlePersonalDigest(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	t.Run("Should build the digest of text", func(t *testing.T) {
		w := doRequest(t, srv, http.MethodPost, "/v1/digest/personal", PersonalDigestRequest{MessageInput{Message: strPtr("Hello World")}})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		resp := decodeBody[PersonalDigestResponse](t, w)
		assert.Equal(t, helloWorldDigest, resp.Digest)
		assert.Equal(t, helloWorldPreimage, resp.Preimage)
	})

	t.Run("Should treat hex bytes like the equivalent text", func(t *testing.T) {
		w := doRequest(t, srv, http.MethodPost, "/v1/digest/personal", PersonalDigestRequest{MessageInput{MessageHex: codec.BytesToHex([]byte("Hello World"))}})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, helloWorldDigest, decodeBody[PersonalDigestResponse](t, w).Digest)
	})

	t.Run("Should accept an empty message", func(t *testing.T) {
		w := doRequest(t, srv, http.MethodPost, "/v1/digest/personal", `{"message":""}`)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, digest.BuildPersonalMessageDigest(nil).Hex(), decodeBody[PersonalDigestResponse](t, w).Digest)
	})

	t.Run("Should reject both message forms", func(t *testing.T) {
		w := doRequest(t, srv, http.MethodPost, "/v1/digest/personal", `{"message":"a","messageHex":"0x61"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func Test_HandleTypedDigest(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	t.Run("Should build the Mail digest", func(t *testing.T) {
		w := doRequest(t, srv, http.MethodPost, "/v1/digest/typed", `{"typedData":`+mailJSON+`}`)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		resp := decodeBody[TypedDigestResponse](t, w)
		assert.Equal(t, mailDigest, resp.Digest)
		assert.Equal(t, mailDomainSeparator, resp.DomainSeparator)
		assert.Equal(t, mailStructHash, resp.StructHash)
		assert.Equal(t, "Mail(Person from,Person to,string contents)Person(string name,address wallet)", resp.EncodedType)
	})

	t.Run("Should reject an unknown type reference", func(t *testing.T) {
		broken := strings.Replace(mailJSON, `"type": "Person"}`, `"type": "Persona"}`, 1)
		w := doRequest(t, srv, http.MethodPost, "/v1/digest/typed", `{"typedData":`+broken+`}`)
		assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
	})

	t.Run("Should reject a value that does not match its type", func(t *testing.T) {
		broken := strings.Replace(mailJSON, `"0xbBbBBBBbbBBBbbbBbbBbbbbBBbBbbbbBbBbbBBbB"`, `"bob"`, 1)
		w := doRequest(t, srv, http.MethodPost, "/v1/digest/typed", `{"typedData":`+broken+`}`)
		assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
	})

	t.Run("Should reject a missing primary type", func(t *testing.T) {
		w := doRequest(t, srv, http.MethodPost, "/v1/digest/typed", `{"typedData":{"types":{},"domain":{},"message":{}}}`)
		assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
	})
}

func Test_HandleRecover(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	t.Run("Should recover the Mail signer", func(t *testing.T) {
		w := doRequest(t, srv, http.MethodPost, "/v1/recover", RecoverRequest{Digest: mailDigest, Signature: mailSignature})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		resp := decodeBody[RecoverResponse](t, w)
		assert.Equal(t, mailSigner, resp.Address)
		assert.True(t, strings.HasPrefix(resp.PublicKey, "0x04"))
		assert.Len(t, resp.PublicKey, 2+130)
	})

	t.Run("Should reject a short digest", func(t *testing.T) {
		w := doRequest(t, srv, http.MethodPost, "/v1/recover", RecoverRequest{Digest: "0x1234", Signature: mailSignature})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("Should reject a malformed signature", func(t *testing.T) {
		w := doRequest(t, srv, http.MethodPost, "/v1/recover", RecoverRequest{Digest: mailDigest, Signature: "0x1234"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func Test_HandleVerify(t *testing.T) {
	t.Run("Should verify and then report a replay", func(t *testing.T) {
		srv, reg := newTestServer(t, nil)
		sig := signHelloWorld(t)
		req := VerifyPersonalRequest{
			MessageInput: MessageInput{Message: strPtr("Hello World")},
			Signature:    sig.Hex(),
			Address:      testAddress,
		}

		w := doRequest(t, srv, http.MethodPost, "/v1/verify/personal", req)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		resp := decodeBody[VerifyResponse](t, w)
		assert.True(t, resp.Valid)
		assert.False(t, resp.Replayed)
		assert.Equal(t, testAddress, resp.Recovered)
		assert.Equal(t, helloWorldDigest, resp.Digest)

		rec, err := reg.GetVerification(sig.Hex())
		require.NoError(t, err)
		require.NotNil(t, rec)
		assert.Equal(t, testAddress, rec.Signer)

		w = doRequest(t, srv, http.MethodPost, "/v1/verify/personal", req)
		require.Equal(t, http.StatusOK, w.Code)
		resp = decodeBody[VerifyResponse](t, w)
		assert.True(t, resp.Valid)
		assert.True(t, resp.Replayed)
	})

	t.Run("Should report the malleated twin as a replay", func(t *testing.T) {
		srv, _ := newTestServer(t, nil)
		sig := signHelloWorld(t)
		req := VerifyPersonalRequest{
			MessageInput: MessageInput{Message: strPtr("Hello World")},
			Signature:    sig.Hex(),
			Address:      strings.ToLower(testAddress),
		}
		w := doRequest(t, srv, http.MethodPost, "/v1/verify/personal", req)
		require.False(t, decodeBody[VerifyResponse](t, w).Replayed)

		req.Signature = malleate(t, sig).Hex()
		w = doRequest(t, srv, http.MethodPost, "/v1/verify/personal", req)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		resp := decodeBody[VerifyResponse](t, w)
		assert.True(t, resp.Valid)
		assert.True(t, resp.Replayed)
	})

	t.Run("Should not record a signature by another signer", func(t *testing.T) {
		srv, reg := newTestServer(t, nil)
		sig := signHelloWorld(t)
		w := doRequest(t, srv, http.MethodPost, "/v1/verify/personal", VerifyPersonalRequest{
			MessageInput: MessageInput{Message: strPtr("Hello World")},
			Signature:    sig.Hex(),
			Address:      mailSigner,
		})
		require.Equal(t, http.StatusOK, w.Code)
		resp := decodeBody[VerifyResponse](t, w)
		assert.False(t, resp.Valid)
		assert.Equal(t, testAddress, resp.Recovered)

		rec, err := reg.GetVerification(sig.Hex())
		require.NoError(t, err)
		assert.Nil(t, rec)
	})

	t.Run("Should report an unrecoverable signature as invalid", func(t *testing.T) {
		srv, _ := newTestServer(t, nil)
		sig := &signature.Signature{V: 27}
		sig.R[31] = 5
		sig.S[31] = 1
		w := doRequest(t, srv, http.MethodPost, "/v1/verify/personal", VerifyPersonalRequest{
			MessageInput: MessageInput{Message: strPtr("Hello World")},
			Signature:    sig.Hex(),
			Address:      testAddress,
		})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		resp := decodeBody[VerifyResponse](t, w)
		assert.False(t, resp.Valid)
		assert.Empty(t, resp.Recovered)
	})

	t.Run("Should reject an invalid address", func(t *testing.T) {
		srv, _ := newTestServer(t, nil)
		w := doRequest(t, srv, http.MethodPost, "/v1/verify/personal", VerifyPersonalRequest{
			MessageInput: MessageInput{Message: strPtr("Hello World")},
			Signature:    signHelloWorld(t).Hex(),
			Address:      "0x1234",
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("Should verify typed data", func(t *testing.T) {
		srv, _ := newTestServer(t, nil)
		body := `{"typedData":` + mailJSON + `,"signature":"` + mailSignature + `","address":"` + mailSigner + `"}`
		w := doRequest(t, srv, http.MethodPost, "/v1/verify/typed", body)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		resp := decodeBody[VerifyResponse](t, w)
		assert.True(t, resp.Valid)
		assert.Equal(t, mailDigest, resp.Digest)
	})

	t.Run("Should fail with 500 when the registry is closed", func(t *testing.T) {
		srv, reg := newTestServer(t, nil)
		require.NoError(t, reg.Close())
		w := doRequest(t, srv, http.MethodPost, "/v1/verify/personal", VerifyPersonalRequest{
			MessageInput: MessageInput{Message: strPtr("Hello World")},
			Signature:    signHelloWorld(t).Hex(),
			Address:      testAddress,
		})
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})

	t.Run("Should count outcomes", func(t *testing.T) {
		srv, _ := newTestServer(t, nil)
		req := VerifyPersonalRequest{
			MessageInput: MessageInput{Message: strPtr("Hello World")},
			Signature:    signHelloWorld(t).Hex(),
			Address:      testAddress,
		}
		doRequest(t, srv, http.MethodPost, "/v1/verify/personal", req)
		doRequest(t, srv, http.MethodPost, "/v1/verify/personal", req)

		body := doRequest(t, srv, http.MethodGet, "/metrics", nil).Body.String()
		assert.Contains(t, body, `sigkit_verifications_total{outcome="valid",scheme="personal"} 1`)
		assert.Contains(t, body, `sigkit_verifications_total{outcome="replayed",scheme="personal"} 1`)
	})
}

func Test_HandleSign(t *testing.T) {
	t.Run("Should sign a personal message that verifies", func(t *testing.T) {
		srv, _ := newTestServer(t, newTestSigner(t))
		w := doRequest(t, srv, http.MethodPost, "/v1/sign/personal", SignPersonalRequest{MessageInput{Message: strPtr("Hello World")}})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		resp := decodeBody[SignResponse](t, w)
		assert.Equal(t, testAddress, resp.Address)
		assert.Equal(t, helloWorldDigest, resp.Digest)

		sig, err := signature.ParseHex(resp.Signature)
		require.NoError(t, err)
		assert.True(t, sig.IsLowS())
		ok, err := signature.VerifyPersonalMessage([]byte("Hello World"), sig, testAddress)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("Should sign typed data", func(t *testing.T) {
		srv, _ := newTestServer(t, newTestSigner(t))
		w := doRequest(t, srv, http.MethodPost, "/v1/sign/typed", `{"typedData":`+mailJSON+`}`)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		resp := decodeBody[SignResponse](t, w)
		assert.Equal(t, mailDigest, resp.Digest)

		d, err := digest.ParseTypedDataJSON([]byte(mailJSON))
		require.NoError(t, err)
		sig, err := signature.ParseHex(resp.Signature)
		require.NoError(t, err)
		ok, err := signature.VerifyTypedData(d, sig, testAddress)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("Should reject invalid typed data before signing", func(t *testing.T) {
		srv, _ := newTestServer(t, &failingSigner{})
		broken := strings.Replace(mailJSON, `"type": "Person"}`, `"type": "Persona"}`, 1)
		w := doRequest(t, srv, http.MethodPost, "/v1/sign/typed", `{"typedData":`+broken+`}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("Should surface a signer failure as 502", func(t *testing.T) {
		srv, _ := newTestServer(t, &failingSigner{})
		w := doRequest(t, srv, http.MethodPost, "/v1/sign/personal", SignPersonalRequest{MessageInput{Message: strPtr("Hello World")}})
		require.Equal(t, http.StatusBadGateway, w.Code)
		assert.Contains(t, decodeBody[ErrorResponse](t, w).Error, "user rejected")
	})

	t.Run("Should report the signer address", func(t *testing.T) {
		srv, _ := newTestServer(t, newTestSigner(t))
		w := doRequest(t, srv, http.MethodGet, "/v1/address", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, testAddress, decodeBody[AddressResponse](t, w).Address)

		w = doRequest(t, srv, http.MethodPost, "/v1/address", nil)
		assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	})
}

func Test_IsInputError(t *testing.T) {
	assert.True(t, isInputError(codec.ErrMalformedHex))
	assert.True(t, isInputError(digest.ErrSchemaMismatch))
	assert.True(t, isInputError(signature.ErrInvalidSignature))
	assert.False(t, isInputError(errors.New("disk full")))
	assert.False(t, isInputError(json.Unmarshal([]byte("{}"), &struct{}{})))
}

func Test_HandleVerifications(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	sig := signHelloWorld(t)
	w := doRequest(t, srv, http.MethodPost, "/v1/verify/personal", VerifyPersonalRequest{
		MessageInput: MessageInput{Message: strPtr("Hello World")},
		Signature:    sig.Hex(),
		Address:      testAddress,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	t.Run("Should list the records of a signer", func(t *testing.T) {
		w := doRequest(t, srv, http.MethodGet, "/v1/verifications?signer="+strings.ToLower(testAddress), nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		resp := decodeBody[VerificationsResponse](t, w)
		require.Len(t, resp.Records, 1)
		assert.Equal(t, testAddress, resp.Records[0].Signer)
		assert.Equal(t, helloWorldDigest, resp.Records[0].Digest)
	})

	t.Run("Should find a record by its malleated twin", func(t *testing.T) {
		w := doRequest(t, srv, http.MethodGet, "/v1/verifications?signature="+malleate(t, sig).Hex(), nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		resp := decodeBody[VerificationsResponse](t, w)
		require.Len(t, resp.Records, 1)

		canonical, err := sig.Canonical()
		require.NoError(t, err)
		assert.Equal(t, canonical.Hex(), resp.Records[0].Signature)
	})

	t.Run("Should answer an empty list for unknown keys", func(t *testing.T) {
		w := doRequest(t, srv, http.MethodGet, "/v1/verifications?signer="+mailSigner, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, decodeBody[VerificationsResponse](t, w).Records)
		assert.Contains(t, w.Body.String(), `"records":[]`)

		w = doRequest(t, srv, http.MethodGet, "/v1/verifications?signature="+mailSignature, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, decodeBody[VerificationsResponse](t, w).Records)
	})

	t.Run("Should reject bad queries", func(t *testing.T) {
		for _, query := range []string{
			"",
			"?signer=0x1234",
			"?signature=zz",
			"?signature=0x1234",
			"?signer=" + testAddress + "&signature=" + sig.Hex(),
		} {
			w := doRequest(t, srv, http.MethodGet, "/v1/verifications"+query, nil)
			assert.Equal(t, http.StatusBadRequest, w.Code, query)
		}

		w := doRequest(t, srv, http.MethodPost, "/v1/verifications?signer="+testAddress, nil)
		assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	})

	t.Run("Should fail with 500 when the registry is closed", func(t *testing.T) {
		closedSrv, closedReg := newTestServer(t, nil)
		require.NoError(t, closedReg.Close())
		w := doRequest(t, closedSrv, http.MethodGet, "/v1/verifications?signer="+testAddress, nil)
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}
