package custody

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"strings"

	"cloud.google.com/go/kms/apiv1/kmspb"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const authorizationKeyPrefix = "wallet-auth:"

// AuthorizationSigner produces an ASN.1 DER ECDSA P-256 signature over the
// SHA-256 digest of payload.
type AuthorizationSigner interface {
	Sign(ctx context.Context, payload []byte) ([]byte, error)
}

// authorizationPayload builds the canonical JSON document the provider
// expects to be signed: object keys sorted, no HTML escaping.
func authorizationPayload(method string, endpoint string, body []byte, headers map[string]string) ([]byte, error) {
	var decodedBody any = map[string]any{}
	if len(body) > 0 {
		decoder := json.NewDecoder(bytes.NewReader(body))
		decoder.UseNumber()
		if err := decoder.Decode(&decodedBody); err != nil {
			return nil, fmt.Errorf("decode body for signing: %w", err)
		}
	}

	document := map[string]any{
		"version": 1,
		"method":  method,
		"url":     endpoint,
		"body":    decodedBody,
		"headers": headers,
	}

	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(document); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

type LocalSigner struct {
	key *ecdsa.PrivateKey
}

// NewLocalSigner parses an authorization key in the provider's
// "wallet-auth:<base64 PKCS#8>" format. The prefix is optional.
func NewLocalSigner(encoded string) (*LocalSigner, error) {
	encoded = strings.TrimPrefix(strings.TrimSpace(encoded), authorizationKeyPrefix)
	der, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode authorization key: %w", err)
	}
	parsed, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("parse authorization key: %w", err)
	}
	key, ok := parsed.(*ecdsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("authorization key is not an ECDSA key")
	}
	return &LocalSigner{key: key}, nil
}

func (s *LocalSigner) Sign(_ context.Context, payload []byte) ([]byte, error) {
	digest := sha256.Sum256(payload)
	return ecdsa.SignASN1(rand.Reader, s.key, digest[:])
}

func (s *LocalSigner) Public() *ecdsa.PublicKey {
	return &s.key.PublicKey
}

type kmsClient interface {
	AsymmetricSign(ctx context.Context, req *kmspb.AsymmetricSignRequest, opts ...gax.CallOption) (*kmspb.AsymmetricSignResponse, error)
}

// KMSSigner signs with an EC_SIGN_P256_SHA256 key version held in Google
// Cloud KMS, so the authorization key never leaves the HSM.
type KMSSigner struct {
	client  kmsClient
	keyName string
}

func NewKMSSigner(client kmsClient, keyVersionName string) *KMSSigner {
	return &KMSSigner{client: client, keyName: keyVersionName}
}

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

func (s *KMSSigner) Sign(ctx context.Context, payload []byte) ([]byte, error) {
	digest := sha256.Sum256(payload)
	digestCrc := crc32.Checksum(digest[:], castagnoli)

	res, err := s.client.AsymmetricSign(ctx, &kmspb.AsymmetricSignRequest{
		Name: s.keyName,
		Digest: &kmspb.Digest{
			Digest: &kmspb.Digest_Sha256{Sha256: digest[:]},
		},
		DigestCrc32C: wrapperspb.Int64(int64(digestCrc)),
	})
	if err != nil {
		return nil, fmt.Errorf("kms asymmetric sign: %w", err)
	}

	if !res.VerifiedDigestCrc32C {
		return nil, fmt.Errorf("kms asymmetric sign: request corrupted in transit")
	}
	if res.Name != s.keyName {
		return nil, fmt.Errorf("kms asymmetric sign: signed with unexpected key %s", res.Name)
	}
	if res.SignatureCrc32C == nil || int64(crc32.Checksum(res.Signature, castagnoli)) != res.SignatureCrc32C.Value {
		return nil, fmt.Errorf("kms asymmetric sign: response corrupted in transit")
	}

	return res.Signature, nil
}
