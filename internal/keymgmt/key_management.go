package keymgmt

import (
	"context"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/kms/apiv1/kmspb"
	"github.com/google/uuid"
	"github.com/googleapis/gax-go/v2"
	"github.com/jpillora/backoff"
	"github.com/rs/zerolog/log"
)

type keyManagementClient interface {
	CreateCryptoKey(ctx context.Context, req *kmspb.CreateCryptoKeyRequest, opts ...gax.CallOption) (*kmspb.CryptoKey, error)
	GetPublicKey(ctx context.Context, req *kmspb.GetPublicKeyRequest, opts ...gax.CallOption) (*kmspb.PublicKey, error)
}

// AuthorizationKey is the public half of the key that signs custody requests.
// Base64 is the DER SubjectPublicKeyInfo the custody provider registers.
type AuthorizationKey struct {
	VersionName string
	Pem         string
	Base64      string
}

// CreateAuthorizationKey creates a new P-256 signing key in keyRing and waits
// for its first version to become usable.
func CreateAuthorizationKey(ctx context.Context, client keyManagementClient, keyRing string, timeout time.Duration) (*AuthorizationKey, error) {
	r := &kmspb.CreateCryptoKeyRequest{
		Parent:      keyRing,
		CryptoKeyId: fmt.Sprintf("walletrelay-authorization-key-%s", uuid.New().String()),
		CryptoKey: &kmspb.CryptoKey{
			Purpose: kmspb.CryptoKey_ASYMMETRIC_SIGN,
			VersionTemplate: &kmspb.CryptoKeyVersionTemplate{
				Algorithm: kmspb.CryptoKeyVersion_EC_SIGN_P256_SHA256,
			},
			Labels: map[string]string{
				"service": "walletrelay-api",
			},
		},
	}

	key, err := client.CreateCryptoKey(ctx, r)
	if err != nil {
		return nil, err
	}

	return GetAuthorizationKey(ctx, client, fmt.Sprintf("%s/cryptoKeyVersions/1", key.Name), timeout)
}

// GetAuthorizationKey fetches the public key of a key version, retrying while
// KMS is still generating it.
func GetAuthorizationKey(ctx context.Context, client keyManagementClient, versionName string, timeout time.Duration) (*AuthorizationKey, error) {
	b := &backoff.Backoff{
		Min:    100 * time.Millisecond,
		Max:    5 * time.Second,
		Factor: 5,
		Jitter: true,
	}
	deadline := time.Now().Add(timeout)

	log.Trace().Msgf("Getting public key for KMS key %s", versionName)

	for {
		pk, err := client.GetPublicKey(ctx, &kmspb.GetPublicKeyRequest{Name: versionName})
		if err == nil {
			return toAuthorizationKey(versionName, pk)
		}
		if !strings.Contains(err.Error(), "KEY_PENDING_GENERATION") {
			return nil, err
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("timeout while trying to get public key")
		}

		log.Trace().Msg("KMS key is pending creation, will retry")
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(b.Duration()):
		}
	}
}

func toAuthorizationKey(versionName string, pk *kmspb.PublicKey) (*AuthorizationKey, error) {
	if pk.Algorithm != kmspb.CryptoKeyVersion_EC_SIGN_P256_SHA256 {
		return nil, fmt.Errorf("key %s uses %s, expected EC_SIGN_P256_SHA256", versionName, pk.Algorithm)
	}
	block, _ := pem.Decode([]byte(pk.Pem))
	if block == nil {
		return nil, fmt.Errorf("key %s returned no PEM public key", versionName)
	}
	return &AuthorizationKey{
		VersionName: versionName,
		Pem:         pk.Pem,
		Base64:      base64.StdEncoding.EncodeToString(block.Bytes),
	}, nil
}
