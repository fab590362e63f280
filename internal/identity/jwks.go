package identity

import (
	"crypto/rsa"
	"encoding/base64"
	"encoding/binary"
	"net/http"

	"github.com/gin-gonic/gin"
)

// KeyID is the "kid" of the only signing key.
const KeyID = "ledger-signing-key-1"

// DiscoveryDocument is served at /.well-known/openid-configuration.
type DiscoveryDocument struct {
	Issuer                           string   `json:"issuer"`
	JWKSURI                          string   `json:"jwks_uri"`
	TokenEndpoint                    string   `json:"token_endpoint"`
	SubjectTypesSupported            []string `json:"subject_types_supported"`
	IDTokenSigningAlgValuesSupported []string `json:"id_token_signing_alg_values_supported"`
}

// JWKSet is a JSON Web Key Set (RFC 7517).
type JWKSet struct {
	Keys []JWK `json:"keys"`
}

// JWK is a JSON Web Key for an RSA public key.
type JWK struct {
	Kty string `json:"kty"`
	Use string `json:"use"`
	Kid string `json:"kid"`
	Alg string `json:"alg"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// JWKSProvider publishes the caller token verification key.
type JWKSProvider struct {
	tokens *TokenIssuer
}

func NewJWKSProvider(tokens *TokenIssuer) *JWKSProvider {
	return &JWKSProvider{tokens: tokens}
}

// RegisterWellKnown attaches the discovery and JWKS routes to the engine.
func (p *JWKSProvider) RegisterWellKnown(engine *gin.Engine) {
	engine.GET("/.well-known/openid-configuration", p.discoveryHandler)
	engine.GET("/.well-known/jwks.json", p.jwksHandler)
}

func (p *JWKSProvider) discoveryHandler(c *gin.Context) {
	iss := p.tokens.Issuer()
	c.JSON(http.StatusOK, DiscoveryDocument{
		Issuer:                           iss,
		JWKSURI:                          iss + "/.well-known/jwks.json",
		TokenEndpoint:                    iss + "/api/v1/auth/token",
		SubjectTypesSupported:            []string{"public"},
		IDTokenSigningAlgValuesSupported: []string{"RS256"},
	})
}

func (p *JWKSProvider) jwksHandler(c *gin.Context) {
	c.JSON(http.StatusOK, JWKSet{Keys: []JWK{RSAPublicKeyToJWK(p.tokens.PublicKey(), KeyID)}})
}

// RSAPublicKeyToJWK encodes an RSA public key as a JWK (RFC 7518 section 6.3).
func RSAPublicKeyToJWK(pub *rsa.PublicKey, kid string) JWK {
	n := base64.RawURLEncoding.EncodeToString(pub.N.Bytes())

	// Exponent as big-endian, minimal-length bytes.
	eBuf := make([]byte, 8)
	binary.BigEndian.PutUint64(eBuf, uint64(pub.E))
	i := 0
	for i < len(eBuf)-1 && eBuf[i] == 0 {
		i++
	}
	e := base64.RawURLEncoding.EncodeToString(eBuf[i:])

	return JWK{Kty: "RSA", Use: "sig", Kid: kid, Alg: "RS256", N: n, E: e}
}
