package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/google/uuid"
	"github.com/mdcs-io/mdcs/pkg/crdt"
)

// NewReplicaID mints a fresh, globally-unique replica identifier. A
// replica chooses its ID once at startup and keeps it for its lifetime.
func NewReplicaID() crdt.ReplicaID {
	return crdt.ReplicaID(uuid.New().String())
}

// KeyManager manages encryption keys
type KeyManager struct {
	privateKey *rsa.PrivateKey
	publicKey  *rsa.PublicKey
}

// NewKeyManager creates a new key manager
func NewKeyManager() (*KeyManager, error) {
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, fmt.Errorf("failed to generate RSA key: %w", err)
	}

	return &KeyManager{
		privateKey: privateKey,
		publicKey:  &privateKey.PublicKey,
	}, nil
}

// EncryptData encrypts data with AES-GCM
func (km *KeyManager) EncryptData(plaintext []byte) ([]byte, []byte, error) {
	// Generate random key for AES
	key := make([]byte, 32) // 256-bit key
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, nil, fmt.Errorf("failed to generate AES key: %w", err)
	}

	// Create cipher
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	// Generate nonce
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	// Encrypt
	ciphertext := gcm.Seal(nonce, nonce, plaintext, nil)

	// Encrypt the AES key with RSA
	encryptedKey, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, km.publicKey, key, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encrypt AES key: %w", err)
	}

	return ciphertext, encryptedKey, nil
}

// DecryptData decrypts data with AES-GCM
func (km *KeyManager) DecryptData(ciphertext, encryptedKey []byte) ([]byte, error) {
	// Decrypt the AES key
	key, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, km.privateKey, encryptedKey, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt AES key: %w", err)
	}

	// Create cipher
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	// Extract nonce
	nonceSize := gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, fmt.Errorf("ciphertext too short")
	}

	nonce := ciphertext[:nonceSize]
	ciphertext = ciphertext[nonceSize:]

	// Decrypt
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: %w", err)
	}

	return plaintext, nil
}

// SignData signs data with RSA-PSS
func (km *KeyManager) SignData(data []byte) ([]byte, error) {
	hashed := sha256.Sum256(data)
	signature, err := rsa.SignPSS(rand.Reader, km.privateKey, 0, hashed[:], nil)
	if err != nil {
		return nil, fmt.Errorf("failed to sign data: %w", err)
	}
	return signature, nil
}

// VerifySignature verifies an RSA-PSS signature
func (km *KeyManager) VerifySignature(data, signature []byte) error {
	hashed := sha256.Sum256(data)
	return rsa.VerifyPSS(km.publicKey, 0, hashed[:], signature, nil)
}

// GenerateNonce generates a random nonce
func GenerateNonce(size int) ([]byte, error) {
	nonce := make([]byte, size)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return nonce, nil
}

// TLSConfig names the certificate material a replica's REST and gRPC
// front ends should terminate TLS with.
type TLSConfig struct {
	CertFile string
	KeyFile  string
	CAFile   string
}

// LoadTLSConfig records certificate/key/CA file paths without reading
// them; call Load to actually parse them once a listener needs a
// *tls.Config.
func LoadTLSConfig(certFile, keyFile, caFile string) (*TLSConfig, error) {
	if certFile == "" || keyFile == "" {
		return nil, fmt.Errorf("security: cert file and key file are both required")
	}
	return &TLSConfig{
		CertFile: certFile,
		KeyFile:  keyFile,
		CAFile:   caFile,
	}, nil
}

// Load parses the certificate/key pair (and, if CAFile is set, a client
// CA pool for mutual TLS) into a *tls.Config usable by both the REST and
// gRPC front ends.
func (c *TLSConfig) Load() (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(c.CertFile, c.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("security: load key pair: %w", err)
	}

	tlsCfg := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}

	if c.CAFile != "" {
		caPEM, err := os.ReadFile(c.CAFile)
		if err != nil {
			return nil, fmt.Errorf("security: read ca file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caPEM) {
			return nil, fmt.Errorf("security: no certificates parsed from %s", c.CAFile)
		}
		tlsCfg.ClientCAs = pool
		tlsCfg.ClientAuth = tls.RequireAndVerifyClientCert
	}

	return tlsCfg, nil
}

// ValidateCertificate validates a certificate (stub)
func ValidateCertificate(certPEM []byte) error {
	// Stub - in production, perform actual certificate validation
	block, _ := pem.Decode(certPEM)
	if block == nil {
		return fmt.Errorf("invalid PEM block")
	}

	_, err := x509.ParseCertificate(block.Bytes)
	return err
}

// GenerateCertID generates a unique certificate ID
func GenerateCertID() string {
	return uuid.New().String()
}

// AuditLogger logs security events
type AuditLogger struct {
	enabled bool
}

// NewAuditLogger creates a new audit logger
func NewAuditLogger(enabled bool) *AuditLogger {
	return &AuditLogger{enabled: enabled}
}

// LogSecurityEvent logs a security event
func (al *AuditLogger) LogSecurityEvent(eventType, details string) {
	if !al.enabled {
		return
	}

	log.Printf("SECURITY EVENT [%s]: %s", eventType, details)
}

// LogAccess logs an access event
func (al *AuditLogger) LogAccess(resource, action, userID string) {
	if !al.enabled {
		return
	}

	log.Printf("ACCESS: %s %s by %s", action, resource, userID)
}
