package middleware

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/aretw0/fetpipe/pkg/domain"
	"github.com/aretw0/fetpipe/pkg/ports"
)

// envelopeKey holds the sealed payload inside StageRecord.Outputs.
const envelopeKey = "__encrypted__"

// EncryptionConfig holds the keys for encryption and decryption.
type EncryptionConfig struct {
	// ActiveKey is the key used for encrypting new data.
	// Must be 32 bytes for AES-256.
	ActiveKey []byte

	// FallbackKeys is a list of old keys to try when decryption fails.
	// This enables zero-downtime key rotation.
	FallbackKeys [][]byte
}

// ParseKey decodes a hex-encoded AES-256 key.
func ParseKey(s string) ([]byte, error) {
	key, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("encryption key is not hex: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("encryption key must be 32 bytes (AES-256), got %d", len(key))
	}
	return key, nil
}

// sealed is the part of a stage record hidden from the underlying store. Output paths
// carry subject identifiers.
type sealed struct {
	Outputs domain.Outputs `json:"outputs,omitempty"`
	Error   string         `json:"error,omitempty"`
}

type encryptionMiddleware struct {
	next   ports.RunStore
	config EncryptionConfig
}

// NewEncryptionMiddleware creates a middleware that seals the outputs and errors of every
// stage record with AES-GCM. Run IDs, node names, statuses and timings stay readable.
func NewEncryptionMiddleware(config EncryptionConfig) Middleware {
	if len(config.ActiveKey) != 32 {
		panic("active key must be 32 bytes (AES-256)")
	}
	return func(next ports.RunStore) ports.RunStore {
		return &encryptionMiddleware{
			next:   next,
			config: config,
		}
	}
}

func (m *encryptionMiddleware) Begin(ctx context.Context, run *domain.Run) error {
	envelope := *run
	envelope.Stages = make([]domain.StageRecord, 0, len(run.Stages))
	for _, rec := range run.Stages {
		sealedRec, err := m.seal(rec)
		if err != nil {
			return err
		}
		envelope.Stages = append(envelope.Stages, sealedRec)
	}
	return m.next.Begin(ctx, &envelope)
}

func (m *encryptionMiddleware) Record(ctx context.Context, rec domain.StageRecord) error {
	sealedRec, err := m.seal(rec)
	if err != nil {
		return err
	}
	return m.next.Record(ctx, sealedRec)
}

func (m *encryptionMiddleware) Load(ctx context.Context, runID string) (*domain.Run, error) {
	run, err := m.next.Load(ctx, runID)
	if err != nil {
		return nil, err
	}
	for i, rec := range run.Stages {
		opened, err := m.open(rec)
		if err != nil {
			return nil, fmt.Errorf("run %s, node %s: %w", runID, rec.Node, err)
		}
		run.Stages[i] = opened
	}
	return run, nil
}

func (m *encryptionMiddleware) Delete(ctx context.Context, runID string) error {
	return m.next.Delete(ctx, runID)
}

func (m *encryptionMiddleware) List(ctx context.Context) ([]string, error) {
	return m.next.List(ctx)
}

func (m *encryptionMiddleware) seal(rec domain.StageRecord) (domain.StageRecord, error) {
	plainText, err := json.Marshal(sealed{Outputs: rec.Outputs, Error: rec.Error})
	if err != nil {
		return rec, fmt.Errorf("failed to marshal stage record: %w", err)
	}
	ciphertext, err := encrypt(plainText, m.config.ActiveKey)
	if err != nil {
		return rec, fmt.Errorf("failed to encrypt stage record: %w", err)
	}
	rec.Outputs = domain.Outputs{envelopeKey: base64.StdEncoding.EncodeToString(ciphertext)}
	rec.Error = ""
	return rec, nil
}

func (m *encryptionMiddleware) open(rec domain.StageRecord) (domain.StageRecord, error) {
	encryptedStr, ok := rec.Outputs[envelopeKey].(string)
	if !ok {
		// Fail secure: with encryption configured, a plain record is not trusted.
		return rec, errors.New("stage record is missing encrypted data envelope")
	}
	ciphertext, err := base64.StdEncoding.DecodeString(encryptedStr)
	if err != nil {
		return rec, fmt.Errorf("failed to decode ciphertext base64: %w", err)
	}
	plainText, err := decryptWithRotation(ciphertext, m.config.ActiveKey, m.config.FallbackKeys)
	if err != nil {
		return rec, fmt.Errorf("failed to decrypt stage record: %w", err)
	}
	var s sealed
	if err := json.Unmarshal(plainText, &s); err != nil {
		return rec, fmt.Errorf("failed to unmarshal decrypted stage record: %w", err)
	}
	rec.Outputs = s.Outputs
	rec.Error = s.Error
	return rec, nil
}

// Helpers

func encrypt(plaintext []byte, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func decryptWithRotation(ciphertext []byte, activeKey []byte, fallbackKeys [][]byte) ([]byte, error) {
	if plain, err := decrypt(ciphertext, activeKey); err == nil {
		return plain, nil
	}
	for _, key := range fallbackKeys {
		if plain, err := decrypt(ciphertext, key); err == nil {
			return plain, nil
		}
	}
	return nil, errors.New("decryption failed with all available keys")
}

func decrypt(ciphertext []byte, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	if len(ciphertext) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}

	nonce := ciphertext[:gcm.NonceSize()]
	return gcm.Open(nil, nonce, ciphertext[gcm.NonceSize():], nil)
}
