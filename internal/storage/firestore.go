package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/dgellow/rest-api-import/internal/crypto"
	"github.com/dgellow/rest-api-import/internal/log"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Ensure FirestoreStorage implements Storage
var _ Storage = (*FirestoreStorage)(nil)

// Firestore batch write limit
const maxBatchSize = 500

// FirestoreStorage stores entries as documents in a single collection.
// Values are encrypted before they are written.
type FirestoreStorage struct {
	client     *firestore.Client
	projectID  string
	collection string
	encryptor  crypto.Encryptor
	now        func() time.Time
}

// EntryDoc represents a key/value document in Firestore
type EntryDoc struct {
	Key       string    `firestore:"key"`
	Value     string    `firestore:"value"` // Encrypted
	ExpiresAt time.Time `firestore:"expires_at,omitempty"`
	UpdatedAt time.Time `firestore:"updated_at"`
}

// NewFirestoreStorage creates a new Firestore storage instance
func NewFirestoreStorage(ctx context.Context, projectID, database, collection string, encryptor crypto.Encryptor) (*FirestoreStorage, error) {
	if encryptor == nil {
		return nil, fmt.Errorf("encryptor is required")
	}
	if projectID == "" {
		return nil, fmt.Errorf("projectID is required")
	}
	if collection == "" {
		return nil, fmt.Errorf("collection is required")
	}

	var client *firestore.Client
	var err error

	// Firestore client with custom database
	if database != "" && database != "(default)" {
		client, err = firestore.NewClientWithDatabase(ctx, projectID, database)
	} else {
		client, err = firestore.NewClient(ctx, projectID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}

	log.LogInfoWithFields("firestore", "Connected to Firestore", map[string]any{
		"project":    projectID,
		"database":   database,
		"collection": collection,
	})

	return &FirestoreStorage{
		client:     client,
		projectID:  projectID,
		collection: collection,
		encryptor:  encryptor,
		now:        time.Now,
	}, nil
}

// docID hashes the key so arbitrary key strings are valid document IDs
func docID(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

func (s *FirestoreStorage) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	encrypted, err := s.encryptor.Encrypt(value)
	if err != nil {
		return fmt.Errorf("failed to encrypt value: %w", err)
	}

	now := s.now()
	doc := EntryDoc{
		Key:       key,
		Value:     encrypted,
		ExpiresAt: expiresAt(now, ttl),
		UpdatedAt: now,
	}

	if _, err := s.client.Collection(s.collection).Doc(docID(key)).Set(ctx, doc); err != nil {
		return fmt.Errorf("failed to store value in Firestore: %w", err)
	}
	return nil
}

func (s *FirestoreStorage) Get(ctx context.Context, key string) (string, error) {
	snap, err := s.client.Collection(s.collection).Doc(docID(key)).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("failed to get value from Firestore: %w", err)
	}

	var doc EntryDoc
	if err := snap.DataTo(&doc); err != nil {
		return "", fmt.Errorf("failed to unmarshal entry: %w", err)
	}

	if isExpired(doc.ExpiresAt, s.now()) {
		return "", ErrNotFound
	}

	value, err := s.encryptor.Decrypt(doc.Value)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt value: %w", err)
	}
	return value, nil
}

func (s *FirestoreStorage) Delete(ctx context.Context, key string) error {
	// Deleting a missing document succeeds in Firestore
	if _, err := s.client.Collection(s.collection).Doc(docID(key)).Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete value from Firestore: %w", err)
	}
	return nil
}

// CleanupExpired removes all expired entries in batches
func (s *FirestoreStorage) CleanupExpired(ctx context.Context) (int, error) {
	// Entries without expiry have no expires_at field and never match
	iter := s.client.Collection(s.collection).
		Where("expires_at", "<=", s.now()).
		Documents(ctx)
	defer iter.Stop()

	count := 0
	batch := s.client.Batch()
	batchSize := 0

	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return count, fmt.Errorf("failed to iterate expired entries: %w", err)
		}

		batch.Delete(doc.Ref)
		batchSize++
		count++

		if batchSize >= maxBatchSize {
			if _, err := batch.Commit(ctx); err != nil {
				return count, fmt.Errorf("failed to commit batch: %w", err)
			}
			batch = s.client.Batch()
			batchSize = 0
		}
	}

	if batchSize > 0 {
		if _, err := batch.Commit(ctx); err != nil {
			return count, fmt.Errorf("failed to commit final batch: %w", err)
		}
	}

	return count, nil
}

// Close closes the Firestore client
func (s *FirestoreStorage) Close() error {
	return s.client.Close()
}
