package credentials

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/insight-back/pkg/models"
)

// Backend persists credential slots. The Redis cache client and the in-memory
// backend both satisfy this.
type Backend interface {
	LoadCredentials(ctx context.Context) (map[models.Vendor]models.Credential, error)
	SaveCredential(ctx context.Context, vendor models.Vendor, cred models.Credential) error
	DeleteCredential(ctx context.Context, vendor models.Vendor) error
}

// Store holds exactly one credential per vendor slot. Get never fails: when
// no explicit credential is set it falls back to the configured default for
// that vendor, or a zero credential when no default exists.
//
// Writes are user-initiated and effectively serial, so the store implements
// last-writer-wins with a single mutex and no further coordination.
type Store struct {
	mu       sync.RWMutex
	active   map[models.Vendor]models.Credential
	defaults map[models.Vendor]models.Credential
	backend  Backend
	logger   *logrus.Entry
}

// NewStore creates a credential store backed by the given persistence layer.
// defaults may be nil; vendors without a default fall back to a zero
// credential after Clear.
func NewStore(backend Backend, defaults map[models.Vendor]models.Credential, logger *logrus.Logger) *Store {
	d := make(map[models.Vendor]models.Credential)
	for vendor, cred := range defaults {
		if !cred.IsZero() {
			d[vendor] = cred
		}
	}

	return &Store{
		active:   make(map[models.Vendor]models.Credential),
		defaults: d,
		backend:  backend,
		logger:   logger.WithField("component", "credentials"),
	}
}

// Load hydrates the in-memory slots from the backend
func (s *Store) Load(ctx context.Context) error {
	stored, err := s.backend.LoadCredentials(ctx)
	if err != nil {
		return fmt.Errorf("failed to load credentials: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for vendor, cred := range stored {
		if vendor.Valid() && !cred.IsZero() {
			s.active[vendor] = cred
		}
	}

	s.logger.WithField("slots", len(s.active)).Info("Loaded stored credentials")
	return nil
}

// Get returns the active credential for a vendor, or its default when none
// is set. It never fails; callers validate keys by attempting a vendor call.
func (s *Store) Get(vendor models.Vendor) models.Credential {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if cred, ok := s.active[vendor]; ok {
		return cred
	}
	return s.defaults[vendor]
}

// Set overwrites the active credential for a vendor and persists it.
// No well-formedness validation happens here.
func (s *Store) Set(ctx context.Context, vendor models.Vendor, cred models.Credential) error {
	if !vendor.Valid() {
		return fmt.Errorf("unknown vendor: %s", vendor)
	}

	if err := s.backend.SaveCredential(ctx, vendor, cred); err != nil {
		return fmt.Errorf("failed to persist credential for %s: %w", vendor, err)
	}

	s.mu.Lock()
	s.active[vendor] = cred
	s.mu.Unlock()

	s.logger.WithField("vendor", vendor).Info("Credential updated")
	return nil
}

// Clear removes the active credential for a vendor. Subsequent Get calls
// fall back to the default where one exists.
func (s *Store) Clear(ctx context.Context, vendor models.Vendor) error {
	if !vendor.Valid() {
		return fmt.Errorf("unknown vendor: %s", vendor)
	}

	if err := s.backend.DeleteCredential(ctx, vendor); err != nil {
		return fmt.Errorf("failed to delete credential for %s: %w", vendor, err)
	}

	s.mu.Lock()
	delete(s.active, vendor)
	s.mu.Unlock()

	s.logger.WithField("vendor", vendor).Info("Credential cleared")
	return nil
}

// Status describes every vendor slot with the key material masked
func (s *Store) Status() []models.CredentialStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	statuses := make([]models.CredentialStatus, 0, len(models.AllVendors()))
	for _, vendor := range models.AllVendors() {
		cred, isActive := s.active[vendor]
		isDefault := false
		if !isActive {
			cred, isDefault = s.defaults[vendor], true
		}

		statuses = append(statuses, models.CredentialStatus{
			Vendor:     vendor,
			Configured: !cred.IsZero(),
			MaskedKey:  MaskKey(cred.Key),
			IsDefault:  isDefault && !cred.IsZero(),
		})
	}

	sort.Slice(statuses, func(i, j int) bool {
		return statuses[i].Vendor < statuses[j].Vendor
	})
	return statuses
}

// MaskKey hides all but the edges of a key for display
func MaskKey(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return key[:4] + strings.Repeat("*", len(key)-6) + key[len(key)-2:]
}
