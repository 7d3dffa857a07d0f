package credentials

import (
	"context"
	"sync"

	"github.com/insight-back/pkg/models"
)

// MemoryBackend keeps credentials in process memory. Used for tests and for
// running the server without Redis; credentials do not survive a restart.
type MemoryBackend struct {
	mu    sync.RWMutex
	creds map[models.Vendor]models.Credential
}

// NewMemoryBackend creates an empty in-memory backend
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		creds: make(map[models.Vendor]models.Credential),
	}
}

// LoadCredentials returns a copy of all stored credentials
func (m *MemoryBackend) LoadCredentials(ctx context.Context) (map[models.Vendor]models.Credential, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[models.Vendor]models.Credential, len(m.creds))
	for vendor, cred := range m.creds {
		out[vendor] = cred
	}
	return out, nil
}

// SaveCredential stores a credential
func (m *MemoryBackend) SaveCredential(ctx context.Context, vendor models.Vendor, cred models.Credential) error {
	m.mu.Lock()
	m.creds[vendor] = cred
	m.mu.Unlock()
	return nil
}

// DeleteCredential removes a credential
func (m *MemoryBackend) DeleteCredential(ctx context.Context, vendor models.Vendor) error {
	m.mu.Lock()
	delete(m.creds, vendor)
	m.mu.Unlock()
	return nil
}
