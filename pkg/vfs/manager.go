package vfs

import (
	"context"
	"sync"

	"github.com/driftfs/driftfs/internal/logger"
	"github.com/driftfs/driftfs/pkg/controlplane/models"
)

// DriverFactory builds a driver for one storage configuration. The factory
// receives the configuration with its secret still sealed; decryption is the
// factory's job so plaintext credentials never leave driver construction.
type DriverFactory func(ctx context.Context, cfg *models.S3Config) (Driver, error)

type driverSlot struct {
	once   sync.Once
	driver Driver
	err    error
}

// Manager pools drivers per (storage type, storage configuration) pair.
// Mounts sharing a configuration share one driver and therefore one provider
// client. Construction is deduplicated per slot so concurrent first requests
// build the driver exactly once.
type Manager struct {
	mu        sync.Mutex
	factories map[string]DriverFactory
	slots     map[string]*driverSlot
}

// NewManager creates an empty manager. Register factories before use.
func NewManager() *Manager {
	return &Manager{
		factories: make(map[string]DriverFactory),
		slots:     make(map[string]*driverSlot),
	}
}

// Register installs the factory for a storage type.
func (m *Manager) Register(storageType string, factory DriverFactory) {
	m.mu.Lock()
	m.factories[storageType] = factory
	m.mu.Unlock()
}

// DriverFor returns the pooled driver for the mount's storage configuration,
// constructing it on first use. The mount must carry its preloaded
// StorageConfig.
func (m *Manager) DriverFor(ctx context.Context, mount *models.Mount) (Driver, error) {
	key := mount.StorageType + ":" + mount.StorageConfigID

	m.mu.Lock()
	factory, ok := m.factories[mount.StorageType]
	if !ok {
		m.mu.Unlock()
		return nil, NewBadRequestError("unknown storage type " + mount.StorageType)
	}
	slot, ok := m.slots[key]
	if !ok {
		slot = &driverSlot{}
		m.slots[key] = slot
	}
	m.mu.Unlock()

	slot.once.Do(func() {
		slot.driver, slot.err = factory(ctx, &mount.StorageConfig)
		if slot.err != nil {
			// Drop the failed slot so a later request can retry
			// construction after the configuration is fixed.
			m.mu.Lock()
			if m.slots[key] == slot {
				delete(m.slots, key)
			}
			m.mu.Unlock()
		}
	})
	if slot.err != nil {
		return nil, NewInternalError("building storage driver", slot.err)
	}
	return slot.driver, nil
}

// EvictConfig closes and removes every pooled driver built from the given
// storage configuration. Called when the configuration is updated or deleted.
func (m *Manager) EvictConfig(configID string) int {
	m.mu.Lock()
	var evicted []*driverSlot
	for key, slot := range m.slots {
		if suffixConfigID(key) == configID {
			delete(m.slots, key)
			evicted = append(evicted, slot)
		}
	}
	m.mu.Unlock()

	for _, slot := range evicted {
		if slot.driver != nil {
			if err := slot.driver.Close(); err != nil {
				logger.Warn("failed to close evicted driver", "config_id", configID, "error", err)
			}
		}
	}
	return len(evicted)
}

// Close releases every pooled driver.
func (m *Manager) Close() {
	m.mu.Lock()
	slots := m.slots
	m.slots = make(map[string]*driverSlot)
	m.mu.Unlock()

	for _, slot := range slots {
		if slot.driver != nil {
			_ = slot.driver.Close()
		}
	}
}

func suffixConfigID(key string) string {
	for i := 0; i < len(key); i++ {
		if key[i] == ':' {
			return key[i+1:]
		}
	}
	return key
}
