package vfs

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftfs/driftfs/pkg/controlplane/models"
)

type stubDriver struct {
	storageType string
	closed      atomic.Bool
}

func (d *stubDriver) Type() string                { return d.storageType }
func (d *stubDriver) Capabilities() CapabilitySet { return NewCapabilitySet(CapabilityReader) }
func (d *stubDriver) Close() error                { d.closed.Store(true); return nil }

func poolMount(configID string) *models.Mount {
	return &models.Mount{
		ID:              "m-" + configID,
		StorageType:     models.StorageTypeS3,
		StorageConfigID: configID,
		StorageConfig:   models.S3Config{ID: configID, Bucket: "b"},
	}
}

func TestManagerPoolsPerConfig(t *testing.T) {
	mgr := NewManager()
	var built atomic.Int32
	mgr.Register(models.StorageTypeS3, func(ctx context.Context, cfg *models.S3Config) (Driver, error) {
		built.Add(1)
		return &stubDriver{storageType: models.StorageTypeS3}, nil
	})

	d1, err := mgr.DriverFor(context.Background(), poolMount("c1"))
	require.NoError(t, err)
	d2, err := mgr.DriverFor(context.Background(), poolMount("c1"))
	require.NoError(t, err)
	assert.Same(t, d1, d2, "same config shares one driver")

	_, err = mgr.DriverFor(context.Background(), poolMount("c2"))
	require.NoError(t, err)
	assert.Equal(t, int32(2), built.Load())
}

func TestManagerConcurrentFirstUseBuildsOnce(t *testing.T) {
	mgr := NewManager()
	var built atomic.Int32
	mgr.Register(models.StorageTypeS3, func(ctx context.Context, cfg *models.S3Config) (Driver, error) {
		built.Add(1)
		return &stubDriver{storageType: models.StorageTypeS3}, nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := mgr.DriverFor(context.Background(), poolMount("c1"))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), built.Load())
}

func TestManagerUnknownStorageType(t *testing.T) {
	mgr := NewManager()
	mount := poolMount("c1")
	mount.StorageType = "FTP"
	_, err := mgr.DriverFor(context.Background(), mount)
	assert.True(t, IsCode(err, ErrBadRequest))
}

func TestManagerFailedConstructionRetries(t *testing.T) {
	mgr := NewManager()
	var built atomic.Int32
	mgr.Register(models.StorageTypeS3, func(ctx context.Context, cfg *models.S3Config) (Driver, error) {
		if built.Add(1) == 1 {
			return nil, errors.New("endpoint unreachable")
		}
		return &stubDriver{storageType: models.StorageTypeS3}, nil
	})

	_, err := mgr.DriverFor(context.Background(), poolMount("c1"))
	require.Error(t, err)

	d, err := mgr.DriverFor(context.Background(), poolMount("c1"))
	require.NoError(t, err)
	assert.NotNil(t, d)
	assert.Equal(t, int32(2), built.Load())
}

func TestManagerEvictConfig(t *testing.T) {
	mgr := NewManager()
	mgr.Register(models.StorageTypeS3, func(ctx context.Context, cfg *models.S3Config) (Driver, error) {
		return &stubDriver{storageType: models.StorageTypeS3}, nil
	})

	d1, err := mgr.DriverFor(context.Background(), poolMount("c1"))
	require.NoError(t, err)
	_, err = mgr.DriverFor(context.Background(), poolMount("c2"))
	require.NoError(t, err)

	assert.Equal(t, 1, mgr.EvictConfig("c1"))
	assert.True(t, d1.(*stubDriver).closed.Load())

	d1again, err := mgr.DriverFor(context.Background(), poolMount("c1"))
	require.NoError(t, err)
	assert.NotSame(t, d1, d1again)
}
