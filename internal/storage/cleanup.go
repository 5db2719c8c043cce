package storage

import (
	"context"
	"time"

	"github.com/dgellow/rest-api-import/internal/log"
)

// CleanupManager periodically purges expired entries from a Storage
type CleanupManager struct {
	storage  Storage
	interval time.Duration
}

// NewCleanupManager creates a new cleanup manager
func NewCleanupManager(storage Storage, interval time.Duration) *CleanupManager {
	return &CleanupManager{
		storage:  storage,
		interval: interval,
	}
}

// Run blocks until ctx is cancelled, purging on every tick. A final purge
// runs on shutdown.
func (cm *CleanupManager) Run(ctx context.Context) error {
	if cm.interval <= 0 {
		log.LogInfo("Expired entry cleanup disabled")
		<-ctx.Done()
		return nil
	}

	log.LogInfoWithFields("cleanup", "Starting expired entry cleanup", map[string]any{
		"interval": cm.interval.String(),
	})

	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	// Run cleanup immediately on start
	cm.Cleanup(ctx)

	for {
		select {
		case <-ticker.C:
			cm.Cleanup(ctx)
		case <-ctx.Done():
			// The run context is gone, give the final purge its own deadline
			finalCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			cm.Cleanup(finalCtx)
			cancel()
			log.LogInfo("Expired entry cleanup stopped")
			return nil
		}
	}
}

// Cleanup performs one purge and returns the number of removed entries
func (cm *CleanupManager) Cleanup(ctx context.Context) int {
	count, err := cm.storage.CleanupExpired(ctx)
	if err != nil {
		log.LogErrorWithFields("cleanup", "Failed to cleanup expired entries", map[string]any{
			"error": err.Error(),
		})
		return count
	}

	if count > 0 {
		log.LogInfoWithFields("cleanup", "Cleaned up expired entries", map[string]any{
			"count": count,
		})
	}
	return count
}
