package workflow

import (
	"fmt"

	"gorm.io/gorm"
)

const deviationLockTimeoutSeconds = 10

// MySQL advisory locks serialize writers on the same deviation so the version
// check only ever fires on a genuinely concurrent request, not on two writers
// racing inside the same instance. The lock is connection-scoped, so it must
// be taken and released on the transaction's connection.
func deviationLockKey(businessId string, deviationId int) string {
	return fmt.Sprintf("capa:%s:%d", businessId, deviationId)
}

func AcquireDeviationLock(tx *gorm.DB, businessId string, deviationId int) error {
	key := deviationLockKey(businessId, deviationId)

	var acquired int
	err := tx.Raw("SELECT GET_LOCK(?, ?)", key, deviationLockTimeoutSeconds).Scan(&acquired).Error
	if err != nil {
		return err
	}
	if acquired != 1 {
		return fmt.Errorf("timed out acquiring lock %s", key)
	}
	return nil
}

func ReleaseDeviationLock(tx *gorm.DB, businessId string, deviationId int) {
	// Best effort; the lock dies with the connection anyway.
	tx.Exec("SELECT RELEASE_LOCK(?)", deviationLockKey(businessId, deviationId))
}
