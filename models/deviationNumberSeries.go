package models

import (
	"errors"
	"fmt"
	"time"

	mysqlDriver "github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func isDuplicateKeyErr(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return false
}

// DeviationNumberSeries hands out sequential, human-readable deviation
// numbers per tenant and calendar year (auditors expect no gaps within a
// year, so the row is locked for the duration of the issuing transaction).
type DeviationNumberSeries struct {
	ID         int    `gorm:"primary_key" json:"id"`
	BusinessId string `gorm:"size:64;not null;uniqueIndex:idx_series_business_year,priority:1" json:"business_id"`
	Year       int    `gorm:"not null;uniqueIndex:idx_series_business_year,priority:2" json:"year"`
	Prefix     string `gorm:"size:10;not null;default:'DEV'" json:"prefix"`
	LastSeq    int    `gorm:"not null;default:0" json:"last_seq"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// NextDeviationNumber issues the next number in the tenant-year series,
// creating the series row on first use. Must run inside the caller's
// transaction so a rolled-back create does not burn a number.
func NextDeviationNumber(tx *gorm.DB, businessId string, year int) (string, error) {
	var series DeviationNumberSeries
	err := tx.
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("business_id = ? AND year = ?", businessId, year).
		First(&series).Error
	if err == gorm.ErrRecordNotFound {
		series = DeviationNumberSeries{
			BusinessId: businessId,
			Year:       year,
			Prefix:     "DEV",
		}
		if err := tx.Create(&series).Error; err != nil {
			// Two transactions racing on first use of a year: the loser
			// re-reads the row the winner just inserted.
			if !isDuplicateKeyErr(err) {
				return "", err
			}
			if err := tx.
				Clauses(clause.Locking{Strength: "UPDATE"}).
				Where("business_id = ? AND year = ?", businessId, year).
				First(&series).Error; err != nil {
				return "", err
			}
		}
	} else if err != nil {
		return "", err
	}

	series.LastSeq++
	if err := tx.Model(&DeviationNumberSeries{}).
		Where("id = ?", series.ID).
		Update("last_seq", series.LastSeq).Error; err != nil {
		return "", err
	}

	return FormatDeviationNumber(series.Prefix, year, series.LastSeq), nil
}

func FormatDeviationNumber(prefix string, year int, seq int) string {
	return fmt.Sprintf("%s-%d-%04d", prefix, year, seq)
}
