package model

import (
	"strconv"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

const (
	SettingLibraryName     = "library_name"
	SettingMaxBorrowDays   = "max_borrow_days"
	SettingMaxBooksPerUser = "max_books_per_user"
	SettingFinePerDay      = "fine_per_day"
	SettingMaxRenewals     = "max_renewals"
)

type Settings struct {
	LibraryName     string          `json:"libraryName"`
	MaxBorrowDays   int             `json:"maxBorrowDays"`
	MaxBooksPerUser int             `json:"maxBooksPerUser"`
	FinePerDay      decimal.Decimal `json:"finePerDay"`
	MaxRenewals     int             `json:"maxRenewals"`
}

func DefaultSettings() Settings {
	return Settings{
		LibraryName:     "Library Management System",
		MaxBorrowDays:   14,
		MaxBooksPerUser: 5,
		FinePerDay:      decimal.NewFromInt(5),
		MaxRenewals:     2,
	}
}

// ParseSettings overlays stored key/value pairs on the defaults.
// Unknown keys are ignored.
func ParseSettings(kv map[string]string) (Settings, error) {
	s := DefaultSettings()
	for key, value := range kv {
		var err error
		switch key {
		case SettingLibraryName:
			s.LibraryName = value
		case SettingMaxBorrowDays:
			s.MaxBorrowDays, err = positiveInt(value)
		case SettingMaxBooksPerUser:
			s.MaxBooksPerUser, err = positiveInt(value)
		case SettingMaxRenewals:
			s.MaxRenewals, err = strconv.Atoi(value)
			if err == nil && s.MaxRenewals < 0 {
				err = errors.New("must not be negative")
			}
		case SettingFinePerDay:
			s.FinePerDay, err = decimal.NewFromString(value)
			if err == nil && s.FinePerDay.IsNegative() {
				err = errors.New("must not be negative")
			}
		}
		if err != nil {
			return DefaultSettings(), errors.Wrapf(err, "setting %s=%q", key, value)
		}
	}
	return s, nil
}

func positiveInt(v string) (int, error) {
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, errors.New("must be positive")
	}
	return n, nil
}
