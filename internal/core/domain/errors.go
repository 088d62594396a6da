package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrAccountNotFound     = fmt.Errorf("account %w", ErrNotFound)
	ErrPromotionNotFound   = fmt.Errorf("promotion %w", ErrNotFound)
	ErrEventNotFound       = fmt.Errorf("event %w", ErrNotFound)
	ErrTransactionNotFound = fmt.Errorf("transaction %w", ErrNotFound)

	ErrForbidden          = errors.New("forbidden")
	ErrInsufficientPoints = errors.New("insufficient points")
	ErrInsufficientPool   = errors.New("insufficient event points pool")
	ErrValidation         = errors.New("validation failed")

	// Promotion validation.
	ErrDuplicatePromotion     = errors.New("duplicate promotion")
	ErrPromotionAlreadyUsed   = errors.New("promotion already used")
	ErrPromotionExpired       = errors.New("promotion is not active")
	ErrPromotionNotApplicable = errors.New("promotion not applicable")

	// Redemption workflow.
	ErrWrongTransactionType = errors.New("wrong transaction type")
	ErrAlreadyProcessed     = errors.New("transaction already processed")

	ErrBrokerUnavailable  = errors.New("kafka broker is unavailable")
	ErrStorageUnavailable = errors.New("database is unavailable")
)
