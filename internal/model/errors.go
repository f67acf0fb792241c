package model

import (
	"errors"

	"ZakatSentinel/internal/hijri"
)

// Error kinds surfaced by the eligibility core. Callers match them with errors.Is.
var (
	// ErrInvalidDate: a date the calendar converter cannot represent.
	ErrInvalidDate = hijri.ErrInvalidDate
	// ErrCorruptHistory: persisted history decrypted but failed structural validation.
	ErrCorruptHistory = errors.New("corrupt history")
	// ErrDecryptionFailed: wrong or missing key, or tampered ciphertext.
	ErrDecryptionFailed = errors.New("decryption failed")
)
