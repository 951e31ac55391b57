package device

import (
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"
)

const maxNameLength = 100

// ValidateDevice checks a device before it is persisted.
func ValidateDevice(d *Device) error {
	if d == nil {
		return fmt.Errorf("%w: device is nil", ErrInvalidDevice)
	}
	if d.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidDevice)
	}
	if err := ValidateName(d.Name); err != nil {
		return err
	}
	if strings.TrimSpace(d.UserID) == "" {
		return fmt.Errorf("%w: user id is required", ErrInvalidUser)
	}
	if !slices.Contains(ValidTypes, d.Type) {
		return fmt.Errorf("%w: %q", ErrInvalidType, d.Type)
	}
	return nil
}

// ValidateName checks that a device name is present and not too long.
func ValidateName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: name cannot be empty", ErrInvalidName)
	}
	if len(name) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidName, maxNameLength)
	}
	return nil
}

// GenerateID returns a new random device identifier.
func GenerateID() string {
	return uuid.New().String()
}
