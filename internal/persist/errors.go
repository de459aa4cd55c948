// internal/persist/errors.go
package persist

import (
	"errors"
	"fmt"
	"time"

	"github.com/alsub25/Pocket-RPG-sub006/internal/audit"
)

var (
	ErrNoSave            = errors.New("no save found")
	ErrCorrupt           = errors.New("save data corrupt")
	ErrChecksum          = errors.New("save checksum invalid")
	ErrCriticalIntegrity = errors.New("critical integrity failure")
	ErrSlotNotFound      = errors.New("save slot not found")
)

// StorageError wraps a failed read, write or remove against the store
type StorageError struct {
	Op  string
	Key string
	At  time.Time
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// CorruptionError reports save data that cannot be parsed or migrated
type CorruptionError struct {
	Op     string
	Key    string
	Reason string
	At     time.Time
	Err    error
}

func (e *CorruptionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s: %s: %v", e.Op, e.Key, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s %s: %s", e.Op, e.Key, e.Reason)
}

func (e *CorruptionError) Unwrap() error {
	return e.Err
}

func (e *CorruptionError) Is(target error) bool {
	return target == ErrCorrupt
}

// ChecksumError reports an envelope whose checksum does not validate
type ChecksumError struct {
	Op     string
	Key    string
	Reason string
	At     time.Time
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("%s %s: checksum invalid: %s", e.Op, e.Key, e.Reason)
}

// Is matches both ErrChecksum and ErrCorrupt: a bad checksum is one kind of corrupt save.
func (e *ChecksumError) Is(target error) bool {
	return target == ErrChecksum || target == ErrCorrupt
}

// IntegrityError reports a save refused because the live state failed a critical audit
type IntegrityError struct {
	Op     string
	Report audit.Report
	At     time.Time
}

func (e *IntegrityError) Error() string {
	rules := make([]string, 0, len(e.Report.Issues))
	for _, issue := range e.Report.Issues {
		if issue.Severity == audit.SeverityCritical {
			rules = append(rules, issue.Rule)
		}
	}
	return fmt.Sprintf("%s: critical integrity failure: %v", e.Op, rules)
}

func (e *IntegrityError) Is(target error) bool {
	return target == ErrCriticalIntegrity
}
