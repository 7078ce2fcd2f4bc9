package status

import (
	"fmt"
	"time"
)

// ErrorKind identifies why a well-formed license is not usable.
type ErrorKind string

const (
	KindExpired   ErrorKind = "expired"
	KindReturned  ErrorKind = "returned"
	KindRevoked   ErrorKind = "revoked"
	KindCancelled ErrorKind = "cancelled"
)

// Error reports that a license is technically valid but cannot be used to
// open the publication. It is carried inside the validated documents rather
// than failing validation, so callers can still read license metadata.
type Error struct {
	Kind        ErrorKind
	Start       *time.Time
	End         *time.Time
	Date        *time.Time
	DeviceCount int
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindExpired:
		return fmt.Sprintf("license expired (start %s, end %s)", formatTime(e.Start), formatTime(e.End))
	case KindReturned:
		return fmt.Sprintf("license returned on %s", formatTime(e.Date))
	case KindRevoked:
		return fmt.Sprintf("license revoked on %s after %d device registrations", formatTime(e.Date), e.DeviceCount)
	case KindCancelled:
		return fmt.Sprintf("license cancelled on %s", formatTime(e.Date))
	}
	return "license not usable"
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "unknown"
	}
	return t.Format(time.RFC3339)
}
