package status

import (
	"encoding/json"
	"time"

	"github.com/go-playground/validator/v10"
	pkgerrors "github.com/paperbound/lcp-client/pkg/errors"
)

// Lifecycle states a Status Document can report.
const (
	StatusReady     = "ready"
	StatusActive    = "active"
	StatusExpired   = "expired"
	StatusReturned  = "returned"
	StatusRevoked   = "revoked"
	StatusCancelled = "cancelled"
)

// Link relations used by the validation flow.
const (
	RelLicense  = "license"
	RelRegister = "register"
	RelReturn   = "return"
	RelRenew    = "renew"
)

// EventTypeRegister marks a device registration event.
const EventTypeRegister = "register"

// Document is a parsed Status Document describing the provider-side
// lifecycle of a license copy.
type Document struct {
	LicenseRef      string           `json:"id" validate:"required"`
	Status          string           `json:"status" validate:"required,oneof=ready active expired returned revoked cancelled"`
	Updated         *Updated         `json:"updated,omitempty"`
	Message         string           `json:"message"`
	Links           []Link           `json:"links,omitempty"`
	DeviceCount     *int             `json:"device_count,omitempty"`
	PotentialRights *PotentialRights `json:"potential_rights,omitempty"`
	Events          []Event          `json:"events,omitempty"`

	raw []byte
}

// Updated carries the authoritative license and status timestamps.
type Updated struct {
	License *time.Time `json:"license,omitempty"`
	Status  *time.Time `json:"status,omitempty"`
}

type Link struct {
	Rel       string `json:"rel"`
	Href      string `json:"href"`
	Type      string `json:"type,omitempty"`
	Title     string `json:"title,omitempty"`
	Profile   string `json:"profile,omitempty"`
	Templated bool   `json:"templated,omitempty"`
}

type PotentialRights struct {
	End *time.Time `json:"end,omitempty"`
}

type Event struct {
	Type       string    `json:"type"`
	DeviceName string    `json:"name"`
	DeviceID   string    `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
}

var validate = validator.New()

// Parse builds a Document from raw status bytes.
func Parse(data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeParsing, err, "unmarshal status document").WithDetails("status")
	}
	if err := validate.Struct(&doc); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeParsing, err, "status document missing mandatory fields").WithDetails("status")
	}
	doc.raw = append([]byte(nil), data...)
	return &doc, nil
}

// Raw returns the exact bytes the document was parsed from.
func (d *Document) Raw() []byte {
	return d.raw
}

// LicenseUpdated returns the provider's latest license timestamp, zero when
// absent.
func (d *Document) LicenseUpdated() time.Time {
	if d.Updated != nil && d.Updated.License != nil {
		return *d.Updated.License
	}
	return time.Time{}
}

// StatusUpdated returns the timestamp of the last status change, zero when
// absent.
func (d *Document) StatusUpdated() time.Time {
	if d.Updated != nil && d.Updated.Status != nil {
		return *d.Updated.Status
	}
	return time.Time{}
}

// Link returns the first link with the given relation, or nil.
func (d *Document) Link(rel string) *Link {
	for i := range d.Links {
		if d.Links[i].Rel == rel {
			return &d.Links[i]
		}
	}
	return nil
}

// RegisteredDevices counts the register events recorded by the provider.
func (d *Document) RegisteredDevices() int {
	count := 0
	for _, event := range d.Events {
		if event.Type == EventTypeRegister {
			count++
		}
	}
	return count
}
