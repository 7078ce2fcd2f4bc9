package license

import (
	"encoding/json"
	"net/url"
	"time"

	"github.com/go-playground/validator/v10"
	pkgerrors "github.com/paperbound/lcp-client/pkg/errors"
)

// Link relations used by the validation flow.
const (
	RelHint        = "hint"
	RelStatus      = "status"
	RelPublication = "publication"
	RelSelf        = "self"
)

// Document is an immutable License Document. It wraps the raw bytes it was
// parsed from; accessors never mutate it.
type Document struct {
	Provider   string     `json:"provider" validate:"required"`
	UUID       string     `json:"id" validate:"required"`
	Issued     time.Time  `json:"issued" validate:"required"`
	Updated    *time.Time `json:"updated,omitempty"`
	Encryption Encryption `json:"encryption"`
	Links      []Link     `json:"links,omitempty"`
	User       UserInfo   `json:"user"`
	Rights     UserRights `json:"rights"`
	Signature  Signature  `json:"signature"`

	raw []byte
}

type Encryption struct {
	Profile    string     `json:"profile" validate:"required"`
	ContentKey ContentKey `json:"content_key"`
	UserKey    UserKey    `json:"user_key"`
}

type ContentKey struct {
	Algorithm string `json:"algorithm,omitempty"`
	Value     []byte `json:"encrypted_value,omitempty"`
}

type UserKey struct {
	Algorithm string `json:"algorithm,omitempty"`
	TextHint  string `json:"text_hint,omitempty"`
	Keycheck  []byte `json:"key_check,omitempty"`
}

type UserInfo struct {
	ID        string   `json:"id,omitempty"`
	Email     string   `json:"email,omitempty"`
	Name      string   `json:"name,omitempty"`
	Encrypted []string `json:"encrypted,omitempty"`
}

type Link struct {
	Rel       string `json:"rel"`
	Href      string `json:"href"`
	Type      string `json:"type,omitempty"`
	Title     string `json:"title,omitempty"`
	Profile   string `json:"profile,omitempty"`
	Templated bool   `json:"templated,omitempty"`
	Size      int64  `json:"length,omitempty"`
	Checksum  string `json:"hash,omitempty"`
}

type UserRights struct {
	Start *time.Time `json:"start,omitempty"`
	End   *time.Time `json:"end,omitempty"`
	Print *int32     `json:"print,omitempty"`
	Copy  *int32     `json:"copy,omitempty"`
}

type Signature struct {
	Certificate []byte `json:"certificate"`
	Value       []byte `json:"value"`
	Algorithm   string `json:"algorithm"`
}

var validate = validator.New()

// Parse builds a Document from raw license bytes. It fails on malformed
// JSON, missing mandatory fields, and non-templated links whose href is not
// a valid URI.
func Parse(data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeParsing, err, "unmarshal license document").WithDetails("license")
	}
	if err := validate.Struct(&doc); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeParsing, err, "license document missing mandatory fields").WithDetails("license")
	}
	for _, link := range doc.Links {
		if link.Rel == "" {
			return nil, pkgerrors.New(pkgerrors.CodeParsing, "license link without rel").WithDetails("license")
		}
		if link.Templated {
			continue
		}
		if _, err := url.ParseRequestURI(link.Href); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeParsing, err, "license link href is not a valid uri").WithDetails("license")
		}
	}
	doc.raw = append([]byte(nil), data...)
	return &doc, nil
}

// Raw returns the exact bytes the document was parsed from.
func (d *Document) Raw() []byte {
	return d.raw
}

// UpdatedAt returns the authoritative document timestamp: updated when
// present, issued otherwise.
func (d *Document) UpdatedAt() time.Time {
	if d.Updated != nil {
		return *d.Updated
	}
	return d.Issued
}

// Profile returns the normalized encryption profile URI.
func (d *Document) Profile() string {
	return d.Encryption.Profile
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

// RightsStart returns the start of the rights window, nil when unbounded.
func (d *Document) RightsStart() *time.Time {
	return d.Rights.Start
}

// RightsEnd returns the end of the rights window, nil when unbounded.
func (d *Document) RightsEnd() *time.Time {
	return d.Rights.End
}
