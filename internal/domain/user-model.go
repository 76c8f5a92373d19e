package domain

import (
	"errors"
	"fmt"
)

// Field names of a registration. They double as column names of the users table.
const (
	FieldFirstName           = "first_name"
	FieldLastName            = "last_name"
	FieldPatronymic          = "patronymic"
	FieldCustomerPhone       = "customer_phone"
	FieldContactPhone        = "contact_phone"
	FieldOrganizationName    = "organization_name"
	FieldSocialMediaPlatform = "social_media_platform"
	FieldSocialMediaHandle   = "social_media_handle"
)

// Columns lists the record fields in insert order.
var Columns = []string{
	FieldFirstName,
	FieldLastName,
	FieldPatronymic,
	FieldCustomerPhone,
	FieldContactPhone,
	FieldOrganizationName,
	FieldSocialMediaPlatform,
	FieldSocialMediaHandle,
}

// ErrIncompleteRecord is returned when a required field is missing.
var ErrIncompleteRecord = errors.New("incomplete user record")

// UserRecord is the finalized snapshot of a completed registration.
type UserRecord struct {
	FirstName           string `json:"first_name"`
	LastName            string `json:"last_name"`
	Patronymic          string `json:"patronymic,omitempty"`
	CustomerPhone       string `json:"customer_phone"`
	ContactPhone        string `json:"contact_phone"`
	OrganizationName    string `json:"organization_name"`
	SocialMediaPlatform string `json:"social_media_platform"`
	SocialMediaHandle   string `json:"social_media_handle"`
}

// StoredUser is a persisted registration.
type StoredUser struct {
	ID int64 `json:"id"`
	UserRecord
}

// NewUserRecord assembles a record from collected session fields.
func NewUserRecord(fields map[string]string) (UserRecord, error) {
	rec := UserRecord{
		FirstName:           fields[FieldFirstName],
		LastName:            fields[FieldLastName],
		Patronymic:          fields[FieldPatronymic],
		CustomerPhone:       fields[FieldCustomerPhone],
		ContactPhone:        fields[FieldContactPhone],
		OrganizationName:    fields[FieldOrganizationName],
		SocialMediaPlatform: fields[FieldSocialMediaPlatform],
		SocialMediaHandle:   fields[FieldSocialMediaHandle],
	}
	if err := rec.Validate(); err != nil {
		return UserRecord{}, err
	}
	return rec, nil
}

// Validate checks that every field except the patronymic is present.
func (r UserRecord) Validate() error {
	for _, f := range Columns {
		if f == FieldPatronymic {
			continue
		}
		if r.Get(f) == "" {
			return fmt.Errorf("%w: %s is empty", ErrIncompleteRecord, f)
		}
	}
	return nil
}

// Get returns the value stored under a field name.
func (r UserRecord) Get(field string) string {
	switch field {
	case FieldFirstName:
		return r.FirstName
	case FieldLastName:
		return r.LastName
	case FieldPatronymic:
		return r.Patronymic
	case FieldCustomerPhone:
		return r.CustomerPhone
	case FieldContactPhone:
		return r.ContactPhone
	case FieldOrganizationName:
		return r.OrganizationName
	case FieldSocialMediaPlatform:
		return r.SocialMediaPlatform
	case FieldSocialMediaHandle:
		return r.SocialMediaHandle
	}
	return ""
}

// GetFullName returns "Last First Patronymic" skipping empty parts
func (r UserRecord) GetFullName() string {
	name := r.LastName + " " + r.FirstName
	if r.Patronymic != "" {
		name += " " + r.Patronymic
	}
	return name
}
