package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"github.com/ValentinKolb/kiln/lib/store"
	"reflect"
	"strings"
	"time"
)

// --------------------------------------------------------------------------
// Typed Patches
// --------------------------------------------------------------------------
//
// One patch type per collection. A nil field is left untouched, a set field is
// written. Field names come from the json tags and must exist in the schema of
// the collection.

type CustomerPatch struct {
	Name     *string `json:"name"`
	Email    *string `json:"email"`
	Phone    *string `json:"phone"`
	SMSOptIn *bool   `json:"smsOptIn"`
	Notes    *string `json:"notes"`
}

func (p CustomerPatch) Collection() string   { return Customers }
func (p CustomerPatch) Fields() store.Record { return fieldsOf(p) }

type PiecePatch struct {
	CustomerID       *string        `json:"customerId"`
	Title            *string        `json:"title"`
	Status           *string        `json:"status"`
	CubicInches      *float64       `json:"cubicInches"`
	PaidGlaze        *bool          `json:"paidGlaze"`
	Glaze            map[string]any `json:"glaze"`
	Photos           []string       `json:"photos"`
	PickupNotifiedAt *time.Time     `json:"pickupNotifiedAt"`
}

func (p PiecePatch) Collection() string   { return Pieces }
func (p PiecePatch) Fields() store.Record { return fieldsOf(p) }

type EventPatch struct {
	Title       *string    `json:"title"`
	Description *string    `json:"description"`
	Location    *string    `json:"location"`
	StartsAt    *time.Time `json:"startsAt"`
	EndsAt      *time.Time `json:"endsAt"`
	Capacity    *int       `json:"capacity"`
	PriceCents  *int       `json:"priceCents"`
	ICSURL      *string    `json:"icsURL"`
}

func (p EventPatch) Collection() string   { return Events }
func (p EventPatch) Fields() store.Record { return fieldsOf(p) }

type EventBookingPatch struct {
	Seats *int    `json:"seats"`
	Paid  *bool   `json:"paid"`
	Notes *string `json:"notes"`
}

func (p EventBookingPatch) Collection() string   { return EventBookings }
func (p EventBookingPatch) Fields() store.Record { return fieldsOf(p) }

type SettingsPatch struct {
	StudioName           *string        `json:"studioName"`
	TaxIDNumber          *string        `json:"taxIDNumber"`
	PickupReminderDays   *int           `json:"pickupReminderDays"`
	GlazeFeeCents        *int           `json:"glazeFeeCents"`
	NotificationsEnabled *bool          `json:"notificationsEnabled"`
	BusinessHours        map[string]any `json:"businessHours"`
}

func (p SettingsPatch) Collection() string   { return Settings }
func (p SettingsPatch) Fields() store.Record { return fieldsOf(p) }

type TemplatePatch struct {
	Name    *string `json:"name"`
	Channel *string `json:"channel"`
	Subject *string `json:"subject"`
	Body    *string `json:"body"`
}

func (p TemplatePatch) Collection() string   { return Templates }
func (p TemplatePatch) Fields() store.Record { return fieldsOf(p) }

// fieldsOf collects the set fields of a patch struct.
func fieldsOf(patch any) store.Record {
	rv := reflect.ValueOf(patch)
	rt := rv.Type()
	fields := make(store.Record, rt.NumField())
	for i := 0; i < rt.NumField(); i++ {
		name, _, _ := strings.Cut(rt.Field(i).Tag.Get("json"), ",")
		if name == "" || name == "-" {
			continue
		}
		fv := rv.Field(i)
		switch fv.Kind() {
		case reflect.Pointer:
			if !fv.IsNil() {
				fields[name] = fv.Elem().Interface()
			}
		case reflect.Map, reflect.Slice:
			if !fv.IsNil() {
				fields[name] = fv.Interface()
			}
		default:
			fields[name] = fv.Interface()
		}
	}
	return fields
}

// --------------------------------------------------------------------------
// Routing Helpers
// --------------------------------------------------------------------------

// Update applies a typed patch to the record id of the patch's collection.
func Update(s store.IStore, id string, patch store.CollectionPatch) error {
	return s.UpdatePartial(patch.Collection(), id, patch)
}

// Change is one entry of a typed bulk update.
type Change[P store.CollectionPatch] struct {
	ID    string
	Patch P
}

// BulkUpdate applies typed patches of one collection with a single UpdateBulk call.
func BulkUpdate[P store.CollectionPatch](s store.IStore, changes []Change[P]) error {
	var zero P
	updates := make([]store.BulkUpdate, len(changes))
	for i, c := range changes {
		updates[i] = store.BulkUpdate{ID: c.ID, Patch: c.Patch}
	}
	return s.UpdateBulk(zero.Collection(), updates)
}

// DecodePatch parses a JSON object into the typed patch of the collection.
// Unknown field names are rejected. Collections without a typed patch get store.Fields.
func DecodePatch(collection string, data []byte) (store.Patch, error) {
	var target store.Patch
	switch collection {
	case Customers:
		target = &CustomerPatch{}
	case Pieces:
		target = &PiecePatch{}
	case Events:
		target = &EventPatch{}
	case EventBookings:
		target = &EventBookingPatch{}
	case Settings:
		target = &SettingsPatch{}
	case Templates:
		target = &TemplatePatch{}
	default:
		fields := store.Fields{}
		if err := json.Unmarshal(data, &fields); err != nil {
			return nil, fmt.Errorf("invalid patch: %w", err)
		}
		return fields, nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(target); err != nil {
		return nil, fmt.Errorf("invalid patch for %s: %w", collection, err)
	}
	// dereference, the patch types are used by value
	return reflect.ValueOf(target).Elem().Interface().(store.Patch), nil
}

// Ptr returns a pointer to v, for filling patches.
func Ptr[T any](v T) *T {
	return &v
}
