package model

import "time"

// --------------------------------------------------------------------------
// Record Types
// --------------------------------------------------------------------------
//
// The record types declare the field name of every collection (json tag) and
// its column in the relational service (col tag). They are the single source of
// the field/column mapping; see Schemas.

// Customer is a client of the studio.
type Customer struct {
	ID        string     `json:"id" col:"id"`
	Name      string     `json:"name" col:"name"`
	Email     string     `json:"email" col:"email"`
	Phone     string     `json:"phone" col:"phone"`
	SMSOptIn  bool       `json:"smsOptIn" col:"sms_opt_in"`
	Notes     string     `json:"notes" col:"notes"`
	CreatedAt time.Time  `json:"createdAt" col:"created_at"`
	UpdatedAt *time.Time `json:"updatedAt" col:"updated_at"`
}

// Piece is a work item of a customer moving through the firing process.
type Piece struct {
	ID               string         `json:"id" col:"id"`
	CustomerID       string         `json:"customerId" col:"customer_id"`
	Title            string         `json:"title" col:"title"`
	Status           string         `json:"status" col:"status"`
	CubicInches      float64        `json:"cubicInches" col:"cubic_inches"`
	PaidGlaze        bool           `json:"paidGlaze" col:"paid_glaze"`
	Glaze            map[string]any `json:"glaze" col:"glaze"`
	Photos           []string       `json:"photos" col:"photos"`
	PickupNotifiedAt *time.Time     `json:"pickupNotifiedAt" col:"pickup_notified_at"`
	CreatedAt        time.Time      `json:"createdAt" col:"created_at"`
	UpdatedAt        *time.Time     `json:"updatedAt" col:"updated_at"`
}

// Event is a scheduled class or open studio session.
type Event struct {
	ID          string     `json:"id" col:"id"`
	Title       string     `json:"title" col:"title"`
	Description string     `json:"description" col:"description"`
	Location    string     `json:"location" col:"location"`
	StartsAt    time.Time  `json:"startsAt" col:"starts_at"`
	EndsAt      time.Time  `json:"endsAt" col:"ends_at"`
	Capacity    int        `json:"capacity" col:"capacity"`
	PriceCents  int        `json:"priceCents" col:"price_cents"`
	ICSURL      string     `json:"icsURL" col:"ics_url"`
	CreatedAt   time.Time  `json:"createdAt" col:"created_at"`
	UpdatedAt   *time.Time `json:"updatedAt" col:"updated_at"`
}

// EventBooking is a reservation of seats of an event by a customer.
type EventBooking struct {
	ID         string     `json:"id" col:"id"`
	EventID    string     `json:"eventId" col:"event_id"`
	CustomerID string     `json:"customerId" col:"customer_id"`
	Seats      int        `json:"seats" col:"seats"`
	Paid       bool       `json:"paid" col:"paid"`
	BookedAt   time.Time  `json:"bookedAt" col:"booked_at"`
	Notes      string     `json:"notes" col:"notes"`
	CreatedAt  time.Time  `json:"createdAt" col:"created_at"`
	UpdatedAt  *time.Time `json:"updatedAt" col:"updated_at"`
}

// StudioSettings is the configuration record of the studio (usually a single record).
type StudioSettings struct {
	ID                   string         `json:"id" col:"id"`
	StudioName           string         `json:"studioName" col:"studio_name"`
	TaxIDNumber          string         `json:"taxIDNumber" col:"tax_id_number"`
	PickupReminderDays   int            `json:"pickupReminderDays" col:"pickup_reminder_days"`
	GlazeFeeCents        int            `json:"glazeFeeCents" col:"glaze_fee_cents"`
	NotificationsEnabled bool           `json:"notificationsEnabled" col:"notifications_enabled"`
	BusinessHours        map[string]any `json:"businessHours" col:"business_hours"`
	CreatedAt            time.Time      `json:"createdAt" col:"created_at"`
	UpdatedAt            *time.Time     `json:"updatedAt" col:"updated_at"`
}

// Template is a notification text (pickup ready, glaze reminder, ...).
type Template struct {
	ID        string     `json:"id" col:"id"`
	Name      string     `json:"name" col:"name"`
	Channel   string     `json:"channel" col:"channel"`
	Subject   string     `json:"subject" col:"subject"`
	Body      string     `json:"body" col:"body"`
	CreatedAt time.Time  `json:"createdAt" col:"created_at"`
	UpdatedAt *time.Time `json:"updatedAt" col:"updated_at"`
}
