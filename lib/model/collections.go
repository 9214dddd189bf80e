package model

import (
	"fmt"
	"github.com/ValentinKolb/kiln/lib/relational"
)

// --------------------------------------------------------------------------
// Collections
// --------------------------------------------------------------------------

// Names of the studio collections.
const (
	Customers     = "customers"
	Pieces        = "pieces"
	Events        = "events"
	EventBookings = "eventBookings"
	Settings      = "settings"
	Templates     = "templates"
)

// Collections lists every studio collection. Backups of the remote store cover exactly these.
var Collections = []string{Customers, Pieces, Events, EventBookings, Settings, Templates}

// Tables is the closed lookup from collection to table name of the relational service.
// Collections missing here use their own name.
var Tables = map[string]string{
	EventBookings: "event_bookings",
	Settings:      "studio_settings",
	Templates:     "notification_templates",
}

// TableName returns the table a collection is stored in.
func TableName(collection string) string {
	if table, ok := Tables[collection]; ok {
		return table
	}
	return collection
}

// Schemas holds the field/column tables of every collection, built once from the record types.
var Schemas = mustRegistry(
	schemaOf(Customers, Customer{}),
	schemaOf(Pieces, Piece{}),
	schemaOf(Events, Event{}),
	schemaOf(EventBookings, EventBooking{}),
	schemaOf(Settings, StudioSettings{}),
	schemaOf(Templates, Template{}),
)

func schemaOf(collection string, prototype any) *relational.Schema {
	s, err := relational.SchemaOf(collection, prototype)
	if err != nil {
		panic(fmt.Sprintf("model: %v", err))
	}
	return s
}

func mustRegistry(schemas ...*relational.Schema) *relational.Registry {
	r, err := relational.NewRegistry(schemas...)
	if err != nil {
		panic(fmt.Sprintf("model: %v", err))
	}
	return r
}
