package model

// Tariff is a price tier scoped to a session. Each seat links to at most
// one tariff; seats without a tariff price at 0 (spec §4.3 step 5).
//
// Fields:
//  ID          – UUID primary key.
//  SessionID   – session this tariff applies to.
//  Name        – display name (e.g. "Standard", "VIP").
//  PriceCents  – fixed-point price in integer minor units (Design Note,
//                §9 "Numeric semantics").
type Tariff struct {
	ID         string // tariffs.id
	SessionID  string // tariffs.session_id
	Name       string // tariffs.name
	PriceCents uint64 // tariffs.price_cents
}
