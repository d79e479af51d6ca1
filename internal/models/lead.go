package models

import (
	"strconv"
	"time"
)

// Notification types carried by inbound postbacks. A record's type is the
// lifecycle stage of the lead it represents.
const (
	TypeLead      = "lead"
	TypeConversao = "conversao"
	TypeCancel    = "cancel"
	TypeTrash     = "trash"
)

// LeadRecord is one row in the leads table. A record is created by the first
// notification seen for a lead and mutated in place by later ones. The
// attribution date and created_at are fixed at creation.
type LeadRecord struct {
	ID               int64    `json:"id"`
	LeadID           *string  `json:"lead_id,omitempty"`
	OfferID          *string  `json:"offer_id,omitempty"`
	Campaign         *string  `json:"campaign,omitempty"`
	Adset            *string  `json:"adset,omitempty"`
	Ad               *string  `json:"ad,omitempty"`
	Sub1             *string  `json:"sub1,omitempty"`
	Sub2             *string  `json:"sub2,omitempty"`
	Sub3             *string  `json:"sub3,omitempty"`
	Sub4             *string  `json:"sub4,omitempty"`
	Sub5             *string  `json:"sub5,omitempty"`
	Sub6             *string  `json:"sub6,omitempty"`
	Sub7             *string  `json:"sub7,omitempty"`
	Sub8             *string  `json:"sub8,omitempty"`
	Status           *string  `json:"status,omitempty"`
	Payout           *float64 `json:"payout,omitempty"`
	Category         *string  `json:"category,omitempty"`
	NotificationType string   `json:"notification_type"`
	UTMSource        *string  `json:"utm_source,omitempty"`
	UTMMedium        *string  `json:"utm_medium,omitempty"`

	// Date is the attribution date (YYYY-MM-DD in the tracking timezone),
	// nil only on rows predating the column.
	Date      *string   `json:"date,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// EffectiveDate returns the attribution date, falling back to the creation
// day for rows that predate the date column.
func (l *LeadRecord) EffectiveDate(loc *time.Location) string {
	if l.Date != nil && *l.Date != "" {
		return *l.Date
	}
	return l.CreatedAt.In(loc).Format("2006-01-02")
}

// Identity returns the key reporting uses to group rows belonging to the
// same real-world lead. Rows without a leadId are each their own identity.
func (l *LeadRecord) Identity() string {
	if l.LeadID != nil && *l.LeadID != "" {
		return *l.LeadID
	}
	return "unique_" + strconv.FormatInt(l.ID, 10)
}

// LeadUpdate is the partial-field mutation applied to an existing record
// when a later notification resolves to it. NotificationType always
// overwrites; Status and Payout overwrite when present; LeadID, OfferID and
// Category fill only when set per the resolver's merge rules.
type LeadUpdate struct {
	NotificationType string
	Status           *string
	Payout           *float64
	LeadID           *string
	OfferID          *string
	Category         *string
}
