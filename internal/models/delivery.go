package models

import "time"

type DeliveryMethod string

const (
	MethodEmail  DeliveryMethod = "email"
	MethodSheets DeliveryMethod = "sheets"
	MethodBoth   DeliveryMethod = "both"
)

func (m DeliveryMethod) Valid() bool {
	return m == MethodEmail || m == MethodSheets || m == MethodBoth
}

const (
	DeliveryStatusDelivered = "delivered"
	DeliveryStatusPartial   = "partial"
)

// Delivery is the audit record of one lead sent to one client.
type Delivery struct {
	ID             string         `json:"id" firestore:"-"`
	LeadID         string         `json:"lead_id" firestore:"leadId"`
	ClientID       string         `json:"client_id" firestore:"clientId"`
	Method         DeliveryMethod `json:"method" firestore:"method"`
	Status         string         `json:"status" firestore:"status"`
	Errors         []string       `json:"errors,omitempty" firestore:"errors"`
	ExclusiveUntil *time.Time     `json:"exclusive_until,omitempty" firestore:"exclusiveUntil"`
	DeliveredAt    time.Time      `json:"delivered_at" firestore:"deliveredAt"`
}

// DeliverySchedule is the throttle plan generated for one package purchase.
type DeliverySchedule struct {
	ID              string         `json:"id" firestore:"-"`
	ClientID        string         `json:"client_id" firestore:"clientId"`
	Mode            string         `json:"mode" firestore:"mode"`
	Quantity        int            `json:"quantity" firestore:"quantity"`
	StartDate       string         `json:"start_date" firestore:"startDate"`
	Targets         map[string]int `json:"targets" firestore:"targets"`
	DeliveredByDate map[string]int `json:"delivered_by_date" firestore:"deliveredByDate"`
	CreatedAt       time.Time      `json:"created_at" firestore:"createdAt"`
}
