package models

import "time"

// Client is a law firm that buys leads.
type Client struct {
	ID               string    `json:"id" firestore:"-"`
	Name             string    `json:"name" firestore:"name"`
	ContactEmail     string    `json:"contact_email" firestore:"contactEmail"`
	DeliveryEmail    string    `json:"delivery_email" firestore:"deliveryEmail"`
	Phone            string    `json:"phone,omitempty" firestore:"phone"`
	BalanceCents     int64     `json:"balance_cents" firestore:"balanceCents"`
	LeadsPurchased   int       `json:"leads_purchased" firestore:"leadsPurchased"`
	LeadsDelivered   int       `json:"leads_delivered" firestore:"leadsDelivered"`
	LeadsReplaced    int       `json:"leads_replaced" firestore:"leadsReplaced"`
	SheetsID         string    `json:"sheets_id,omitempty" firestore:"sheetsId"`
	StripeCustomerID string    `json:"stripe_customer_id,omitempty" firestore:"stripeCustomerId"`
	ThrottleMode     string    `json:"throttle_mode" firestore:"throttleMode"`
	Active           bool      `json:"active" firestore:"active"`
	CreatedAt        time.Time `json:"created_at" firestore:"createdAt"`
}
