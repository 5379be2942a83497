package dto

// PurchaseRequest payload to start a ticket purchase.
type PurchaseRequest struct {
	Meal      string `json:"meal"`
	TierClass string `json:"tier_class"`
}

// PurchaseResponse returns the checkout redirect and the pending ticket.
type PurchaseResponse struct {
	TicketID    string `json:"ticket_id"`
	RedirectURL string `json:"redirect_url"`
}
