package models

// ProductDescriptor is a purchasable product returned by the catalog service.
// Everything except ID is display metadata.
type ProductDescriptor struct {
	ID          string `json:"id"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Price       string `json:"price,omitempty"`
	Currency    string `json:"currency,omitempty"`
}
