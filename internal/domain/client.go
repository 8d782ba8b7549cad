package domain

// Client — карточка клиента из справочника. Ядро её только читает.
type Client struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Address string `json:"address,omitempty"`
	// TaxID — CIF или DNI.
	TaxID string `json:"tax_id"`
	Email string `json:"email,omitempty"`
}
