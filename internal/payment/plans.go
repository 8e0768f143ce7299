package payment

import "fmt"

// Plan is a purchasable credit bundle. Price is in minor currency units
// (kopecks for RUB), the way Telegram invoices expect it.
type Plan struct {
	ID          string
	Title       string
	Description string
	Price       int
	Currency    string
	Credits     int
}

// PriceMajor converts the plan price to major currency units.
func (p Plan) PriceMajor() float64 {
	return float64(p.Price) / 100
}

// Label renders the single invoice line item for this plan.
func (p Plan) Label() string {
	return fmt.Sprintf("%d credits", p.Credits)
}

// Plans is the static plan table. Plan ids are part of the invoice
// payload format and must not contain underscores.
var Plans = map[string]Plan{
	"basic": {
		ID:          "basic",
		Title:       "Basic Pack",
		Description: "20 photo analysis credits",
		Price:       9900,
		Currency:    "RUB",
		Credits:     20,
	},
	"pro": {
		ID:          "pro",
		Title:       "Pro Pack",
		Description: "100 photo analysis credits",
		Price:       34900,
		Currency:    "RUB",
		Credits:     100,
	},
}
