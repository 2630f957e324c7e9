package models

// NumberSales is how many times one number was sold in a report
type NumberSales struct {
	Number    string `json:"number"`
	TimesSold int    `json:"timesSold"`
}

// SalesReport aggregates one vendor's tickets for an event. Numbers always
// lists 00-99, plus any larger number that was sold, in numeric order.
type SalesReport struct {
	EventID        string        `json:"eventId"`
	VendorEmail    string        `json:"vendorEmail"`
	Numbers        []NumberSales `json:"numbers"`
	TotalTimesSold int           `json:"totalTimesSold"`
	TotalAmount    float64       `json:"totalAmount"`
}
