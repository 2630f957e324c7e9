package tickets

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"ms-raffle/internal/models"
)

// reportNumbers is the fixed 00-99 grid every report lists
const reportNumbers = 100

// SalesReport sums the vendor's sales per number. Numbers 00 to 99 are always
// present; numeric numbers outside that grid are appended when sold.
func (s *TicketService) SalesReport(ctx context.Context, eventID, vendorEmail string) (*models.SalesReport, error) {
	if vendorEmail == "" {
		return nil, ErrNoVendor
	}
	ctx, span := s.startSpan(ctx, "tickets.report", eventID)
	defer span.End()

	tickets, err := s.DB.ListTickets(ctx, eventID, vendorEmail)
	if err != nil {
		s.Logger.Error("TICKETS", fmt.Sprintf("failed to build sales report of event %s: %v", eventID, err))
		return nil, err
	}

	sold := make(map[int]int, reportNumbers)
	for n := 0; n < reportNumbers; n++ {
		sold[n] = 0
	}
	total := 0
	for _, ticket := range tickets {
		for _, row := range ticket.Rows {
			if row.Quantity <= 0 {
				continue
			}
			n, err := strconv.Atoi(strings.TrimSpace(row.Number))
			if err != nil || n < 0 {
				continue
			}
			sold[n] += row.Quantity
			total += row.Quantity
		}
	}

	keys := make([]int, 0, len(sold))
	for n := range sold {
		keys = append(keys, n)
	}
	sort.Ints(keys)

	report := &models.SalesReport{
		EventID:        eventID,
		VendorEmail:    vendorEmail,
		Numbers:        make([]models.NumberSales, 0, len(keys)),
		TotalTimesSold: total,
		TotalAmount:    s.amount(total),
	}
	for _, n := range keys {
		report.Numbers = append(report.Numbers, models.NumberSales{Number: fmt.Sprintf("%02d", n), TimesSold: sold[n]})
	}
	return report, nil
}
