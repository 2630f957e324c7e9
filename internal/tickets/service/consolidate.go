package tickets

import (
	"strconv"
	"strings"

	"ms-raffle/internal/models"
)

// NumberQty is one number with its summed quantity
type NumberQty struct {
	Number string
	Qty    int
}

// Consolidate sums quantities of repeated numbers, keeping the order in which
// numbers first appear. Numbers are trimmed, empty ones dropped.
func Consolidate(rows []models.TicketRow) []NumberQty {
	index := map[string]int{}
	out := []NumberQty{}
	for _, row := range rows {
		number := strings.TrimSpace(row.Number)
		if number == "" {
			continue
		}
		if i, ok := index[number]; ok {
			out[i].Qty += row.Quantity
			continue
		}
		index[number] = len(out)
		out = append(out, NumberQty{Number: number, Qty: row.Quantity})
	}
	return out
}

func quantities(consolidated []NumberQty) map[string]int {
	m := make(map[string]int, len(consolidated))
	for _, nq := range consolidated {
		m[nq.Number] = nq.Qty
	}
	return m
}

// normalizeRows trims numbers and drops rows that sell nothing
func normalizeRows(rows []models.TicketRow) []models.TicketRow {
	out := make([]models.TicketRow, 0, len(rows))
	for _, row := range rows {
		row.Number = strings.TrimSpace(row.Number)
		if row.Number == "" || row.Quantity <= 0 {
			continue
		}
		out = append(out, row)
	}
	return out
}

func numbersLabel(consolidated []NumberQty) string {
	parts := make([]string, 0, len(consolidated))
	for _, nq := range consolidated {
		parts = append(parts, nq.Number)
	}
	return strings.Join(parts, ", ")
}

func isNumeric(number string) bool {
	_, err := strconv.Atoi(number)
	return err == nil
}
