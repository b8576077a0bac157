// Package stats computes the dashboard figures from appointments.
package stats

import (
	"sort"

	"github.com/joaocarlostuc75/ciliosdeluxo/libs/money"
	"github.com/joaocarlostuc75/ciliosdeluxo/services/booking-service/internal/model"
)

type ServiceCount struct {
	ServiceID string `json:"service_id"`
	Name      string `json:"name"`
	Count     int    `json:"count"`
}

type Dashboard struct {
	TotalRevenue      money.Amount   `json:"total_revenue"`
	PendingRevenue    money.Amount   `json:"pending_revenue"`
	TicketMedio       money.Amount   `json:"ticket_medio"`
	CompletedCount    int            `json:"completed_count"`
	ScheduledCount    int            `json:"scheduled_count"`
	CancelledCount    int            `json:"cancelled_count"`
	PopularServices   []ServiceCount `json:"popular_services"`
	TotalRevenueLabel string         `json:"total_revenue_label"`
}

// Compute sums COMPLETED prices into revenue and SCHEDULED prices into
// pending revenue. Popular services count every appointment referencing a
// catalog service, most booked first and ties by name.
func Compute(appts []model.Appointment, services []model.Service) Dashboard {
	var d Dashboard
	counts := make(map[string]int, len(services))
	for _, a := range appts {
		switch a.Status {
		case model.StatusCompleted:
			d.TotalRevenue += a.ServicePrice
			d.CompletedCount++
		case model.StatusScheduled:
			d.PendingRevenue += a.ServicePrice
			d.ScheduledCount++
		case model.StatusCancelled:
			d.CancelledCount++
		}
		counts[a.ServiceID]++
	}
	if d.CompletedCount > 0 {
		d.TicketMedio = d.TotalRevenue / money.Amount(d.CompletedCount)
	}
	d.TotalRevenueLabel = money.FormatBRL(d.TotalRevenue)

	d.PopularServices = make([]ServiceCount, 0, len(services))
	for _, s := range services {
		d.PopularServices = append(d.PopularServices, ServiceCount{ServiceID: s.ID, Name: s.Name, Count: counts[s.ID]})
	}
	sort.SliceStable(d.PopularServices, func(i, j int) bool {
		a, b := d.PopularServices[i], d.PopularServices[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Name < b.Name
	})
	return d
}
