// Package analytics computes the admin dashboard figures from the order list.
package analytics

import (
	"sort"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/shopspring/decimal"
)

const (
	recentOrders  = 5
	topProducts   = 5
	dailyWindow   = 7
	monthlyWindow = 6
)

type DaySales struct {
	Date  string          `json:"date"`
	Sales decimal.Decimal `json:"sales"`
}

type MonthSales struct {
	Month    string          `json:"month"`
	Earnings decimal.Decimal `json:"earnings"`
	Orders   int             `json:"orders"`
}

type ProductSales struct {
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	Revenue   decimal.Decimal `json:"revenue"`
}

type Stats struct {
	TotalOrders    int `json:"total_orders"`
	TotalProducts  int `json:"total_products"`
	TotalCustomers int `json:"total_customers"`

	TotalRevenue     decimal.Decimal `json:"total_revenue"`
	TodayRevenue     decimal.Decimal `json:"today_revenue"`
	MonthRevenue     decimal.Decimal `json:"month_revenue"`
	LastMonthRevenue decimal.Decimal `json:"last_month_revenue"`
	// RevenueGrowth is the month over month change in percent, rounded to
	// one place. Zero when last month had no revenue.
	RevenueGrowth     decimal.Decimal `json:"revenue_growth"`
	AverageOrderValue decimal.Decimal `json:"average_order_value"`

	ThisMonthOrders int                        `json:"this_month_orders"`
	LastMonthOrders int                        `json:"last_month_orders"`
	OrdersByStatus  map[domain.OrderStatus]int `json:"orders_by_status"`

	DailySales   []DaySales      `json:"daily_sales"`
	Monthly      []MonthSales    `json:"monthly"`
	TopProducts  []ProductSales  `json:"top_products"`
	RecentOrders []*domain.Order `json:"recent_orders"`
}

// Dashboard summarises orders as of now. Cancelled orders count towards the
// order and status totals but never towards revenue. Day and month
// boundaries follow now's location.
func Dashboard(orders []*domain.Order, productCount int, now time.Time) Stats {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	lastMonthStart := monthStart.AddDate(0, -1, 0)

	s := Stats{
		TotalOrders:    len(orders),
		TotalProducts:  productCount,
		OrdersByStatus: make(map[domain.OrderStatus]int),
	}
	for _, st := range domain.OrderStatuses {
		s.OrdersByStatus[st] = 0
	}

	customers := make(map[string]struct{})
	products := make(map[string]*ProductSales)
	var productOrder []string
	var paid int

	for _, o := range orders {
		s.OrdersByStatus[o.Status]++
		if o.UserID != "" {
			customers[o.UserID] = struct{}{}
		}

		created := o.CreatedAt.In(now.Location())
		inMonth := !created.Before(monthStart)
		inLastMonth := !created.Before(lastMonthStart) && created.Before(monthStart)
		if inMonth {
			s.ThisMonthOrders++
		}
		if inLastMonth {
			s.LastMonthOrders++
		}

		if o.Status == domain.OrderStatusCancelled {
			continue
		}
		paid++
		s.TotalRevenue = s.TotalRevenue.Add(o.TotalAmount)
		if !created.Before(today) {
			s.TodayRevenue = s.TodayRevenue.Add(o.TotalAmount)
		}
		if inMonth {
			s.MonthRevenue = s.MonthRevenue.Add(o.TotalAmount)
		}
		if inLastMonth {
			s.LastMonthRevenue = s.LastMonthRevenue.Add(o.TotalAmount)
		}

		for _, l := range o.Lines {
			p, ok := products[l.ProductID]
			if !ok {
				p = &ProductSales{ProductID: l.ProductID}
				products[l.ProductID] = p
				productOrder = append(productOrder, l.ProductID)
			}
			p.Quantity += l.Quantity
			p.Revenue = p.Revenue.Add(l.UnitPriceAtPurchase.Mul(decimal.NewFromInt(int64(l.Quantity))))
		}
	}

	s.TotalCustomers = len(customers)
	if paid > 0 {
		s.AverageOrderValue = s.TotalRevenue.Div(decimal.NewFromInt(int64(paid))).Round(2)
	}
	if s.LastMonthRevenue.IsPositive() {
		s.RevenueGrowth = s.MonthRevenue.Sub(s.LastMonthRevenue).
			Div(s.LastMonthRevenue).
			Mul(decimal.NewFromInt(100)).
			Round(1)
	}

	s.DailySales = daily(orders, today)
	s.Monthly = monthly(orders, monthStart)
	s.TopProducts = top(products, productOrder)
	s.RecentOrders = recent(orders)
	return s
}

func daily(orders []*domain.Order, today time.Time) []DaySales {
	out := make([]DaySales, dailyWindow)
	for i := range out {
		start := today.AddDate(0, 0, i-dailyWindow+1)
		end := start.AddDate(0, 0, 1)
		out[i] = DaySales{Date: start.Format("Jan 2"), Sales: revenueBetween(orders, start, end)}
	}
	return out
}

func monthly(orders []*domain.Order, monthStart time.Time) []MonthSales {
	out := make([]MonthSales, monthlyWindow)
	for i := range out {
		start := monthStart.AddDate(0, i-monthlyWindow+1, 0)
		end := start.AddDate(0, 1, 0)
		out[i] = MonthSales{
			Month:    start.Format("Jan"),
			Earnings: revenueBetween(orders, start, end),
			Orders:   countBetween(orders, start, end),
		}
	}
	return out
}

func revenueBetween(orders []*domain.Order, start, end time.Time) decimal.Decimal {
	total := decimal.Zero
	for _, o := range orders {
		if o.Status == domain.OrderStatusCancelled {
			continue
		}
		if within(o.CreatedAt, start, end) {
			total = total.Add(o.TotalAmount)
		}
	}
	return total
}

func countBetween(orders []*domain.Order, start, end time.Time) int {
	n := 0
	for _, o := range orders {
		if within(o.CreatedAt, start, end) {
			n++
		}
	}
	return n
}

func within(t, start, end time.Time) bool {
	return !t.Before(start) && t.Before(end)
}

func top(products map[string]*ProductSales, order []string) []ProductSales {
	out := make([]ProductSales, 0, len(order))
	for _, id := range order {
		if p := products[id]; p.Revenue.IsPositive() {
			out = append(out, *p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Revenue.GreaterThan(out[j].Revenue)
	})
	if len(out) > topProducts {
		out = out[:topProducts]
	}
	return out
}

func recent(orders []*domain.Order) []*domain.Order {
	out := make([]*domain.Order, len(orders))
	copy(out, orders)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if len(out) > recentOrders {
		out = out[:recentOrders]
	}
	return out
}
