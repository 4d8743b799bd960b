package producer

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/salesinsight/salesinsight/internal/dataset"
)

type menuItem struct {
	name   string
	price  float64
	weight int
}

var menu = []menuItem{
	{"Espresso", 1.4, 14},
	{"Americano", 1.8, 12},
	{"Cappuccino", 2.4, 16},
	{"Latte", 2.6, 15},
	{"Tea", 1.5, 8},
	{"Orange Juice", 2.9, 6},
	{"Croissant", 1.9, 10},
	{"Toast", 2.5, 7},
	{"Sandwich", 4.8, 6},
	{"Cheesecake", 3.9, 4},
	{"Muffin", 2.2, 5},
	{"Sparkling Water", 1.6, 3},
}

// Generator produces coffee-shop tickets. Output is fully determined by the
// seed and start date.
type Generator struct {
	rnd         *rand.Rand
	waiters     int
	ticket      int64
	totalWeight int
}

func NewGenerator(seed int64, waiters int) *Generator {
	total := 0
	for _, item := range menu {
		total += item.weight
	}
	if waiters <= 0 {
		waiters = 1
	}
	return &Generator{
		rnd:         rand.New(rand.NewSource(seed)),
		waiters:     waiters,
		totalWeight: total,
	}
}

// Day returns the ticket lines for tickets sold on day.
func (g *Generator) Day(day time.Time, tickets int) []dataset.Sale {
	date := day.Format("2006-01-02")
	weekDay := day.Weekday().String()
	if day.Weekday() == time.Saturday || day.Weekday() == time.Sunday {
		tickets += tickets / 4
	}

	sales := make([]dataset.Sale, 0, tickets*2)
	for i := 0; i < tickets; i++ {
		g.ticket++
		hour := g.pickHour()
		waiter := int64(g.rnd.Intn(g.waiters) + 1)
		number := fmt.Sprintf("%d", 100000+g.ticket)
		for lines := g.rnd.Intn(3) + 1; lines > 0; lines-- {
			item := g.pickItem()
			quantity := float64(1 + g.rnd.Intn(2))
			sales = append(sales, dataset.Sale{
				Date:         date,
				WeekDay:      weekDay,
				Hour:         hour,
				TicketNumber: number,
				Waiter:       waiter,
				ProductName:  item.name,
				Quantity:     quantity,
				UnitaryPrice: item.price,
				Total:        round2(quantity * item.price),
			})
		}
	}
	return sales
}

func (g *Generator) pickItem() menuItem {
	p := g.rnd.Intn(g.totalWeight)
	for _, item := range menu {
		if p < item.weight {
			return item
		}
		p -= item.weight
	}
	return menu[len(menu)-1]
}

// pickHour favors the morning and lunch rushes.
func (g *Generator) pickHour() string {
	p := g.rnd.Intn(100)
	var hour int
	switch {
	case p < 40:
		hour = 8 + g.rnd.Intn(3)
	case p < 70:
		hour = 12 + g.rnd.Intn(3)
	default:
		hour = 7 + g.rnd.Intn(13)
	}
	return fmt.Sprintf("%02d:%02d", hour, g.rnd.Intn(60))
}

func round2(value float64) float64 {
	return math.Round(value*100) / 100
}
