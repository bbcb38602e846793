package intake

import (
	"time"
	_ "time/tzdata" // containers ship without a zoneinfo database
)

const welcomeLine = "Bem-vindo ao m.lima. Estou aqui para entender seu caso e agilizar o contato com um de nossos advogados especializados."

// Greeter builds the time-of-day greeting in a fixed timezone.
type Greeter struct {
	loc *time.Location
}

// NewGreeter loads the named zone. A zone that cannot be loaded leaves the
// greeter without one, and it falls back to a neutral "Olá".
func NewGreeter(zone string) *Greeter {
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return &Greeter{}
	}
	return &Greeter{loc: loc}
}

// Salutation returns Bom dia, Boa tarde or Boa noite for the local hour.
func (g *Greeter) Salutation(now time.Time) string {
	if g == nil || g.loc == nil {
		return "Olá"
	}
	hour := now.In(g.loc).Hour()
	switch {
	case hour >= 5 && hour < 12:
		return "Bom dia"
	case hour >= 12 && hour < 18:
		return "Boa tarde"
	default:
		return "Boa noite"
	}
}

// Greeting returns the full first-contact message ending with question.
func (g *Greeter) Greeting(now time.Time, question string) string {
	return g.Salutation(now) + "! " + welcomeLine + "\n\n" + question
}
