package player

import (
	"time"

	"github.com/jonboulle/clockwork"
)

var firstNames = []string{
	"Alex", "Bruno", "Carlos", "Diego", "Emil", "Felipe", "Gabriel",
	"Hugo", "Ivan", "Jorge", "Kofi", "Luca", "Marco", "Nils", "Omar",
	"Pablo", "Quincy", "Rafael", "Sergio", "Tomas",
}

var lastNames = []string{
	"Almeida", "Bakker", "Costa", "Dubois", "Eriksen", "Fernandez",
	"Garcia", "Hansen", "Ibrahim", "Janssen", "Kovac", "Lopez",
	"Moreau", "Novak", "Oliveira", "Petrov", "Rossi", "Silva",
	"Torres", "Vargas",
}

var countries = []string{
	"Argentina", "Belgium", "Brazil", "Croatia", "England", "France",
	"Germany", "Ghana", "Italy", "Japan", "Mexico", "Netherlands",
	"Nigeria", "Portugal", "Senegal", "Spain", "Uruguay", "USA",
}

const (
	minSyntheticAge = 18
	maxSyntheticAge = 40
)

// Generator produces attributes for synthesized uncapped players. The
// random source is injected so tests can pin its output; aside from that
// it is side-effect free.
type Generator struct {
	intn  func(n int) int
	clock clockwork.Clock
}

// NewGenerator creates a generator over an Intn-style random source.
func NewGenerator(intn func(n int) int, clock clockwork.Clock) *Generator {
	return &Generator{intn: intn, clock: clock}
}

// RandInt returns a uniform value in [min, max].
func (g *Generator) RandInt(min, max int) int {
	if max <= min {
		return min
	}
	return min + g.intn(max-min+1)
}

// FirstName picks a synthetic first name.
func (g *Generator) FirstName() string {
	return firstNames[g.intn(len(firstNames))]
}

// LastName picks a synthetic last name.
func (g *Generator) LastName() string {
	return lastNames[g.intn(len(lastNames))]
}

// Country picks a synthetic country.
func (g *Generator) Country() string {
	return countries[g.intn(len(countries))]
}

// Birthdate generates a date of birth putting the player's age in
// [18, 40] at generation time.
func (g *Generator) Birthdate() time.Time {
	now := g.clock.Now().UTC()
	age := g.RandInt(minSyntheticAge, maxSyntheticAge)
	return now.AddDate(-age, 0, 0)
}
