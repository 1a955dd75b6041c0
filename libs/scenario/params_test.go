package scenario

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGaussianDraw(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	g := Gaussian{Mu: 5.0, Sigma: 0.0}
	assert.Equal(t, 5.0, g.Draw(rng), "zero sigma is deterministic")

	g = Gaussian{Mu: 0.0, Sigma: 1.0}
	sum := 0.0
	const n = 20000
	for i := 0; i < n; i++ {
		sum += g.Draw(rng)
	}
	assert.InDelta(t, 0.0, sum/n, 0.05)
}

func TestDrawSigmoidStaysInUnitInterval(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	g := Gaussian{Mu: 3.0, Sigma: 4.0}
	for i := 0; i < 1000; i++ {
		d := g.DrawSigmoid(rng)
		assert.Greater(t, d, 0.0)
		assert.Less(t, d, 1.0)
	}
}

func TestDefaultPopulationParams(t *testing.T) {
	p := DefaultPopulationParams(20, 4)
	assert.Equal(t, 20, p.NumPersons)
	assert.Equal(t, 4, p.NumFirms)
	assert.Greater(t, p.Elasticity.Mu, 0.0)
	assert.Greater(t, p.FirmMoney.Mu, p.Money.Mu)
}
