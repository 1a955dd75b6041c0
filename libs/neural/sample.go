package neural

import (
	"math"
	"math/rand"
)

// logSqrt2Pi is the log of the sqrt(2π) normalizer in the normal log-density.
var logSqrt2Pi = 0.5 * math.Log(2.0*math.Pi)

// normLogPdf is the log density of N(mu, sigma) at x, written in terms of
// logSigma so it matches the symbolic evaluation in the trainer exactly.
func normLogPdf(x, mu, logSigma float64) float64 {
	sigma := math.Exp(logSigma)
	z := (x - mu) / sigma
	return -0.5*z*z - logSigma - logSqrt2Pi
}

// normalDraw holds one draw from a (mu, logsigma) head output: the
// pre-transform normal value and its log density. Policy-gradient updates
// only ever need the density of the latent normal, not of the transformed
// action.
type normalDraw struct {
	x        float64
	logProba float64
}

// sampleNormal draws from N(mu, exp(logSigma)).
func sampleNormal(rng *rand.Rand, mu, logSigma float64) normalDraw {
	x := mu + rng.NormFloat64()*math.Exp(logSigma)
	return normalDraw{x: x, logProba: normLogPdf(x, mu, logSigma)}
}

// sampleNormals draws one normal per (mu, logsigma) row of a flattened
// [n, 2] parameter matrix.
func sampleNormals(rng *rand.Rand, params []float64) []normalDraw {
	n := len(params) / 2
	out := make([]normalDraw, n)
	for i := 0; i < n; i++ {
		out[i] = sampleNormal(rng, params[2*i], params[2*i+1])
	}
	return out
}

// logistic maps a normal draw into (0, 1); applied to a normal sample this
// yields a logit-normal action.
func logistic(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}

// sumLogProbas totals the log densities of a set of draws.
func sumLogProbas(draws []normalDraw) float64 {
	sum := 0.0
	for _, d := range draws {
		sum += d.logProba
	}
	return sum
}
