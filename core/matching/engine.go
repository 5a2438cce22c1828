// Package matching ranks available candidates for a mission. Scoring is
// deterministic and explainable so dispatch decisions can be reproduced
// and audited.
package matching

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/agrilink/fleetcore/core/logger"
	"github.com/agrilink/fleetcore/core/model"
)

// Weights tunes the scoring terms. All terms are normalized to [0,1]
// before weighting. Availability is not a term: unavailable units are
// excluded before scoring, so it could never discriminate.
type Weights struct {
	Proximity  float64 `json:"proximity"`
	Load       float64 `json:"load"`
	TagPenalty float64 `json:"tag_penalty"`
}

// DefaultWeights returns the weights used when none are configured.
func DefaultWeights() Weights {
	return Weights{
		Proximity:  0.5,
		Load:       0.3,
		TagPenalty: 0.2,
	}
}

// Suggestion is one ranked candidate recommendation for a mission.
type Suggestion struct {
	Candidate model.Candidate `json:"candidate"`
	Score     float64         `json:"score"`
	Rationale string          `json:"rationale"`
}

// Result is the outcome of a matching round. NoEligibleCapacity
// distinguishes "nobody can carry this load" from an empty pool.
type Result struct {
	Suggestions        []Suggestion `json:"suggestions"`
	NoEligibleCapacity bool         `json:"no_eligible_capacity"`
}

// Engine scores candidates against missions. It never mutates its inputs.
type Engine struct {
	weights Weights
	log     logger.Logger
}

// NewEngine creates an Engine. Zero-valued weights fall back to defaults.
func NewEngine(w Weights, log logger.Logger) *Engine {
	if w == (Weights{}) {
		w = DefaultWeights()
	}
	return &Engine{weights: w, log: log}
}

// Suggest returns up to k suggestions ordered by descending score, ties
// broken by driver id. An empty pool yields an empty result, not an
// error. A malformed candidate is skipped and logged; one bad telemetry
// record must not prevent matching. The context bounds the computation.
func (e *Engine) Suggest(ctx context.Context, m model.Mission, pool []model.Candidate, k int) (Result, error) {
	if k <= 0 {
		k = len(pool)
	}
	var (
		res        Result
		considered int  // valid and available candidates
		hadCargo   bool // at least one candidate passed the capacity gate
	)
	for _, c := range pool {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		if err := c.Validate(); err != nil {
			if e.log != nil {
				e.log.Warnf("skipping malformed candidate %s/%s: %v", c.DriverID, c.TruckID, err)
			}
			continue
		}
		if c.Availability != model.Available {
			continue
		}
		considered++
		if c.CapacityKg < m.Quantity {
			continue
		}
		hadCargo = true
		if excluded, tag := missingRequiredSpecialization(m, c); excluded {
			if e.log != nil {
				e.log.Debugf("candidate %s lacks required tag %s for mission %s", c.DriverID, tag, m.ID)
			}
			continue
		}
		score, rationale := e.score(m, c)
		res.Suggestions = append(res.Suggestions, Suggestion{
			Candidate: c.Clone(),
			Score:     score,
			Rationale: rationale,
		})
	}
	sort.Slice(res.Suggestions, func(i, j int) bool {
		a, b := res.Suggestions[i], res.Suggestions[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		return a.Candidate.DriverID < b.Candidate.DriverID
	})
	if len(res.Suggestions) > k {
		res.Suggestions = res.Suggestions[:k]
	}
	if len(res.Suggestions) == 0 && considered > 0 && !hadCargo {
		res.NoEligibleCapacity = true
	}
	return res, nil
}

// missingRequiredSpecialization applies the hard specialization gate:
// hazmat and refrigerated loads must be carried by a tagged unit.
func missingRequiredSpecialization(m model.Mission, c model.Candidate) (bool, string) {
	for _, tag := range []string{model.TagHazmat, model.TagRefrigerated} {
		if m.RequiresTag(tag) && !c.HasTag(tag) {
			return true, tag
		}
	}
	return false, ""
}

// score computes the weighted sum for one candidate together with a
// human-readable breakdown.
func (e *Engine) score(m model.Mission, c model.Candidate) (float64, string) {
	var parts []string

	// Inverse-distance proximity; candidates without coordinates score a
	// neutral middle value rather than being excluded.
	prox := 0.5
	if d, ok := model.DistanceKm(c.Location, m.Origin); ok {
		prox = 1 / (1 + d)
		parts = append(parts, fmt.Sprintf("%.1fkm from origin", d))
	} else {
		parts = append(parts, "position unknown")
	}

	// Idle units rank above partially committed ones.
	load := 1 - clamp01(c.LoadFactor)
	if c.LoadFactor == 0 {
		parts = append(parts, "idle")
	} else {
		parts = append(parts, fmt.Sprintf("load %.0f%%", c.LoadFactor*100))
	}

	// Soft specialization tags: a missing non-critical tag is a penalty,
	// not an exclusion.
	penalty := 0.0
	for _, tag := range m.RequiredTags {
		if tag == model.TagHazmat || tag == model.TagRefrigerated {
			continue
		}
		if !c.HasTag(tag) {
			penalty += 1
			parts = append(parts, "missing tag "+tag)
		}
	}
	if penalty > 1 {
		penalty = 1
	}

	score := prox*e.weights.Proximity +
		load*e.weights.Load -
		penalty*e.weights.TagPenalty
	if score < 0 {
		score = 0
	}
	return score, strings.Join(parts, ", ")
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
