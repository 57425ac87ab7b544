package engine

import "github.com/whaleintel/pipeline/internal/model"

// masterClassify adopts a single dominant phase's classification when it
// is both high-weight and high-confidence; otherwise falls back to a
// weighted vote across classes; otherwise emits UNKNOWN.
func masterClassify(results []PhaseResult, highConfidence, aggregationThreshold float64) (model.Classification, float64, string) {
	var fired []PhaseResult
	for _, r := range results {
		if r.Fired {
			fired = append(fired, r)
		}
	}
	if len(fired) == 0 {
		return model.ClassUnknown, 0, ""
	}

	// Priority order P1 > P2 > P3 > others. The dominant-phase check below
	// walks phases in this order; otherwise the priority only decides which
	// winning phase the conflict note names, not which class wins.
	priority := map[string]int{"P1_cex": 0, "P2_dex": 1, "P3_stablecoin_flow": 2}

	// Dominant-phase adoption: a single phase with weight >= 0.40 and
	// confidence >= high_confidence_threshold wins outright.
	for _, r := range fired {
		if r.Weight >= 0.40 && r.Confidence >= highConfidence {
			sumConf, n := 0.0, 0
			for _, c := range fired {
				if c.Classification == r.Classification {
					sumConf += c.Confidence
					n++
				}
			}
			avg := sumConf / float64(n)
			if avg > 0.95 {
				avg = 0.95
			}
			reasoning := r.Evidence
			if hasConflict(fired, r.Classification) {
				reasoning += "; conflicting phases overridden by " + highestPriorityPhase(fired, r.Classification, priority)
			}
			return r.Classification, avg, reasoning
		}
	}

	// Weighted vote per class.
	weighted := make(map[model.Classification]float64)
	totalWeight := 0.0
	for _, r := range fired {
		weighted[r.Classification] += r.Confidence * r.Weight
		totalWeight += r.Weight
	}

	if totalWeight == 0 {
		return model.ClassUnknown, 0, ""
	}

	var best model.Classification
	bestScore := -1.0
	for cls, score := range weighted {
		if score > bestScore {
			best, bestScore = cls, score
		}
	}

	finalConfidence := bestScore / totalWeight
	if finalConfidence > 0.90 {
		finalConfidence = 0.90
	}

	maxFiredConf := 0.0
	for _, r := range fired {
		if r.Confidence > maxFiredConf {
			maxFiredConf = r.Confidence
		}
	}
	if maxFiredConf < aggregationThreshold {
		return model.ClassUnknown, 0, "no phase reached the minimum aggregation confidence"
	}

	reasoning := "weighted vote across " + phaseList(fired)
	if hasConflict(fired, best) {
		reasoning += "; conflicting phases overridden by " + highestPriorityPhase(fired, best, priority)
	}
	return best, finalConfidence, reasoning
}

func hasConflict(fired []PhaseResult, winner model.Classification) bool {
	for _, r := range fired {
		if r.Classification != winner {
			return true
		}
	}
	return false
}

// highestPriorityPhase returns the highest-priority fired phase that voted
// for winner.
func highestPriorityPhase(fired []PhaseResult, winner model.Classification, priority map[string]int) string {
	best, bestRank := "", len(priority)+2
	for _, r := range fired {
		if r.Classification != winner {
			continue
		}
		if rank := priorityRank(r.Phase, priority); rank < bestRank {
			best, bestRank = r.Phase, rank
		}
	}
	return best
}

func priorityRank(phase string, priority map[string]int) int {
	if rank, ok := priority[phase]; ok {
		return rank
	}
	return len(priority) + 1
}

func phaseList(fired []PhaseResult) string {
	out := fired[0].Phase
	for _, r := range fired[1:] {
		out += "," + r.Phase
	}
	return out
}
