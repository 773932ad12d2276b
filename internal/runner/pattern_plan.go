package runner

import (
	"sort"
	"time"
)

// ratePlan is the iteration rate profile of a run: load patterns flattened
// into back-to-back stages, each moving linearly between two rates.
type ratePlan struct {
	stages []rateStage
}

type rateStage struct {
	end      time.Duration // offset from run start
	length   time.Duration
	from, to float64 // iterations per second
}

// compileRatePlan returns nil when no pattern contributes a stage, which
// leaves pacing to Options.IterationRate.
func compileRatePlan(patterns []LoadPattern) *ratePlan {
	plan := &ratePlan{}
	for _, p := range patterns {
		switch p.Type {
		case LoadPatternTypeRamp:
			plan.add(p.Duration, p.FromRate, p.ToRate)
		case LoadPatternTypeSpike:
			plan.add(p.Duration, p.Rate, p.Rate)
		case LoadPatternTypeStep:
			for _, step := range p.Steps {
				plan.add(step.Duration, step.Rate, step.Rate)
			}
		}
	}
	if len(plan.stages) == 0 {
		return nil
	}
	return plan
}

// add appends a stage; stages without a positive length are dropped.
func (p *ratePlan) add(length time.Duration, from, to int) {
	if length <= 0 {
		return
	}
	p.stages = append(p.stages, rateStage{
		end:    p.length() + length,
		length: length,
		from:   float64(from),
		to:     float64(to),
	})
}

// stageAt returns the stage running at elapsed, or false once the plan is
// over.
func (p *ratePlan) stageAt(elapsed time.Duration) (rateStage, bool) {
	if p == nil {
		return rateStage{}, false
	}
	if elapsed < 0 {
		elapsed = 0
	}
	i := sort.Search(len(p.stages), func(i int) bool { return p.stages[i].end > elapsed })
	if i == len(p.stages) {
		return rateStage{}, false
	}
	return p.stages[i], true
}

// iterationRateAt interpolates the target iterations per second at elapsed.
func (p *ratePlan) iterationRateAt(elapsed time.Duration) (float64, bool) {
	st, ok := p.stageAt(elapsed)
	if !ok {
		return 0, false
	}
	if st.from == st.to {
		return st.from, true
	}
	if elapsed < 0 {
		elapsed = 0
	}
	progress := 1 - float64(st.end-elapsed)/float64(st.length)
	return st.from + (st.to-st.from)*progress, true
}

// length is the planned run time, zero for a nil plan.
func (p *ratePlan) length() time.Duration {
	if p == nil || len(p.stages) == 0 {
		return 0
	}
	return p.stages[len(p.stages)-1].end
}
