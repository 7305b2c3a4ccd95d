package scoring

import (
	"errors"
	"fmt"

	"contest-scoring-engine/models"
)

// ErrMissingStat is returned when the result snapshot cannot answer a
// definition (stat absent, subject unknown). The game needs operator review.
var ErrMissingStat = errors.New("stat missing from result snapshot")

// ErrUnsupportedType is returned by RuleFor for unknown prediction types.
var ErrUnsupportedType = errors.New("unsupported prediction type")

// Outcome is the settled answer to a definition.
type Outcome struct {
	Winning int  // winning choice index, meaningless when Push
	Push    bool // exact hit on the line or a drawless tie
}

// Matches reports whether choice won. A push matches nothing.
func (o Outcome) Matches(choice int) bool {
	return !o.Push && o.Winning == choice
}

// Rule derives the outcome of one prediction type from a final result.
// line is the line recorded on the submission being settled.
type Rule interface {
	Type() models.PredictionType
	Resolve(def *models.PredictionDefinition, line float64, res models.GameResult) (Outcome, error)
}

var rules = map[models.PredictionType]Rule{
	models.PredictionTypeSpread:     spreadRule{},
	models.PredictionTypeTotal:      totalRule{},
	models.PredictionTypeMoneyline:  moneylineRule{},
	models.PredictionTypePlayerProp: statRule{kind: models.PredictionTypePlayerProp},
	models.PredictionTypeTeamStat:   statRule{kind: models.PredictionTypeTeamStat},
}

// RuleFor returns the outcome rule for t.
func RuleFor(t models.PredictionType) (Rule, error) {
	r, ok := rules[t]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedType, t)
	}
	return r, nil
}

// Resolve is RuleFor(def.Type).Resolve.
func Resolve(def *models.PredictionDefinition, line float64, res models.GameResult) (Outcome, error) {
	r, err := RuleFor(def.Type)
	if err != nil {
		return Outcome{}, err
	}
	return r.Resolve(def, line, res)
}

// overUnder compares value against line: over = 0, under = 1, equal = push.
func overUnder(value, line float64) Outcome {
	switch {
	case value > line:
		return Outcome{Winning: models.ChoiceOver}
	case value < line:
		return Outcome{Winning: models.ChoiceUnder}
	}
	return Outcome{Push: true}
}

// spreadRule: line is from the home side, so home covers when
// home + line > away.
type spreadRule struct{}

func (spreadRule) Type() models.PredictionType { return models.PredictionTypeSpread }

func (spreadRule) Resolve(_ *models.PredictionDefinition, line float64, res models.GameResult) (Outcome, error) {
	margin := float64(res.HomeScore) + line - float64(res.AwayScore)
	switch {
	case margin > 0:
		return Outcome{Winning: models.ChoiceHome}, nil
	case margin < 0:
		return Outcome{Winning: models.ChoiceAway}, nil
	}
	return Outcome{Push: true}, nil
}

type totalRule struct{}

func (totalRule) Type() models.PredictionType { return models.PredictionTypeTotal }

func (totalRule) Resolve(_ *models.PredictionDefinition, line float64, res models.GameResult) (Outcome, error) {
	return overUnder(float64(res.HomeScore+res.AwayScore), line), nil
}

type moneylineRule struct{}

func (moneylineRule) Type() models.PredictionType { return models.PredictionTypeMoneyline }

func (moneylineRule) Resolve(def *models.PredictionDefinition, _ float64, res models.GameResult) (Outcome, error) {
	switch {
	case res.HomeScore > res.AwayScore:
		return Outcome{Winning: models.ChoiceHome}, nil
	case res.AwayScore > res.HomeScore:
		return Outcome{Winning: models.ChoiceAway}, nil
	}
	if len(def.Choices) > models.ChoiceDraw {
		return Outcome{Winning: models.ChoiceDraw}, nil
	}
	return Outcome{Push: true}, nil
}

// statRule settles player props and team stats against the stats snapshot.
// Team stat subjects may be "home"/"away" aliases.
type statRule struct {
	kind models.PredictionType
}

func (r statRule) Type() models.PredictionType { return r.kind }

func (r statRule) Resolve(def *models.PredictionDefinition, line float64, res models.GameResult) (Outcome, error) {
	subject := def.Subject
	stats := res.Stats
	var (
		value float64
		ok    bool
	)
	if r.kind == models.PredictionTypeTeamStat {
		switch subject {
		case "home":
			subject = res.HomeTeam
		case "away":
			subject = res.AwayTeam
		}
		value, ok = stats.Teams[subject][def.StatKey]
	} else {
		value, ok = stats.Players[subject][def.StatKey]
	}
	if !ok {
		return Outcome{}, fmt.Errorf("%w: %s %s/%s in game %s", ErrMissingStat, r.kind, subject, def.StatKey, res.GameID)
	}
	return overUnder(value, line), nil
}
