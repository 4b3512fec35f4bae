package sentiment

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScore_Negative(t *testing.T) {
	res := Score("I want to cancel my membership, this is unacceptable")
	assert.Equal(t, Negative, res.Label)
	assert.Less(t, res.Score, 0.0)
}

func TestScore_Positive(t *testing.T) {
	res := Score("Thanks, sounds good! Sign me up")
	assert.Equal(t, Positive, res.Label)
	assert.Greater(t, res.Score, 0.0)
}

func TestScore_Neutral(t *testing.T) {
	res := Score("What time does the pool open on Saturdays?")
	assert.Equal(t, Neutral, res.Label)
	assert.Zero(t, res.Score)
}

func TestScore_Mixed(t *testing.T) {
	res := Score("I loved the classes but I'm cancelling, too expensive")
	assert.LessOrEqual(t, res.Score, 0.0)
}

func TestScore_Empty(t *testing.T) {
	res := Score("")
	assert.Equal(t, Neutral, res.Label)
}

func TestScore_CaseInsensitive(t *testing.T) {
	assert.Equal(t, Negative, Score("CANCEL my plan").Label)
}
