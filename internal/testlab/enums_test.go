package testlab

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRace(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    Race
		wantErr bool
	}{
		{"Canonical", "Protoss", Protoss, false},
		{"Lowercase from runner", "terran", Terran, false},
		{"Uppercase", "ZERG", Zerg, false},
		{"Random", "random", RandomRace, false},
		{"Unknown", "Xel'Naga", "", true},
		{"Empty", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRace(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrUnknownValue))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseBuild(t *testing.T) {
	got, err := ParseBuild("randombuild")
	require.NoError(t, err)
	assert.Equal(t, RandomBuild, got)

	got, err = ParseBuild("rush")
	require.NoError(t, err)
	assert.Equal(t, Rush, got)

	_, err = ParseBuild("cannon")
	assert.ErrorIs(t, err, ErrUnknownValue)
}

func TestDifficultyOrder(t *testing.T) {
	for i := 0; i < len(Difficulties)-1; i++ {
		current := Difficulties[i]
		next := Difficulties[i+1]
		if current.Rank() >= next.Rank() {
			t.Errorf("Difficulty order incorrect: %s (%d) should be less than %s (%d)",
				current, current.Rank(), next, next.Rank())
		}
	}

	unknown := Difficulty("Insane")
	assert.False(t, unknown.Known())
	assert.Greater(t, unknown.Rank(), CheatInsane.Rank())
}

func TestParseDifficulty(t *testing.T) {
	got, err := ParseDifficulty("cheatinsane")
	require.NoError(t, err)
	assert.Equal(t, CheatInsane, got)

	_, err = ParseDifficulty("Brutal")
	assert.ErrorIs(t, err, ErrUnknownValue)
}

func TestResultDecided(t *testing.T) {
	decided := map[Result]bool{
		Victory:   true,
		Defeat:    true,
		Tie:       false,
		Pending:   false,
		Aborted:   false,
		Undecided: false,
	}
	for _, r := range Results {
		assert.Equal(t, decided[r], r.Decided(), "result %s", r)
	}
}

func TestResultInitial(t *testing.T) {
	assert.Equal(t, "V", Victory.Initial())
	assert.Equal(t, "D", Defeat.Initial())
	assert.Equal(t, "", Result("").Initial())
}
