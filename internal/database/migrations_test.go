package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMigrations_UniqueAscendingVersions(t *testing.T) {
	seen := map[int]bool{}
	for _, m := range Migrations {
		assert.False(t, seen[m.Version], "duplicate migration version %d", m.Version)
		seen[m.Version] = true
		assert.NotEmpty(t, m.Up)
		assert.NotEmpty(t, m.Down)
	}

	sorted := sortedMigrations()
	for i := 1; i < len(sorted); i++ {
		assert.Less(t, sorted[i-1].Version, sorted[i].Version)
	}
}

func TestMigrations_BanSlotConstraint(t *testing.T) {
	var bans string
	for _, m := range Migrations {
		if m.Version == 3 {
			bans = m.Up
		}
	}
	assert.Contains(t, bans, "UNIQUE (type, value, active, slot)")
}
