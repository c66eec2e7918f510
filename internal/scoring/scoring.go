// Package scoring считает баллы за достижение: base × множитель уровня × множитель места.
package scoring

import (
	"math"

	"github.com/Spok95/achievement-service/internal/models"
)

// Table — таблицы множителей. Передаётся явно, глобального состояния нет.
type Table struct {
	Level map[models.Level]float64
	Rank  map[models.Rank]float64
}

// DefaultTable — действующие множители.
func DefaultTable() Table {
	return Table{
		Level: map[models.Level]float64{
			models.LevelSekolah:       1.0,
			models.LevelKecamatan:     1.2,
			models.LevelKabupaten:     1.5,
			models.LevelProvinsi:      1.8,
			models.LevelNasional:      2.0,
			models.LevelInternasional: 2.5,
		},
		Rank: map[models.Rank]float64{
			models.RankJuara1:       1.0,
			models.RankJuara2:       0.8,
			models.RankJuara3:       0.6,
			models.RankHarapan1:     0.5,
			models.RankHarapan2:     0.4,
			models.RankHarapan3:     0.3,
			models.RankFinalis:      0.3,
			models.RankPeserta:      0.1,
			models.RankLulusSeleksi: 0.2,
		},
	}
}

// LevelMultiplier — неизвестный уровень даёт 1.0.
func (t Table) LevelMultiplier(level models.Level) float64 {
	if m, ok := t.Level[level]; ok {
		return m
	}
	return 1.0
}

// RankMultiplier — без места или с неизвестным местом 1.0.
func (t Table) RankMultiplier(rank *models.Rank) float64 {
	if rank == nil {
		return 1.0
	}
	if m, ok := t.Rank[*rank]; ok {
		return m
	}
	return 1.0
}

// Compute — round-half-up(base × level × rank), то есть floor(x + 0.5) без поправок на
// представление float64. Отрицательная база считается нулём.
func Compute(t Table, basePoints int, level models.Level, rank *models.Rank) int {
	if basePoints <= 0 {
		return 0
	}
	raw := float64(basePoints) * t.LevelMultiplier(level) * t.RankMultiplier(rank)
	return int(math.Floor(raw + 0.5))
}

// Score — результат расчёта вместе с применёнными множителями (сохраняются в записи).
type Score struct {
	BasePoints      int
	LevelMultiplier float64
	RankMultiplier  float64
	Points          int
}

func (t Table) Score(basePoints int, level models.Level, rank *models.Rank) Score {
	if basePoints < 0 {
		basePoints = 0
	}
	return Score{
		BasePoints:      basePoints,
		LevelMultiplier: t.LevelMultiplier(level),
		RankMultiplier:  t.RankMultiplier(rank),
		Points:          Compute(t, basePoints, level, rank),
	}
}
