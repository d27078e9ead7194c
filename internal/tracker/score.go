package tracker

import (
	"math"
	"sort"
	"strings"

	"github.com/offsetx/carbon-tracker/internal/models"
)

// Green score weights, applied to one month of logs.
const (
	greenScoreBase         = 100.0
	greenPerFoodEntry      = 0.5
	greenPerTravelKm       = 0.1
	greenPerElectricUnit   = 0.2
	greenPerLifestyleEntry = 1.5
)

// Emission factors in kg CO2.
const (
	EmissionPerFoodItem      = 2.5
	EmissionPerFoodLog       = 2.5
	EmissionPerTravelKm      = 0.21
	EmissionPerElectricUnit  = 0.85
	EmissionPerLifestyleLog  = 1.0
	DefaultLeaderboardLength = 10
)

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// FilterByPrefix keeps the entries whose date starts with prefix. The match is
// a literal string prefix: "2024-03" matches "2024-03-09" but not "2024-3-9".
func FilterByPrefix[T models.Entry](entries []T, prefix string) []T {
	out := make([]T, 0, len(entries))
	for _, e := range entries {
		if strings.HasPrefix(e.LogDate(), prefix) {
			out = append(out, e)
		}
	}
	return out
}

// GreenScore is 100 minus the month's consumption weights plus the lifestyle
// bonus, rounded to two decimals. It is not clamped.
func GreenScore(food []models.FoodLog, travel []models.TravelLog, electricity []models.ElectricityLog, lifestyle []models.LifestyleLog) float64 {
	score := greenScoreBase
	score -= float64(len(food)) * greenPerFoodEntry
	score -= sumDistance(travel) * greenPerTravelKm
	score -= sumUnits(electricity) * greenPerElectricUnit
	score += float64(len(lifestyle)) * greenPerLifestyleEntry
	return round2(score)
}

// Breakdown is the estimated emission per activity kind, in kg CO2.
type Breakdown struct {
	Food        float64 `json:"food"`
	Travel      float64 `json:"travel"`
	Electricity float64 `json:"electricity"`
	Lifestyle   float64 `json:"lifestyle"`
}

// Total sums the four categories, rounded to two decimals.
func (b Breakdown) Total() float64 {
	return round2(b.Food + b.Travel + b.Electricity + b.Lifestyle)
}

// Emissions estimates a month of logs for a share card. Food counts per logged
// meal, not per item, so it differs from TotalEmission. Each category is
// rounded to two decimals.
func Emissions(food []models.FoodLog, travel []models.TravelLog, electricity []models.ElectricityLog, lifestyle []models.LifestyleLog) Breakdown {
	return Breakdown{
		Food:        round2(float64(len(food)) * EmissionPerFoodLog),
		Travel:      round2(sumDistance(travel) * EmissionPerTravelKm),
		Electricity: round2(sumUnits(electricity) * EmissionPerElectricUnit),
		Lifestyle:   round2(float64(len(lifestyle)) * EmissionPerLifestyleLog),
	}
}

// TotalEmission scores a user's whole history, regardless of month.
func TotalEmission(u *models.User) float64 {
	items := 0
	for _, f := range u.FoodLogs {
		items += len(f.Items)
	}
	total := float64(items) * EmissionPerFoodItem
	total += sumDistance(u.TravelLogs) * EmissionPerTravelKm
	total += sumUnits(u.ElectricityLogs) * EmissionPerElectricUnit
	total += float64(len(u.LifestyleLogs)) * EmissionPerLifestyleLog
	return round2(total)
}

func sumDistance(travel []models.TravelLog) float64 {
	var sum float64
	for _, t := range travel {
		sum += t.DistanceKM
	}
	return sum
}

func sumUnits(electricity []models.ElectricityLog) float64 {
	var sum float64
	for _, e := range electricity {
		sum += e.Units
	}
	return sum
}

// LeaderboardEntry is one ranked user.
type LeaderboardEntry struct {
	Username      string  `json:"username"`
	Name          string  `json:"name"`
	TotalEmission float64 `json:"total_emission"`
}

// Rank scores every user, sorts ascending by total emission and keeps the
// first n. Ties keep the input order.
func Rank(users []*models.User, n int) []LeaderboardEntry {
	board := make([]LeaderboardEntry, 0, len(users))
	for _, u := range users {
		board = append(board, LeaderboardEntry{
			Username:      u.Username,
			Name:          u.Name,
			TotalEmission: TotalEmission(u),
		})
	}
	sort.SliceStable(board, func(i, j int) bool {
		return board[i].TotalEmission < board[j].TotalEmission
	})
	if n >= 0 && len(board) > n {
		board = board[:n]
	}
	return board
}

// Grade buckets a monthly emission total.
func Grade(total float64) string {
	switch {
	case total < 100:
		return "A+"
	case total < 200:
		return "B"
	case total < 300:
		return "C"
	default:
		return "D"
	}
}

func gradeLabel(grade string) string {
	switch grade {
	case "A+":
		return "Excellent"
	case "B":
		return "Good"
	case "C":
		return "Average"
	default:
		return "High Emissions"
	}
}
