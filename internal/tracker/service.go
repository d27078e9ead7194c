package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/offsetx/carbon-tracker/internal/models"
	"github.com/offsetx/carbon-tracker/internal/store"
)

// ErrReportsDisabled is returned by the share operations when no report
// store is configured.
var ErrReportsDisabled = errors.New("share reports are disabled")

// ActivityStore is the slice of the credential store the tracker needs.
type ActivityStore interface {
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	AppendLog(ctx context.Context, id string, entry models.Entry) error
	ListUsers(ctx context.Context) ([]*models.User, error)
}

// ReportStore archives rendered share reports.
type ReportStore interface {
	PutReport(ctx context.Context, key string, data []byte) error
	GetReport(ctx context.Context, key string) ([]byte, error)
}

// Summary is one month of logs with its green score.
type Summary struct {
	Food        []models.FoodLog        `json:"food"`
	Travel      []models.TravelLog      `json:"travel"`
	Electricity []models.ElectricityLog `json:"electricity"`
	Lifestyle   []models.LifestyleLog   `json:"lifestyle"`
	GreenScore  float64                 `json:"green_score"`
}

// ShareCard is the shareable monthly report.
type ShareCard struct {
	Month         string    `json:"month"`
	Username      string    `json:"username"`
	Name          string    `json:"name"`
	Breakdown     Breakdown `json:"breakdown"`
	TotalEmission float64   `json:"total_emission"`
	GreenScore    float64   `json:"green_score"`
	Grade         string    `json:"grade"`
	Message       string    `json:"message"`
	ObjectKey     string    `json:"object_key"`
	CreatedAt     time.Time `json:"created_at"`
}

// Service implements recording, aggregation, ranking and sharing on top of
// an ActivityStore. reports may be nil.
type Service struct {
	store   ActivityStore
	reports ReportStore
	now     func() time.Time
}

func NewService(s ActivityStore, reports ReportStore) *Service {
	return &Service{store: s, reports: reports, now: time.Now}
}

// Record validates entry and appends it to the user's log of that kind.
func (s *Service) Record(ctx context.Context, userID string, entry models.Entry) error {
	if err := entry.Validate(); err != nil {
		return err
	}
	if err := s.store.AppendLog(ctx, userID, entry); err != nil {
		return fmt.Errorf("record %s log: %w", entry.Kind(), err)
	}
	return nil
}

// Entries returns the user's logs of kind whose date starts with prefix.
// A month ("2024-03") or a day ("2024-03-09") both work as prefixes.
func (s *Service) Entries(ctx context.Context, userID string, kind models.LogKind, prefix string) (any, error) {
	u, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	switch kind {
	case models.KindFood:
		return FilterByPrefix(u.FoodLogs, prefix), nil
	case models.KindTravel:
		return FilterByPrefix(u.TravelLogs, prefix), nil
	case models.KindElectricity:
		return FilterByPrefix(u.ElectricityLogs, prefix), nil
	case models.KindLifestyle:
		return FilterByPrefix(u.LifestyleLogs, prefix), nil
	}
	return nil, fmt.Errorf("unknown log kind %q", kind)
}

func summarize(u *models.User, month string) *Summary {
	sum := &Summary{
		Food:        FilterByPrefix(u.FoodLogs, month),
		Travel:      FilterByPrefix(u.TravelLogs, month),
		Electricity: FilterByPrefix(u.ElectricityLogs, month),
		Lifestyle:   FilterByPrefix(u.LifestyleLogs, month),
	}
	sum.GreenScore = GreenScore(sum.Food, sum.Travel, sum.Electricity, sum.Lifestyle)
	return sum
}

// Summary filters all four logs to month and scores them.
func (s *Service) Summary(ctx context.Context, userID, month string) (*Summary, error) {
	u, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return summarize(u, month), nil
}

// Leaderboard ranks every user by full-history emission, lowest first.
func (s *Service) Leaderboard(ctx context.Context, n int) ([]LeaderboardEntry, error) {
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("leaderboard: %w", err)
	}
	return Rank(users, n), nil
}

func reportKey(userID, month string) string {
	return userID + "/share-" + month + ".json"
}

// Share builds the user's card for month and archives it, replacing any
// earlier card for the same month.
func (s *Service) Share(ctx context.Context, userID, month string) (*ShareCard, error) {
	if s.reports == nil {
		return nil, ErrReportsDisabled
	}
	u, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	sum := summarize(u, month)
	breakdown := Emissions(sum.Food, sum.Travel, sum.Electricity, sum.Lifestyle)
	total := breakdown.Total()
	grade := Grade(total)
	card := &ShareCard{
		Month:         month,
		Username:      u.Username,
		Name:          u.Name,
		Breakdown:     breakdown,
		TotalEmission: total,
		GreenScore:    sum.GreenScore,
		Grade:         grade,
		Message: fmt.Sprintf("My Green Score for %s: %s (Grade %s), Total CO2: %.2f kg",
			month, gradeLabel(grade), grade, total),
		ObjectKey: reportKey(userID, month),
		CreatedAt: s.now().UTC(),
	}

	data, err := json.Marshal(card)
	if err != nil {
		return nil, fmt.Errorf("encode share card: %w", err)
	}
	if err := s.reports.PutReport(ctx, card.ObjectKey, data); err != nil {
		return nil, fmt.Errorf("store share card: %w", err)
	}
	return card, nil
}

// SharedReport loads a previously archived card.
func (s *Service) SharedReport(ctx context.Context, userID, month string) (*ShareCard, error) {
	if s.reports == nil {
		return nil, ErrReportsDisabled
	}
	data, err := s.reports.GetReport(ctx, reportKey(userID, month))
	if err != nil {
		return nil, err
	}
	var card ShareCard
	if err := json.Unmarshal(data, &card); err != nil {
		return nil, fmt.Errorf("decode share card: %w", err)
	}
	return &card, nil
}

// notFound reports whether err means the user or report is missing.
func notFound(err error) bool {
	return errors.Is(err, store.ErrNotFound)
}
