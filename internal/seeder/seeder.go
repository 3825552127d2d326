package seeder

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/karloscodes/cartridge"
	"gorm.io/gorm"

	"docpulse/internal/documents"
)

// demoDocuments are the documents created by the seeder.
var demoDocuments = []documents.Document{
	{ID: "demo-msa", Title: "Master Services Agreement", PageCount: 12},
	{ID: "demo-pitch", Title: "Series A Pitch Deck", PageCount: 18},
	{ID: "demo-offer", Title: "Offer Letter", PageCount: 3},
}

var (
	countries = []string{"US", "US", "US", "GB", "DE", "FR", "CA", "ES", "BR", "IN", documents.UnknownCountry}
	devices   = []struct {
		device  string
		browser string
	}{
		{"desktop", "chrome"},
		{"desktop", "chrome"},
		{"desktop", "firefox"},
		{"desktop", "safari"},
		{"mobile", "safari"},
		{"mobile", "chrome"},
		{"tablet", "safari"},
		{documents.UnknownDevice, documents.UnknownBrowser},
	}
)

// Seeder fills the document tables with demo viewer activity.
type Seeder struct {
	DBManager    cartridge.DBManager
	Logger       *slog.Logger
	SessionCount int

	rng *rand.Rand
	now func() time.Time
}

// NewSeeder creates a new seeder instance
func NewSeeder(dbManager cartridge.DBManager, logger *slog.Logger, sessionCount int) *Seeder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Seeder{
		DBManager:    dbManager,
		Logger:       logger,
		SessionCount: sessionCount,
		rng:          rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x5eed)),
		now:          time.Now,
	}
}

// WithSeed makes the generated data reproducible.
func (s *Seeder) WithSeed(seed uint64) *Seeder {
	s.rng = rand.New(rand.NewPCG(seed, 0x5eed))
	return s
}

// Run executes the seeding process
func (s *Seeder) Run(ctx context.Context) error {
	start := time.Now()
	s.Logger.Info("Starting database seeding...", slog.Int("sessionCount", s.SessionCount))

	db := s.DBManager.GetConnection()

	for _, doc := range demoDocuments {
		if err := db.Where(documents.Document{ID: doc.ID}).FirstOrCreate(&doc).Error; err != nil {
			return fmt.Errorf("failed to seed document %s: %w", doc.ID, err)
		}

		if err := s.generateSessions(ctx, db, doc); err != nil {
			return fmt.Errorf("failed to generate data for %s: %w", doc.ID, err)
		}
	}

	s.Logger.Info("Seeding completed successfully", slog.Duration("elapsed", time.Since(start)))
	return nil
}

// generateSessions creates sessions spread over the last 30 days. Each
// session reads a prefix of the document and progresses through the funnel
// with decreasing probability.
func (s *Seeder) generateSessions(ctx context.Context, db *gorm.DB, doc documents.Document) error {
	viewers := max(s.SessionCount/3, 1)

	return db.Transaction(func(tx *gorm.DB) error {
		for i := 0; i < s.SessionCount; i++ {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			device := devices[s.rng.IntN(len(devices))]
			startedAt := s.now().UTC().Add(-time.Duration(s.rng.IntN(30*24*60*60)) * time.Second)
			pagesRead := 1 + s.rng.IntN(doc.PageCount)

			session := documents.ViewerSession{
				DocumentID:      doc.ID,
				ViewerSignature: fmt.Sprintf("%s-viewer-%d", doc.ID, s.rng.IntN(viewers)),
				Country:         countries[s.rng.IntN(len(countries))],
				DeviceType:      device.device,
				Browser:         device.browser,
				StartedAt:       startedAt,
			}
			if err := tx.Create(&session).Error; err != nil {
				return err
			}

			views := make([]documents.PageView, 0, pagesRead)
			total := 0.0
			viewedAt := startedAt
			for page := 1; page <= pagesRead; page++ {
				seconds := float64(5 + s.rng.IntN(90))
				total += seconds
				views = append(views, documents.PageView{
					DocumentID:      doc.ID,
					SessionID:       session.ID,
					PageNumber:      page,
					DurationSeconds: seconds,
					ViewedAt:        viewedAt,
				})
				viewedAt = viewedAt.Add(time.Duration(seconds) * time.Second)
			}
			if err := tx.Create(&views).Error; err != nil {
				return err
			}
			if err := tx.Model(&session).Update("duration_seconds", total).Error; err != nil {
				return err
			}

			funnel := s.funnelFor(session, pagesRead, doc.PageCount, viewedAt)
			if err := tx.Create(&funnel).Error; err != nil {
				return err
			}
		}

		s.Logger.Info("Generated viewer sessions for document",
			slog.String("document_id", doc.ID),
			slog.Int("sessions", s.SessionCount))
		return nil
	})
}

func (s *Seeder) funnelFor(session documents.ViewerSession, pagesRead, pageCount int, endedAt time.Time) []documents.FunnelEvent {
	events := []documents.FunnelEvent{{
		DocumentID: session.DocumentID,
		SessionID:  session.ID,
		Stage:      documents.StageOpened,
		OccurredAt: session.StartedAt,
	}}

	// Viewed means the reader got at least halfway through.
	if pagesRead*2 < pageCount {
		return events
	}
	events = append(events, documents.FunnelEvent{
		DocumentID: session.DocumentID,
		SessionID:  session.ID,
		Stage:      documents.StageViewed,
		OccurredAt: endedAt,
	})

	if s.rng.Float64() < 0.3 {
		events = append(events, documents.FunnelEvent{
			DocumentID: session.DocumentID,
			SessionID:  session.ID,
			Stage:      documents.StageSigned,
			OccurredAt: endedAt.Add(time.Minute),
		})
	}
	return events
}
