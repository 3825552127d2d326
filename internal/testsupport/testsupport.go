package testsupport

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/karloscodes/cartridge"
	ctestsupport "github.com/karloscodes/cartridge/testsupport"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"docpulse/internal/documents"
)

// testDBCache caches test databases by root test name so that subtests and
// helpers share one database.
var testDBCache = make(map[string]*gorm.DB)
var testDBCacheMu sync.Mutex

// TestDBManager wraps cartridge's TestDBManager around a test connection.
type TestDBManager struct {
	*ctestsupport.TestDBManager
}

// NewTestDBManager creates a TestDBManager that implements cartridge.DBManager
func NewTestDBManager(db *gorm.DB) *TestDBManager {
	return &TestDBManager{
		TestDBManager: ctestsupport.NewTestDBManager(db),
	}
}

var _ cartridge.DBManager = (*TestDBManager)(nil)

// SetupTestDB creates a named in-memory database with the document tables
// migrated. cache=shared lets every pooled connection see the same data.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	rootName := t.Name()
	if idx := strings.Index(rootName, "/"); idx > 0 {
		rootName = rootName[:idx]
	}

	testDBCacheMu.Lock()
	if db, exists := testDBCache[rootName]; exists {
		testDBCacheMu.Unlock()
		return db
	}
	testDBCacheMu.Unlock()

	dsn := fmt.Sprintf("file:test_%s_%d?mode=memory&cache=shared", rootName, time.Now().UnixNano())

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("testsupport: failed to open test database: %v", err)
	}

	if err := db.AutoMigrate(documents.AllModels()...); err != nil {
		t.Fatalf("testsupport: failed to migrate models: %v", err)
	}

	testDBCacheMu.Lock()
	testDBCache[rootName] = db
	testDBCacheMu.Unlock()

	t.Cleanup(func() {
		testDBCacheMu.Lock()
		delete(testDBCache, rootName)
		testDBCacheMu.Unlock()
		sqlDB, err := db.DB()
		if err == nil {
			sqlDB.Close()
		}
	})

	return db
}

// SetupTestDBManager returns a manager over a fresh test database.
func SetupTestDBManager(t *testing.T) (*TestDBManager, *slog.Logger) {
	t.Helper()
	return NewTestDBManager(SetupTestDB(t)), GetLogger()
}

// CleanTables empties the given tables.
func CleanTables(db *gorm.DB, tables ...string) {
	if len(tables) == 0 {
		tables = []string{"funnel_events", "page_views", "viewer_sessions", "documents"}
	}

	db.Transaction(func(tx *gorm.DB) error {
		for _, table := range tables {
			tx.Exec("DELETE FROM " + table)
			tx.Exec("DELETE FROM sqlite_sequence WHERE name=?", table)
		}
		return nil
	})
}

// GetLogger returns a test logger
func GetLogger() *slog.Logger {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError})
	return slog.New(handler)
}

// CreateDocument inserts a document.
func CreateDocument(t *testing.T, db *gorm.DB, id, title string, pages int) documents.Document {
	t.Helper()

	doc := documents.Document{ID: id, Title: title, PageCount: pages}
	require.NoError(t, db.Create(&doc).Error)
	return doc
}

// SessionInput describes a viewer session fixture. Empty fields fall back
// to the "unknown" sentinels.
type SessionInput struct {
	DocumentID      string
	ViewerSignature string
	Country         string
	DeviceType      string
	Browser         string
	DurationSeconds float64
	StartedAt       time.Time
}

// CreateSession inserts a viewer session.
func CreateSession(t *testing.T, db *gorm.DB, in SessionInput) documents.ViewerSession {
	t.Helper()

	session := documents.ViewerSession{
		DocumentID:      in.DocumentID,
		ViewerSignature: in.ViewerSignature,
		Country:         orDefault(in.Country, documents.UnknownCountry),
		DeviceType:      orDefault(in.DeviceType, documents.UnknownDevice),
		Browser:         orDefault(in.Browser, documents.UnknownBrowser),
		DurationSeconds: in.DurationSeconds,
		StartedAt:       in.StartedAt.UTC(),
	}
	require.NoError(t, db.Create(&session).Error)
	return session
}

// CreatePageView inserts a page view for session.
func CreatePageView(t *testing.T, db *gorm.DB, session documents.ViewerSession, page int, seconds float64, at time.Time) documents.PageView {
	t.Helper()

	view := documents.PageView{
		DocumentID:      session.DocumentID,
		SessionID:       session.ID,
		PageNumber:      page,
		DurationSeconds: seconds,
		ViewedAt:        at.UTC(),
	}
	require.NoError(t, db.Create(&view).Error)
	return view
}

// CreateFunnelEvent records that session reached stage.
func CreateFunnelEvent(t *testing.T, db *gorm.DB, session documents.ViewerSession, stage documents.FunnelStage, at time.Time) documents.FunnelEvent {
	t.Helper()

	event := documents.FunnelEvent{
		DocumentID: session.DocumentID,
		SessionID:  session.ID,
		Stage:      stage,
		OccurredAt: at.UTC(),
	}
	require.NoError(t, db.Create(&event).Error)
	return event
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
