// Package report archives finished runs so their outcome outlives the
// session store.
package report

import (
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/zulandar/pressbox/internal/models"
	"github.com/zulandar/pressbox/internal/session"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Save upserts the archive row for a terminal session.
func Save(db *gorm.DB, sess *session.Session) error {
	rec := models.Report{
		SessionID:  sess.ID,
		FixtureID:  sess.FixtureID,
		Title:      titleOf(sess),
		Content:    string(sess.FinalArtifact),
		Signals:    len(sess.PartialResults),
		Categories: len(sess.CategoryResults),
		Status:     sess.Status,
		Error:      sess.Error,
	}

	result := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "session_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"title", "content", "signals", "categories", "status", "error"}),
	}).Create(&rec)
	if result.Error != nil {
		return fmt.Errorf("report: save session %s: %w", sess.ID, result.Error)
	}
	return nil
}

// List returns the most recent archived reports, newest first.
func List(db *gorm.DB, limit int) ([]models.Report, error) {
	if limit <= 0 {
		limit = 50
	}
	var reports []models.Report
	if err := db.Order("created_at DESC").Limit(limit).Find(&reports).Error; err != nil {
		return nil, fmt.Errorf("report: list: %w", err)
	}
	return reports, nil
}

// Get returns the archived report for a session id.
func Get(db *gorm.DB, sessionID string) (*models.Report, error) {
	var rec models.Report
	if err := db.Where("session_id = ?", sessionID).First(&rec).Error; err != nil {
		return nil, fmt.Errorf("report: get session %s: %w", sessionID, err)
	}
	return &rec, nil
}

// titleOf pulls the headline out of the final artifact, if there is one.
func titleOf(sess *session.Session) string {
	if len(sess.FinalArtifact) == 0 {
		return ""
	}
	var head struct {
		Title string `json:"title"`
	}
	if err := sonic.Unmarshal(sess.FinalArtifact, &head); err != nil {
		return ""
	}
	return head.Title
}
