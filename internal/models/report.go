// Package models defines the GORM models persisted by Pressbox.
package models

import "time"

// Report is an archived match report. Completed and failed pipeline runs are
// written here so their outcome survives process restarts; the in-memory
// session store remains the only state the running pipeline reads.
type Report struct {
	ID         uint   `gorm:"primaryKey;autoIncrement"`
	SessionID  string `gorm:"size:64;uniqueIndex"`
	FixtureID  string `gorm:"size:32;index"`
	Title      string `gorm:"size:256"`
	Content    string `gorm:"type:json"` // final report artifact
	Signals    int
	Categories int
	Status     string `gorm:"size:16;index"` // completed or error
	Error      string `gorm:"type:text"`
	CreatedAt  time.Time
}
