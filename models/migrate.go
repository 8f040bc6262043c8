package models

import "gorm.io/gorm"

func AutoMigrateAll(db *gorm.DB) error {
	err := db.AutoMigrate(
		&Room{},
		&Message{},
		&Participant{},
		&VisitorSession{},
		&SessionHistory{},
		&AgentCapacity{},
		&ChatWindow{},
		&RoomAnalytics{},
		&AuditEvent{},
	)
	if err != nil {
		return err
	}
	return nil
}
