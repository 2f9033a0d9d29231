package model

import (
	"encoding/json"
	"fmt"
	"time"
)

const (
	DocumentStatusProcessed = "processed"
	DocumentStatusEmpty     = "empty"
)

// Document is the metadata record of one upload. ChunkIDs holds the ids of
// every vector-store item created for it, as a JSON array.
type Document struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	OrganizationID uint      `gorm:"not null;index" json:"organization_id"`
	UploadedBy     uint      `gorm:"not null;index" json:"uploaded_by"`
	Filename       string    `gorm:"size:255;not null;index" json:"filename"`
	DocType        string    `gorm:"size:32;not null" json:"doc_type"`
	MimeType       string    `gorm:"size:128" json:"mime_type"`
	FileSize       int64     `json:"file_size"`
	Status         string    `gorm:"size:16;not null" json:"status"`
	ChunkCount     int       `json:"chunk_count"`
	ChunkIDs       string    `gorm:"type:text" json:"-"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (d *Document) ChunkIDList() ([]string, error) {
	if d.ChunkIDs == "" {
		return nil, nil
	}
	var ids []string
	if err := json.Unmarshal([]byte(d.ChunkIDs), &ids); err != nil {
		return nil, fmt.Errorf("parse chunk ids of document %d failed: %w", d.ID, err)
	}
	return ids, nil
}

func (d *Document) SetChunkIDs(ids []string) {
	if len(ids) == 0 {
		d.ChunkIDs = "[]"
		return
	}
	b, _ := json.Marshal(ids)
	d.ChunkIDs = string(b)
}
