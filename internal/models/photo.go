package models

import (
	"strconv"
	"time"
)

// UploadRequest is the body of POST /api/images
type UploadRequest struct {
	FileName    string `json:"file_name"`
	ImageBase64 string `json:"image_base64"`
	MimeType    string `json:"mime_type,omitempty"` // Store infers from the extension when empty
}

// Photo represents a stored image as returned by the store
type Photo struct {
	PhotoID   int64    `json:"photo_id"`
	FileName  string   `json:"file_name"`
	FilePath  string   `json:"file_path"`
	Tags      []string `json:"tags"`
	CreatedAt string   `json:"created_at"` // Naive timestamp, no zone
}

// UploadResponse wraps the photo created by POST /api/images
type UploadResponse struct {
	Photo *Photo `json:"photo"`
}

// PhotosResponse is the body of GET /api/images
type PhotosResponse struct {
	Photos []Photo `json:"photos"`
}

// SearchRequest is the body of POST /api/images/search
type SearchRequest struct {
	Query string `json:"query"`
}

// SearchResponse is the body of POST /api/images/search
type SearchResponse struct {
	Query  string   `json:"query"`
	Tags   []string `json:"tags"`
	Photos []Photo  `json:"photos"`
}

// ErrorResponse is the body of any non-2xx store response
type ErrorResponse struct {
	Error string `json:"error"`
}

// Record is the store's acknowledgment of one uploaded item, independent of backend.
type Record struct {
	ID        string    // photo_id, object ETag or blob ETag
	FileName  string    // Name the store saved the item under
	Location  string    // Server path, object key or blob URL
	Tags      []string  // Only the http backend assigns tags
	CreatedAt time.Time // Zero when the store did not report it
}

// createdAtLayouts covers the store's naive timestamps with and without fractions.
var createdAtLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999",
	time.RFC3339Nano,
}

// Created parses CreatedAt, treating naive timestamps as UTC.
func (p *Photo) Created() (time.Time, bool) {
	for _, layout := range createdAtLayouts {
		if t, err := time.Parse(layout, p.CreatedAt); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// Record converts the photo into a backend-neutral acknowledgment.
func (p *Photo) Record() *Record {
	created, _ := p.Created()
	return &Record{
		ID:        strconv.FormatInt(p.PhotoID, 10),
		FileName:  p.FileName,
		Location:  p.FilePath,
		Tags:      p.Tags,
		CreatedAt: created,
	}
}
