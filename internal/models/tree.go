// Package models defines the domain types for the knowledge-base tree.
package models

import "time"

// Directory is a persisted folder in the knowledge base.
type Directory struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Alias     string    `json:"alias,omitempty"`
	ParentID  string    `json:"parent,omitempty"` // empty only for the root
	Path      string    `json:"path"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsRoot reports whether d is the root directory.
func (d *Directory) IsRoot() bool { return d.ParentID == "" }

// DisplayName is the alias when one is set, otherwise the filesystem name.
func (d *Directory) DisplayName() string {
	if d.Alias != "" {
		return d.Alias
	}
	return d.Name
}

// Document is a persisted markdown file.
type Document struct {
	ID           string    `json:"id"`
	FileName     string    `json:"file_name"`
	DirectoryID  string    `json:"directory"`
	Path         string    `json:"path"`
	Title        string    `json:"title"`
	DerivedTitle string    `json:"derived_title,omitempty"`
	CustomID     string    `json:"custom_id,omitempty"`
	Tags         string    `json:"tags,omitempty"`
	ReadingTime  int       `json:"reading_time"`
	Checksum     string    `json:"checksum"`
	ModTime      time.Time `json:"mod_time"`
	Content      string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// EntryKind distinguishes directories from documents in a listing.
type EntryKind string

const (
	KindDirectory EntryKind = "directory"
	KindDocument  EntryKind = "document"
)

// Entry is one row of a sidebar listing.
type Entry struct {
	ID          string    `json:"id"`
	Kind        EntryKind `json:"kind"`
	Name        string    `json:"name"`
	DisplayName string    `json:"display_name"`
	Path        string    `json:"path"`
	Title       string    `json:"title,omitempty"`
	CustomID    string    `json:"custom_id,omitempty"`
}

// Ref returns the identifier a client should use to open the entry: the
// custom id for documents that have one, the system id otherwise.
func (e Entry) Ref() string {
	if e.CustomID != "" {
		return e.CustomID
	}
	return e.ID
}
