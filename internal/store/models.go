package store

import "time"

type User struct {
	ID           string
	Name         string
	PasswordHash string
	Role         string
	CreatedAt    time.Time
}

type Story struct {
	ID              string
	Title           string
	Body            string
	State           string
	Author          string
	RejectionReason string
	Version         int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type Topic struct {
	ID        string
	Name      string
	State     string
	Author    string
	ParentID  *string
	Version   int
	CreatedAt time.Time
}

type Comment struct {
	ID        string
	StoryID   string
	Body      string
	State     string
	Author    string // empty for anonymous comments
	Version   int
	CreatedAt time.Time
}

type Asset struct {
	ID          string
	StoryID     string
	Filename    string
	ContentType string
	Size        int64
	UploadedBy  string
	CreatedAt   time.Time
}

type CommitInfo struct {
	Hash      string
	Message   string
	Author    string
	CreatedAt time.Time
}
