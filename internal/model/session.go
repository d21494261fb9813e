package model

import "time"

// Session is one imported tree: a named upload that owns people, jobs
// and everything derived from them.
type Session struct {
	ID        string    `json:"id"`
	Filename  string    `json:"filename"`
	CreatedAt time.Time `json:"created_at"`
}
