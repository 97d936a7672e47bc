// Package models defines the request/response types and persisted records for checkweb
package models

import (
	"strings"
	"time"
)

// User represents a web user in the credentials store
type User struct {
	ID            int64     `json:"id" db:"id"`
	Username      string    `json:"username" db:"username"`
	Email         string    `json:"email" db:"email"`
	PasswordHash  string    `json:"-" db:"password_hash"`
	DisplayName   string    `json:"display_name" db:"display_name"`
	Roles         []string  `json:"roles,omitempty" db:"roles"`             // stored comma separated
	Permissions   []string  `json:"permissions,omitempty" db:"permissions"` // stored comma separated
	LoginAttempts int       `json:"login_attempts" db:"login_attempts"`     // Failed login attempts counter
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}

// HasRole reports whether the user carries the role (case insensitive)
func (u *User) HasRole(role string) bool {
	for _, r := range u.Roles {
		if strings.EqualFold(r, role) {
			return true
		}
	}
	return false
}

// JoinList encodes a string list for a single text column
func JoinList(items []string) string {
	clean := make([]string, 0, len(items))
	for _, it := range items {
		if it = strings.TrimSpace(it); it != "" {
			clean = append(clean, it)
		}
	}
	return strings.Join(clean, ",")
}

// SplitList decodes a column written by JoinList
func SplitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ResponseError describes a single failed field
type ResponseError struct {
	ErrorCode string `json:"error_code" xml:"ErrorCode" yaml:"error_code"`
	FieldName string `json:"field_name" xml:"FieldName" yaml:"field_name"`
	Message   string `json:"message" xml:"Message" yaml:"message"`
}

// ResponseStatus is the error payload every failed request carries
type ResponseStatus struct {
	ErrorCode  string          `json:"error_code" xml:"ErrorCode" yaml:"error_code"`
	Message    string          `json:"message,omitempty" xml:"Message,omitempty" yaml:"message,omitempty"`
	StackTrace string          `json:"stack_trace,omitempty" xml:"StackTrace,omitempty" yaml:"stack_trace,omitempty"`
	Errors     []ResponseError `json:"errors,omitempty" xml:"Errors>ResponseError,omitempty" yaml:"errors,omitempty"`
}

// ErrorResponse wraps a ResponseStatus for the wire
type ErrorResponse struct {
	ResponseStatus ResponseStatus `json:"response_status" xml:"ResponseStatus" yaml:"response_status"`
}
