package services

import "errors"

// Shared errors used across services and HTTP mapping. Validation
// rejections are NOT errors: they travel as typed results with a
// human-readable message (see ValidationResult).
var (
	ErrRosterNotFound   = errors.New("roster not found")
	ErrCategoryNotFound = errors.New("category not found")
	ErrLinkNotFound     = errors.New("player link not found")

	ErrRosterNameRequired   = errors.New("roster name is required")
	ErrRosterNameConflict   = errors.New("roster name is already in use")
	ErrCategoryNameRequired = errors.New("category name is required")
	ErrCategoryNameConflict = errors.New("category name is already in use")
	ErrRosterInvalidWindow  = errors.New("roster end time must be after start time")
	ErrRosterInvalidCap     = errors.New("roster max members must be positive")

	ErrLinkTagRequired  = errors.New("player tag is required")
	ErrUnknownPlayerTag = errors.New("no player found for that tag")

	ErrChannelNotFound = errors.New("channel not found in this guild")

	ErrExportFailed = errors.New("failed to export roster")
)
