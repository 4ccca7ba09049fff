package repository

import "errors"

// Sentinel errors returned by repositories. Services translate them into
// typed application errors.
var (
	ErrCapacityExceeded    = errors.New("section capacity exceeded")
	ErrInvalidTransition   = errors.New("invalid state transition")
	ErrDuplicateToken      = errors.New("request token already in use")
	ErrSectionUnavailable  = errors.New("section archived or missing")
	ErrCapacityBelowCount  = errors.New("capacity below current enrollment")
	ErrSectionOccupied     = errors.New("section still has active students")
	ErrDuplicateSnapshot   = errors.New("snapshot name already in use")
	ErrDuplicateSectionKey = errors.New("section name already used for grade level")
)
