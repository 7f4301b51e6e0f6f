package repository

import "errors"

var (
	ErrNotFound        = errors.New("task not found")
	ErrVersionConflict = errors.New("task version conflict")
)
