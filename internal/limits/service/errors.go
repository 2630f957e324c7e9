package service

import "errors"

var (
	ErrNotFound     = errors.New("number limit not found")
	ErrContention   = errors.New("limit capacity taken by a concurrent writer")
	ErrInvalidLimit = errors.New("invalid number limit")
)
