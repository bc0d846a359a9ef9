package utils

import "errors"

// Common application errors used across services.
var (
	ErrMatchingBusy           = errors.New("MATCHING_ALREADY_RUNNING")
	ErrEmptyReferenceCatalog  = errors.New("EMPTY_REFERENCE_CATALOG")
	ErrEmptyCompetitorCatalog = errors.New("EMPTY_COMPETITOR_CATALOG")
	ErrInvalidThreshold       = errors.New("INVALID_THRESHOLD")
	ErrProductNotFound        = errors.New("PRODUCT_NOT_FOUND")
	ErrMatchNotFound          = errors.New("MATCH_NOT_FOUND")
	ErrMatchExists            = errors.New("MATCH_ALREADY_EXISTS")
	ErrInvalidSource          = errors.New("INVALID_SOURCE")
	ErrNoEmbeddingProvider    = errors.New("NO_EMBEDDING_PROVIDER")
)
