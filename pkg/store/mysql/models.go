package mysql

import "traingrid/pkg/store/mysql/model"

// Re-export model types so repository callers don't import two packages.

type (
	// Database models
	Job            = model.Job
	WorkerSnapshot = model.WorkerSnapshot

	// Custom JSON types
	JSONMap         = model.JSONMap
	JSONStringArray = model.JSONStringArray
)
