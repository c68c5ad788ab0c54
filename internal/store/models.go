package store

import (
	"time"

	"portfolio/api/internal/content"
)

type ContentRow struct {
	ID        int
	Content   content.Tree
	UpdatedAt time.Time
}
