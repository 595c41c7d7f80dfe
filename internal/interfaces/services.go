package interfaces

import (
	"context"

	"github.com/ternarybob/dartseries/internal/models"
)

// StatementFetcher retrieves the raw line items a company filed for one fiscal year.
// Missing scopes are simply absent; a year with nothing filed returns ErrorNoDisclosure.
type StatementFetcher interface {
	Fetch(ctx context.Context, corp models.CorpCode, fiscalYear int) ([]models.RawLineItem, error)
}

// DirectorySource downloads the full corp-code directory from upstream.
type DirectorySource interface {
	GetCorpCodes(ctx context.Context) ([]models.Corporation, error)
}

// IdentifierResolver maps a free-text company name to a directory entry.
type IdentifierResolver interface {
	Resolve(ctx context.Context, companyName string) (models.Corporation, error)
	Search(ctx context.Context, companyName string, limit int) ([]models.Candidate, error)
	RefreshDirectory(ctx context.Context) (int, error)
}

// SeriesService is the pipeline entry point consumed by the CLI, the HTTP API and the batch runner.
type SeriesService interface {
	GetSeries(ctx context.Context, companyName, referenceYYYYMM string) (*models.Series, error)
	Refresh(ctx context.Context, companyName, referenceYYYYMM string) (*models.Series, error)
}
