package emergency

import "context"

type CaseRepository interface {
	Create(ctx context.Context, c *Case) error
	List(ctx context.Context, limit, offset int) ([]*Case, int, error)
	SearchPatientNames(ctx context.Context, query string, limit int) ([]string, error)
}
