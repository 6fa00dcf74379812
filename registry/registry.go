// Package registry records uploaded datasets: once on chain, for public
// provenance, and once in a discovery index that the search endpoints query.
package registry

import (
	"context"

	"github.com/vitwit/databox/types"
)

// Registry records an upload on the chain. Registration is best effort from
// the uploader's point of view: the blob is already stored when this runs,
// so callers log failures and keep the upload.
type Registry interface {
	RegisterUpload(ctx context.Context, ds types.Dataset, payAddress string) (txHash string, err error)
}

// Index serves dataset discovery.
type Index interface {
	Add(ds types.Dataset)
	Datasets(ctx context.Context) ([]types.Dataset, error)
}
