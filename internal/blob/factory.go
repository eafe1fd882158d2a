package blob

import (
	"context"
	"fmt"
	"os"

	"formsentry/internal/infra/blob/fs"
	"formsentry/internal/infra/blob/memory"
	"formsentry/internal/infra/blob/s3"
)

// Open selects a Store implementation from environment variables.
//
//	FORMSENTRY_BLOB_DRIVER: fs|s3|memory (default fs)
//	FORMSENTRY_BLOB_FS_ROOT: directory root when driver=fs (default ./rundata)
//	(S3 specific variables documented in the s3 driver)
func Open(ctx context.Context) (Store, error) {
	driver := os.Getenv("FORMSENTRY_BLOB_DRIVER")
	if driver == "" {
		driver = string(DriverFilesystem)
	}
	switch Driver(driver) {
	case DriverFilesystem:
		return fs.New(os.Getenv("FORMSENTRY_BLOB_FS_ROOT"))
	case DriverS3:
		return s3.OpenFromEnv(ctx)
	case DriverMemory:
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %s", driver)
	}
}
