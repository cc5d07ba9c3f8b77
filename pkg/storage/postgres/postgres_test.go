package postgres_test

import (
	"context"
	"os"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/rapport/pkg/storage"
	"github.com/papercomputeco/rapport/pkg/storage/postgres"
	"github.com/papercomputeco/rapport/pkg/storage/storagetest"
)

// connStr returns the PostgreSQL connection string from environment or skips the test.
func connStr() string {
	dsn := os.Getenv("RAPPORT_TEST_POSTGRES_DSN")
	if dsn == "" {
		Skip("RAPPORT_TEST_POSTGRES_DSN not set, skipping PostgreSQL tests")
	}
	return dsn
}

var _ = storagetest.DriverSpecs("postgres", func() storage.Driver {
	ctx := context.Background()
	d, err := postgres.NewDriver(ctx, connStr())
	Expect(err).NotTo(HaveOccurred())

	_, err = d.DB.ExecContext(ctx, `TRUNCATE friends, interactions, memberships, social_groups, profiles`)
	Expect(err).NotTo(HaveOccurred())
	return d
})
