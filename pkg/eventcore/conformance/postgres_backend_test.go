package conformance

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"eventcore/pkg/eventcore"
	pgstore "eventcore/pkg/eventcore/postgres"
)

var (
	pgCtx       context.Context
	pgContainer *tcpostgres.PostgresContainer
	pgPool      *pgxpool.Pool
)

var _ = BeforeSuite(func() {
	pgCtx = context.Background()

	Eventually(func() error {
		container, err := tcpostgres.Run(pgCtx, "postgres:17.5-alpine",
			tcpostgres.WithDatabase("eventcore"),
			tcpostgres.WithUsername("postgres"),
			tcpostgres.WithPassword("postgres"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").WithOccurrence(2).WithStartupTimeout(30*time.Second),
			),
		)
		if err != nil {
			return fmt.Errorf("start postgres container: %w", err)
		}
		pgContainer = container

		dsn, err := container.ConnectionString(pgCtx, "sslmode=disable")
		if err != nil {
			return fmt.Errorf("connection string: %w", err)
		}
		pool, err := pgstore.Connect(pgCtx, dsn)
		if err != nil {
			return fmt.Errorf("connect pool: %w", err)
		}
		pgPool = pool
		return nil
	}, 60*time.Second, 2*time.Second).Should(Succeed())

	schemaSQL, err := os.ReadFile("../postgres/schema.sql")
	Expect(err).NotTo(HaveOccurred())
	_, err = pgPool.Exec(pgCtx, string(schemaSQL))
	Expect(err).NotTo(HaveOccurred())
})

var _ = AfterSuite(func() {
	if pgPool != nil {
		pgPool.Close()
	}
	if pgContainer != nil {
		_ = pgContainer.Terminate(pgCtx)
	}
})

// truncatePostgres clears every table between specs so the contract's
// assertions never see another spec's rows.
func truncatePostgres() {
	_, err := pgPool.Exec(pgCtx, "TRUNCATE TABLE events, contexts, snapshots RESTART IDENTITY CASCADE")
	Expect(err).NotTo(HaveOccurred())
}

var _ = describeEventStoreContract("postgres", func() (eventcore.Providers, func()) {
	truncatePostgres()
	providers, err := pgstore.New(pgPool)
	Expect(err).NotTo(HaveOccurred())
	return providers, nil
})
