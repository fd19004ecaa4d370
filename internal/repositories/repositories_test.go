package repositories

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"clipforge/internal/repositories/storetest"
)

// Runs only when CLIPFORGE_TEST_DATABASE_URL points at a disposable database.
func TestPostgresStores(t *testing.T) {
	url := os.Getenv("CLIPFORGE_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("CLIPFORGE_TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := Open(ctx, url)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, Migrate(ctx, pool))

	suite.Run(t, &storetest.Suite{Setup: func() storetest.Stores {
		_, err := pool.Exec(ctx, `TRUNCATE jobs, credit_balances, alerts, assets`)
		require.NoError(t, err)
		return storetest.Stores{
			Jobs:    NewJobRepository(pool),
			Credits: NewCreditRepository(pool),
			Alerts:  NewAlertRepository(pool),
			Assets:  NewAssetRepository(pool),
		}
	}})
}

func TestSplitStatements(t *testing.T) {
	stmts := splitStatements("CREATE TABLE a (x int);\n\n  ;CREATE INDEX i ON a (x);\n")
	require.Len(t, stmts, 2)
}
