package audit_test

import (
	"context"
	"os"
	"testing"

	apitesting "github.com/malbeclabs/ados/api/testing"
	adostesting "github.com/malbeclabs/ados/utils/pkg/testing"
)

var testDB *apitesting.DB

func TestMain(m *testing.M) {
	ctx := context.Background()
	log := adostesting.NewLogger()

	var err error
	testDB, err = apitesting.NewDB(ctx, log, nil)
	if err != nil {
		log.Error("failed to start PostgreSQL container", "error", err)
		os.Exit(1)
	}

	code := m.Run()

	testDB.Close()
	os.Exit(code)
}
