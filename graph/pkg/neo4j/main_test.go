package neo4j_test

import (
	"context"
	"os"
	"testing"

	"github.com/malbeclabs/ados/graph/pkg/neo4j"
	neo4jtesting "github.com/malbeclabs/ados/graph/pkg/neo4j/testing"
	adostesting "github.com/malbeclabs/ados/utils/pkg/testing"
	"github.com/stretchr/testify/require"
)

var sharedDB *neo4jtesting.DB

func TestMain(m *testing.M) {
	log := adostesting.NewLogger()
	var err error
	sharedDB, err = neo4jtesting.NewDB(context.Background(), log, nil)
	if err != nil {
		log.Error("failed to create shared Neo4j DB", "error", err)
		os.Exit(1)
	}
	code := m.Run()
	sharedDB.Close()
	os.Exit(code)
}

func testClient(t *testing.T) neo4j.Client {
	client, err := neo4jtesting.NewTestClient(t, sharedDB)
	require.NoError(t, err)
	return client
}

func testReadOnlyClient(t *testing.T) neo4j.Client {
	client, err := neo4jtesting.NewReadOnlyTestClient(t, sharedDB)
	require.NoError(t, err)
	return client
}
