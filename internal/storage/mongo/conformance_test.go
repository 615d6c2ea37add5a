package mongo

import (
	"context"
	"os"
	"testing"
	"time"

	"code_auth/internal/storage/storagetest"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// TEST_MONGO_URI points the shared driver tests at a live server, e.g.
// mongodb://localhost:27017. Every subtest gets its own database.
func TestConformance(t *testing.T) {
	uri := os.Getenv("TEST_MONGO_URI")
	if uri == "" {
		t.Skip("TEST_MONGO_URI is not set")
	}

	storagetest.Run(t, func(t *testing.T) storagetest.Store {
		t.Helper()

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		repo, err := New(ctx, uri, "code_auth_test_"+primitive.NewObjectID().Hex())
		if err != nil {
			t.Skipf("cannot connect to MongoDB at %s: %v", uri, err)
		}

		t.Cleanup(func() {
			_ = repo.users.Database().Drop(context.Background())
			repo.Close()
		})

		return repo
	})
}
