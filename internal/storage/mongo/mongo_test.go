package mongo

import (
	"testing"
	"time"

	"code_auth/internal/models"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestUserDocRoundTrip(t *testing.T) {
	t.Parallel()

	u := models.User{
		ID:              primitive.NewObjectID().Hex(),
		Email:           "user@x.com",
		PassHash:        []byte("hash"),
		IsEmailVerified: true,
		CreatedAt:       time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	assert.Equal(t, u, toUserDoc(u).toModel())
}

func TestUserDoc_OmitsEmptyIdentifiers(t *testing.T) {
	t.Parallel()

	raw, err := bson.Marshal(toUserDoc(models.User{Mobile: "09121234567"}))
	assert.NoError(t, err)

	var m bson.M
	assert.NoError(t, bson.Unmarshal(raw, &m))

	assert.NotContains(t, m, "_id")
	assert.NotContains(t, m, "email")
	assert.NotContains(t, m, "username")
	assert.Equal(t, "09121234567", m["mobile"])
}
