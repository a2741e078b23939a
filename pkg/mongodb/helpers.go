package mongodb

import (
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
)

// Now returns the current time in UTC, truncated to the millisecond BSON stores
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

// IsNotFound reports whether err is mongo.ErrNoDocuments
func IsNotFound(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// IsDuplicateKey reports whether err is a unique index violation
func IsDuplicateKey(err error) bool {
	return mongo.IsDuplicateKeyError(err)
}
