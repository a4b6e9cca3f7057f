package services

import (
	"storefront/apperrors"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ParseID converts a hex object id, reporting a validation error naming what
// was malformed.
func ParseID(hex, what string) (primitive.ObjectID, error) {
	id, err := primitive.ObjectIDFromHex(hex)
	if err != nil {
		return primitive.NilObjectID, apperrors.Validation("Invalid " + what + " ID")
	}
	return id, nil
}
