package database

import (
	"regexp"

	"github.com/periscope/aggregator-api/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Filter compiles the search and store data filters of q into a MongoDB filter document.
//
// The search term is matched case-insensitively as a literal substring of any searchable field.
func Filter(q models.ListQuery) bson.D {
	filter := bson.D{}

	if q.StoreDataID != "" {
		filter = append(filter, bson.E{Key: models.FieldPath(models.FieldStoreDataID), Value: q.StoreDataID})
	}

	if q.Search != "" {
		pattern := primitive.Regex{Pattern: regexp.QuoteMeta(q.Search), Options: "i"}
		or := make(bson.A, 0, len(models.SearchableFields))
		for _, f := range models.SearchableFields {
			or = append(or, bson.D{{Key: models.FieldPath(f), Value: pattern}})
		}
		filter = append(filter, bson.E{Key: "$or", Value: or})
	}

	return filter
}

// SortSpec returns the sort document for q, or nil for natural order.
// The record ID breaks ties so that paging is stable.
func SortSpec(q models.ListQuery) bson.D {
	if q.Sort == "" {
		return nil
	}

	dir := 1
	if q.Descending {
		dir = -1
	}
	return bson.D{
		{Key: models.FieldPath(q.Sort), Value: dir},
		{Key: "_id", Value: dir},
	}
}
