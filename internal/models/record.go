// Package models defines the aggregator data records served by the API and the admin listing contract.
package models

import (
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrInvalidID is returned when a record identifier is not a valid object ID.
	ErrInvalidID = errors.New("invalid record id")
)

// AggregatorRecord is one ingestion event for a store, platform and brand tuple.
type AggregatorRecord struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	BizID     string             `bson:"biz_id"`
	Brand     Document           `bson:"brand"`
	City      string             `bson:"city"`
	Data      Document           `bson:"data"`
	Location  Document           `bson:"location"`
	Message   string             `bson:"message"`
	Platform  Document           `bson:"platform"`
	Status    string             `bson:"status"`
	StoreID   string             `bson:"store_id"`
	Timestamp time.Time          `bson:"timestamp"`
}

// StoreDataID returns the identifier found at data.store.id, rendered as a string.
//
// Missing or malformed payloads yield false, never an error.
func StoreDataID(data Document) (string, bool) {
	v, ok := data.Lookup("store", "id")
	if !ok || v == nil {
		return "", false
	}
	return stringify(v), true
}

// StoreDataID returns the derived store data identifier of the record.
func (r AggregatorRecord) StoreDataID() (string, bool) {
	return StoreDataID(r.Data)
}

// Response is the JSON projection of a record returned by the public API.
type Response struct {
	BizID       string    `json:"biz_id"`
	Brand       Document  `json:"brand"`
	City        string    `json:"city"`
	Data        Document  `json:"data"`
	Location    Document  `json:"location"`
	Message     string    `json:"message"`
	Platform    Document  `json:"platform"`
	Status      string    `json:"status"`
	StoreID     string    `json:"store_id"`
	Timestamp   time.Time `json:"timestamp"`
	StoreDataID *string   `json:"store_data_id"`
}

// AdminView is the projection used by the admin surface, which also exposes the record ID.
type AdminView struct {
	ID string `json:"id"`
	Response
}

// Response projects the record for the public API.
func (r AggregatorRecord) Response() Response {
	resp := Response{
		BizID:     r.BizID,
		Brand:     r.Brand,
		City:      r.City,
		Data:      r.Data,
		Location:  r.Location,
		Message:   r.Message,
		Platform:  r.Platform,
		Status:    r.Status,
		StoreID:   r.StoreID,
		Timestamp: r.Timestamp,
	}
	if id, ok := r.StoreDataID(); ok {
		resp.StoreDataID = &id
	}
	return resp
}

// AdminView projects the record for the admin surface.
func (r AggregatorRecord) AdminView() AdminView {
	return AdminView{ID: r.ID.Hex(), Response: r.Response()}
}

// Responses projects a slice of records. It never returns nil so that empty results encode as [].
func Responses(records []AggregatorRecord) []Response {
	out := make([]Response, 0, len(records))
	for _, r := range records {
		out = append(out, r.Response())
	}
	return out
}

// ParseID converts a hex identifier into an object ID.
func ParseID(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, errors.Join(ErrInvalidID, err)
	}
	return oid, nil
}
