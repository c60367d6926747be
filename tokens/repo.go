package tokens

import "time"

// Repo manages durable storage of token records, keyed by installation id.
//
// Upsert is a full-record replace: CreatedAt of an existing row is
// preserved, every other field is overwritten, and no reader ever observes
// a half-written record. FindExpiringBefore excludes records without a
// refresh token, since those need reauthorization rather than refresh.
type Repo interface {
	Upsert(record *TokenRecord) error
	Get(installationID string) (*TokenRecord, error)
	FindExpiringBefore(ts time.Time) ([]*TokenRecord, error)
	FindByUserID(userID string) (*TokenRecord, error)
	FindByLocationID(locationID string) (*TokenRecord, error)
	Delete(installationID string) error
}
