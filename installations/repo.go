package installations

// Repo manages durable storage of installations. Upsert preserves
// CreatedAt for an existing row, refuses transitions that
// Status.CanTransitionTo forbids, and is atomic at the record level.
type Repo interface {
	Upsert(installation *Installation) error
	Get(installationID string) (*Installation, error)
	List(offset, limit int) ([]*Installation, error)
}
