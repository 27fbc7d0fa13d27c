package claims

// Store is an interface for backend stores. Write operations commit a whole
// logical record; ApplyVote commits the claim update, the vote insertion and
// the pending-update enqueue as a single atomic unit, and enforces vote-hash
// uniqueness inside that unit.
type Store interface {
	// GetClaim returns a claim by ID.
	GetClaim(id string) (*Claim, error)
	// SetClaim inserts or updates a claim.
	SetClaim(claim *Claim) error
	// Claims returns all claims, sorted by creation time.
	Claims() ([]*Claim, error)
	// ClaimCount returns the number of stored claims.
	ClaimCount() int
	// GetVote returns a vote by hash.
	GetVote(hash string) (*Vote, error)
	// ApplyVote atomically persists an updated claim, a new vote, and the
	// vote's pending credibility update. It fails with a KeyAlreadyExists
	// StoreErr when a vote with the same hash exists, leaving all three
	// records untouched.
	ApplyVote(claim *Claim, vote *Vote, pending *PendingUpdate) error
	// GetIdentity returns an identity record by token.
	GetIdentity(token string) (*IdentityRecord, error)
	// SetIdentity inserts or updates an identity record.
	SetIdentity(identity *IdentityRecord) error
	// TouchIdentity updates only the identity's LastActiveAt, leaving the
	// credibility fields untouched for the Ledger.
	TouchIdentity(token string, at int64) error
	// PendingUpdates returns all pending credibility updates for a claim,
	// processed or not.
	PendingUpdates(claimID string) ([]*PendingUpdate, error)
	// SetPendingUpdate inserts or updates a pending credibility update.
	SetPendingUpdate(update *PendingUpdate) error
	// AddEdge inserts a reference edge. Inserting an existing edge is a
	// no-op.
	AddEdge(edge *Edge) error
	// DeleteEdgesFor removes every edge where the claim is source or target
	// and returns the number of edges removed.
	DeleteEdgesFor(claimID string) (int, error)
	// Edges returns a snapshot of the whole edge set.
	Edges() ([]*Edge, error)
	// EdgesFrom returns the targets of all edges leaving a claim.
	EdgesFrom(source string) ([]string, error)
	// EdgesTo returns the sources of all edges pointing at a claim.
	EdgesTo(target string) ([]string, error)
	// GetRateRecord returns an identity's rate-limit record.
	GetRateRecord(token string) (*RateRecord, error)
	// SetRateRecord inserts or updates a rate-limit record.
	SetRateRecord(record *RateRecord) error
	// Close closes the underlying database.
	Close() error
	// StorePath returns the filepath of the underlying database.
	StorePath() string
}
