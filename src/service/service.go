package service

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/openrumor/veracity/src/claims"
	"github.com/openrumor/veracity/src/identity"
	"github.com/sirupsen/logrus"
)

// Service exposes the claims engine over HTTP.
type Service struct {
	sync.Mutex

	bindAddress string
	engine      *claims.Engine
	logger      *logrus.Entry
}

// NewService ...
func NewService(bindAddress string, engine *claims.Engine, logger *logrus.Entry) *Service {
	service := Service{
		bindAddress: bindAddress,
		engine:      engine,
		logger:      logger,
	}

	service.registerHandlers()

	return &service
}

// registerHandlers registers the API handlers with the DefaultServerMux of the
// http package. It is possible that another server in the same process is
// simultaneously using the DefaultServerMux. In which case, the handlers will
// be accessible from both servers. This is usefull when Veracity is used
// in-memory and expected to use the same endpoint (address:port) as the
// application's API.
func (s *Service) registerHandlers() {
	s.logger.Debug("Registering Veracity API handlers")
	http.HandleFunc("/claims", s.makeHandler(s.CreateClaim))
	http.HandleFunc("/claims/", s.makeHandler(s.ClaimRouter))
	http.HandleFunc("/identities/", s.makeHandler(s.GetIdentity))
	http.HandleFunc("/stats", s.makeHandler(s.GetStats))
}

func (s *Service) makeHandler(fn func(http.ResponseWriter, *http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.Lock()
		defer s.Unlock()

		// enable CORS
		w.Header().Set("Access-Control-Allow-Origin", "*")

		fn(w, r)
	}
}

// Serve calls ListenAndServe. This is a blocking call. It is not necessary to
// call Serve when Veracity is used in-memory and another server has already
// been started with the DefaultServerMux and the same address:port
// combination. Indeed, Veracity API handlers have already been registered when
// the service was instantiated.
func (s *Service) Serve() {
	s.logger.WithField("bind_address", s.bindAddress).Debug("Serving Veracity API")

	// Use the DefaultServerMux
	err := http.ListenAndServe(s.bindAddress, nil)
	if err != nil {
		s.logger.Error(err)
	}
}

type createClaimRequest struct {
	Content string `json:"content"`
}

type claimResponse struct {
	ID         string  `json:"id"`
	Content    string  `json:"content"`
	Status     string  `json:"status"`
	TruthScore float64 `json:"truth_score"`
	VoteCount  int     `json:"vote_count"`
	CreatedAt  int64   `json:"created_at"`
	LockedAt   int64   `json:"locked_at,omitempty"`
}

type castVoteRequest struct {
	Fingerprint string `json:"fingerprint"`
	Value       int    `json:"value"`
}

type voteResponse struct {
	IdentityToken string  `json:"identity_token"`
	TruthScore    float64 `json:"truth_score"`
	VoteCount     int     `json:"vote_count"`
	Status        string  `json:"status"`
	Locked        bool    `json:"locked"`

	Suspicious bool     `json:"suspicious,omitempty"`
	Flags      []string `json:"flags,omitempty"`
}

type referencesResponse struct {
	Incoming []string `json:"incoming"`
	Outgoing []string `json:"outgoing"`
}

type identityResponse struct {
	Credibility  float64 `json:"credibility"`
	TotalVotes   int     `json:"total_votes"`
	CorrectVotes int     `json:"correct_votes"`
	Accuracy     float64 `json:"accuracy"`
}

type deleteResponse struct {
	Status       string `json:"status"`
	EdgesRemoved int    `json:"edges_removed"`
}

// CreateClaim handles POST /claims.
func (s *Service) CreateClaim(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req createClaimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	claim, err := s.engine.CreateClaim(req.Content)
	if err != nil {
		s.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)

	json.NewEncoder(w).Encode(makeClaimResponse(claim))
}

// ClaimRouter dispatches /claims/{id}, /claims/{id}/votes and
// /claims/{id}/references.
func (s *Service) ClaimRouter(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/claims/")

	if rest := strings.TrimSuffix(path, "/votes"); rest != path {
		s.castVote(w, r, rest)
		return
	}
	if rest := strings.TrimSuffix(path, "/references"); rest != path {
		s.getReferences(w, r, rest)
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.getClaim(w, r, path)
	case http.MethodDelete:
		s.deleteClaim(w, r, path)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Service) getClaim(w http.ResponseWriter, r *http.Request, claimID string) {
	claim, err := s.engine.GetClaim(claimID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")

	json.NewEncoder(w).Encode(makeClaimResponse(claim))
}

func (s *Service) deleteClaim(w http.ResponseWriter, r *http.Request, claimID string) {
	res, err := s.engine.DeleteClaim(claimID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")

	json.NewEncoder(w).Encode(deleteResponse{
		Status:       claims.Deleted.String(),
		EdgesRemoved: res.EdgesRemoved,
	})
}

func (s *Service) castVote(w http.ResponseWriter, r *http.Request, claimID string) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req castVoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if req.Fingerprint == "" {
		http.Error(w, "missing fingerprint", http.StatusBadRequest)
		return
	}

	// The raw fingerprint never reaches the engine or the store; only its
	// one-way token does.
	token := identity.TokenFor(req.Fingerprint)

	res, err := s.engine.CastVote(claimID, token, req.Value)
	if err != nil {
		s.writeError(w, err)
		return
	}

	resp := voteResponse{
		IdentityToken: token,
		TruthScore:    res.TruthScore,
		VoteCount:     res.VoteCount,
		Status:        res.Status.String(),
		Locked:        res.Locked,
	}

	report, err := s.engine.Guard().DetectSuspicious(token)
	if err != nil {
		s.logger.WithError(err).WithField("identity", token).Error("Suspicion check failed")
	} else if report.IsSuspicious {
		resp.Suspicious = true
		resp.Flags = report.Flags
	}

	w.Header().Set("Content-Type", "application/json")

	json.NewEncoder(w).Encode(resp)
}

func (s *Service) getReferences(w http.ResponseWriter, r *http.Request, claimID string) {
	refs, err := s.engine.GetReferences(claimID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")

	json.NewEncoder(w).Encode(referencesResponse{
		Incoming: refs.Incoming,
		Outgoing: refs.Outgoing,
	})
}

// GetIdentity handles GET /identities/{token}.
func (s *Service) GetIdentity(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimPrefix(r.URL.Path, "/identities/")

	stats, err := s.engine.GetIdentityStats(token)
	if err != nil {
		s.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")

	json.NewEncoder(w).Encode(identityResponse{
		Credibility:  stats.Credibility,
		TotalVotes:   stats.TotalVotes,
		CorrectVotes: stats.CorrectVotes,
		Accuracy:     stats.Accuracy,
	})
}

// GetStats handles GET /stats.
func (s *Service) GetStats(w http.ResponseWriter, r *http.Request) {
	stats := s.engine.Stats()

	w.Header().Set("Content-Type", "application/json")

	json.NewEncoder(w).Encode(stats)
}

// writeError maps engine errors onto HTTP status codes.
func (s *Service) writeError(w http.ResponseWriter, err error) {
	switch {
	case claims.IsValidation(err):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case claims.IsNotFound(err):
		http.Error(w, err.Error(), http.StatusNotFound)
	case claims.IsConflict(err, claims.ClaimLocked) || claims.IsConflict(err, claims.DuplicateVote):
		http.Error(w, err.Error(), http.StatusConflict)
	case claims.IsRateLimit(err):
		if rle, ok := err.(claims.RateLimitError); ok {
			w.Header().Set("Retry-After", strconv.Itoa(int(rle.Wait.Seconds())+1))
		}
		http.Error(w, err.Error(), http.StatusTooManyRequests)
	default:
		s.logger.WithError(err).Error("Request failed")
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func makeClaimResponse(claim *claims.Claim) claimResponse {
	return claimResponse{
		ID:         claim.ID,
		Content:    claim.Content,
		Status:     claim.Status.String(),
		TruthScore: claim.TruthScore,
		VoteCount:  claim.VoteCount,
		CreatedAt:  claim.CreatedAt,
		LockedAt:   claim.LockedAt,
	}
}
