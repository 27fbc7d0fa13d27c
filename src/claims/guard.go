package claims

import (
	"sync"
	"time"

	cm "github.com/openrumor/veracity/src/common"
	"github.com/sirupsen/logrus"
)

// Guard defaults.
const (
	// LowCredibilityThreshold is the credibility below which vote weight is
	// quadratically dampened.
	LowCredibilityThreshold = 0.2

	// SuspicionRiskThreshold is the risk score above which an identity is
	// flagged.
	SuspicionRiskThreshold = 0.5

	DefaultMinVoteInterval = 2 * time.Second
	DefaultHourlyVoteLimit = 10
	DefaultDailyVoteLimit  = 50

	hourlyWindow = int64(3600)
	dailyWindow  = int64(86400)

	// youngAccountAge is the account age below which a high vote volume
	// contributes to the risk score.
	youngAccountAge = int64(86400)
)

// RateLimitResult is the outcome of a rate-limit check. Wait is a hint for
// how long the identity should back off before the next attempt.
type RateLimitResult struct {
	Allowed         bool
	Reason          string
	Wait            time.Duration
	RemainingHourly int
	RemainingDaily  int
}

// SuspicionReport is the advisory output of the suspicion heuristics. It is
// surfaced to the caller and does not itself block votes.
type SuspicionReport struct {
	IsSuspicious bool
	Flags        []string
	RiskScore    float64
}

// Guard enforces per-identity rate limits and converts raw credibility into
// the effective vote weight. A keyed mutex serializes the check-and-increment
// of each identity's counters, so two concurrent votes from one identity
// cannot both pass a limit that only admits one.
type Guard struct {
	store  Store
	logger *logrus.Entry

	minInterval time.Duration
	hourlyLimit int
	dailyLimit  int

	identityLocksMtx sync.Mutex
	identityLocks    map[string]*sync.Mutex

	now func() time.Time
}

// NewGuard ...
func NewGuard(store Store, minInterval time.Duration, hourlyLimit int, dailyLimit int, logger *logrus.Entry) *Guard {
	return &Guard{
		store:         store,
		logger:        logger,
		minInterval:   minInterval,
		hourlyLimit:   hourlyLimit,
		dailyLimit:    dailyLimit,
		identityLocks: make(map[string]*sync.Mutex),
		now:           time.Now,
	}
}

// EffectiveWeight maps raw credibility onto the weight a vote actually
// carries. Above the low-credibility threshold the weight is the credibility
// itself; below it, influence decays quadratically toward zero, faster than
// the credibility does.
func (g *Guard) EffectiveWeight(rawCredibility float64) float64 {
	c := clip(rawCredibility, 0, 1)
	if c >= LowCredibilityThreshold {
		return c
	}
	n := c / LowCredibilityThreshold
	return n * n * LowCredibilityThreshold
}

// CheckRateLimit checks the identity's minimum inter-vote interval and its
// hourly and daily caps. An allowed check consumes one unit of each window
// and records the attempt; a denied check leaves the counters untouched and
// returns a wait-time hint. Windows reset lazily by elapsed wall-clock time.
func (g *Guard) CheckRateLimit(identityToken string) (*RateLimitResult, error) {
	lock := g.identityLock(identityToken)
	lock.Lock()
	defer lock.Unlock()

	now := g.now().Unix()

	record, err := g.store.GetRateRecord(identityToken)
	if err != nil {
		if !cm.IsStore(err, cm.KeyNotFound) {
			return nil, err
		}
		record = NewRateRecord(identityToken, now)
	}

	if now-record.HourlyReset >= hourlyWindow {
		record.HourlyCount = 0
		record.HourlyReset = now
	}
	if now-record.DailyReset >= dailyWindow {
		record.DailyCount = 0
		record.DailyReset = now
	}

	if record.LastVote > 0 {
		elapsed := time.Duration(now-record.LastVote) * time.Second
		if elapsed < g.minInterval {
			return &RateLimitResult{
				Reason:          "votes too frequent",
				Wait:            g.minInterval - elapsed,
				RemainingHourly: g.hourlyLimit - record.HourlyCount,
				RemainingDaily:  g.dailyLimit - record.DailyCount,
			}, nil
		}
	}

	if record.HourlyCount >= g.hourlyLimit {
		return &RateLimitResult{
			Reason:          "hourly vote limit reached",
			Wait:            time.Duration(record.HourlyReset+hourlyWindow-now) * time.Second,
			RemainingHourly: 0,
			RemainingDaily:  g.dailyLimit - record.DailyCount,
		}, nil
	}

	if record.DailyCount >= g.dailyLimit {
		return &RateLimitResult{
			Reason:          "daily vote limit reached",
			Wait:            time.Duration(record.DailyReset+dailyWindow-now) * time.Second,
			RemainingHourly: g.hourlyLimit - record.HourlyCount,
			RemainingDaily:  0,
		}, nil
	}

	record.HourlyCount++
	record.DailyCount++
	record.LastVote = now

	if err := g.store.SetRateRecord(record); err != nil {
		return nil, err
	}

	return &RateLimitResult{
		Allowed:         true,
		RemainingHourly: g.hourlyLimit - record.HourlyCount,
		RemainingDaily:  g.dailyLimit - record.DailyCount,
	}, nil
}

// DetectSuspicious scores an identity against a set of abuse heuristics:
// very low credibility, a high vote volume on a very young account, and a
// historically poor accuracy. The report is advisory.
func (g *Guard) DetectSuspicious(identityToken string) (*SuspicionReport, error) {
	report := &SuspicionReport{Flags: []string{}}

	identity, err := g.store.GetIdentity(identityToken)
	if err != nil {
		if cm.IsStore(err, cm.KeyNotFound) {
			//an unseen identity has no history to be suspicious about
			return report, nil
		}
		return nil, err
	}

	if identity.Credibility < 0.15 {
		report.Flags = append(report.Flags, "very_low_credibility")
		report.RiskScore += 0.4
	}

	record, err := g.store.GetRateRecord(identityToken)
	if err != nil && !cm.IsStore(err, cm.KeyNotFound) {
		return nil, err
	}

	now := g.now().Unix()
	if err == nil &&
		now-identity.CreatedAt < youngAccountAge &&
		record.DailyCount > g.dailyLimit/2 {
		report.Flags = append(report.Flags, "young_account_high_volume")
		report.RiskScore += 0.35
	}

	if identity.TotalVotes >= 10 && identity.Accuracy() < 0.3 {
		report.Flags = append(report.Flags, "poor_accuracy")
		report.RiskScore += 0.25
	}

	report.RiskScore = clip(report.RiskScore, 0, 1)
	report.IsSuspicious = report.RiskScore >= SuspicionRiskThreshold

	if report.IsSuspicious {
		g.logger.WithFields(logrus.Fields{
			"identity": identityToken,
			"flags":    report.Flags,
			"risk":     report.RiskScore,
		}).Warn("Suspicious identity")
	}

	return report, nil
}

func (g *Guard) identityLock(token string) *sync.Mutex {
	g.identityLocksMtx.Lock()
	defer g.identityLocksMtx.Unlock()

	lock, ok := g.identityLocks[token]
	if !ok {
		lock = &sync.Mutex{}
		g.identityLocks[token] = lock
	}
	return lock
}

func clip(v float64, lo float64, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
