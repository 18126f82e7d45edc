package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"piggybank/internal/core"
	applog "piggybank/internal/log"
	"piggybank/internal/services"

	"github.com/shopspring/decimal"
)

const (
	guardianHeader = "X-Guardian-ID"
	actorHeader    = "X-Actor"
)

// guardianID reads the authenticated guardian from the request header.
// Upstream auth terminates before this service; the header is trusted.
func guardianID(r *http.Request) (int64, error) {
	raw := strings.TrimSpace(r.Header.Get(guardianHeader))
	if raw == "" {
		return 0, &core.InvalidRequestError{Reason: "missing " + guardianHeader + " header"}
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, &core.InvalidRequestError{Reason: "invalid " + guardianHeader + " header"}
	}
	return id, nil
}

// actor identifies who performed the change for audit stamps.
func actor(r *http.Request, guardianID int64) string {
	if a := strings.TrimSpace(r.Header.Get(actorHeader)); a != "" {
		return a
	}
	return fmt.Sprintf("guardian:%d", guardianID)
}

func kidIDParam(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("kidID"), 10, 64)
	if err != nil || id <= 0 {
		return 0, &core.InvalidRequestError{Reason: "invalid kid id"}
	}
	return id, nil
}

func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return &core.InvalidRequestError{Reason: "invalid request body: " + err.Error()}
	}
	return nil
}

type amountsJSON struct {
	Charity    string `json:"charity"`
	Spend      string `json:"spend"`
	Savings    string `json:"savings"`
	Investment string `json:"investment"`
}

func toAmountsJSON(a core.BucketAmounts) amountsJSON {
	return amountsJSON{
		Charity:    a.Charity.StringFixed(2),
		Spend:      a.Spend.StringFixed(2),
		Savings:    a.Savings.StringFixed(2),
		Investment: a.Investment.StringFixed(2),
	}
}

type entryJSON struct {
	ID               int64        `json:"id"`
	Kind             string       `json:"kind"`
	Amount           string       `json:"amount"`
	Description      string       `json:"description,omitempty"`
	Buckets          *amountsJSON `json:"buckets,omitempty"`
	Percentages      *amountsJSON `json:"percentages,omitempty"`
	WithdrawalBucket string       `json:"withdrawal_bucket,omitempty"`
	TransactionAt    time.Time    `json:"transaction_at"`
}

func toEntryJSON(e core.LedgerEntry) entryJSON {
	out := entryJSON{
		ID:            e.ID,
		Kind:          string(e.Kind),
		Amount:        e.Amount.StringFixed(2),
		Description:   e.Description,
		TransactionAt: e.TransactionAt,
	}
	if e.Kind == core.EntryDeposit {
		buckets := toAmountsJSON(e.Buckets)
		pcts := toAmountsJSON(e.Percentages)
		out.Buckets = &buckets
		out.Percentages = &pcts
	} else {
		out.WithdrawalBucket = string(e.WithdrawalBucket)
	}
	return out
}

type transactionResponse struct {
	Entry          entryJSON `json:"entry"`
	BalancePending bool      `json:"balance_pending,omitempty"`
}

// writeTransaction handles the shared outcome of deposits and
// withdrawals. A projection inconsistency means the ledger entry is
// durable but the cached balances lag; the entry is acknowledged with
// 202 and reconciliation happens asynchronously.
func writeTransaction(w http.ResponseWriter, r *http.Request, entry core.LedgerEntry, err error) {
	if err != nil {
		if errors.Is(err, core.ErrProjectionInconsistency) {
			logEntryRecorded(r, entry)
			writeJSON(w, http.StatusAccepted, transactionResponse{
				Entry:          toEntryJSON(entry),
				BalancePending: true,
			})
			return
		}
		writeError(w, r, err)
		return
	}
	logEntryRecorded(r, entry)
	writeJSON(w, http.StatusCreated, transactionResponse{Entry: toEntryJSON(entry)})
}

func logEntryRecorded(r *http.Request, entry core.LedgerEntry) {
	applog.NewStructuredLogger(applog.FromContext(r.Context())).LogEntryRecorded(
		r.Context(), entry.GuardianID, entry.KidID, entry.ID,
		string(entry.Kind), entry.Amount.StringFixed(2))
}

type depositRequest struct {
	Amount      string `json:"amount"`
	Description string `json:"description"`
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	gid, err := guardianID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	kid, err := kidIDParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req depositRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	amount, err := core.ParseAmount(req.Amount)
	if err != nil {
		writeError(w, r, err)
		return
	}

	entry, err := s.engine.ProcessDeposit(r.Context(), gid, kid, amount, req.Description, actor(r, gid))
	writeTransaction(w, r, entry, err)
}

type withdrawalRequest struct {
	Bucket      string `json:"bucket"`
	Amount      string `json:"amount"`
	Description string `json:"description"`
}

func (s *Server) handleWithdrawal(w http.ResponseWriter, r *http.Request) {
	gid, err := guardianID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	kid, err := kidIDParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req withdrawalRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	bucket, err := core.ParseBucket(req.Bucket)
	if err != nil {
		writeError(w, r, err)
		return
	}
	amount, err := core.ParseAmount(req.Amount)
	if err != nil {
		writeError(w, r, err)
		return
	}

	entry, err := s.engine.ProcessWithdrawal(r.Context(), gid, kid, bucket, amount, req.Description, actor(r, gid))
	writeTransaction(w, r, entry, err)
}

type balanceJSON struct {
	KidID   int64       `json:"kid_id"`
	Name    string      `json:"name"`
	Age     int         `json:"age"`
	Buckets amountsJSON `json:"buckets"`
	Total   string      `json:"total"`
}

func toBalanceJSON(s services.KidBalanceSummary) balanceJSON {
	return balanceJSON{
		KidID:   s.KidID,
		Name:    s.Name,
		Age:     s.Age,
		Buckets: toAmountsJSON(s.Amounts),
		Total:   s.Total.StringFixed(2),
	}
}

func (s *Server) handleBalances(w http.ResponseWriter, r *http.Request) {
	gid, err := guardianID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	kid, err := kidIDParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	summary, err := s.queries.BalanceSummary(r.Context(), gid, kid)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBalanceJSON(summary))
}

func (s *Server) handleAvailableBalance(w http.ResponseWriter, r *http.Request) {
	gid, err := guardianID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	kid, err := kidIDParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	bucket, err := core.ParseBucket(r.PathValue("bucket"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	available, err := s.queries.AvailableBalance(r.Context(), gid, kid, bucket)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		KidID     int64  `json:"kid_id"`
		Bucket    string `json:"bucket"`
		Available string `json:"available"`
	}{kid, string(bucket), available.StringFixed(2)})
}

func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	gid, err := guardianID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	kid, err := kidIDParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	limit := 0
	if v := strings.TrimSpace(r.URL.Query().Get("limit")); v != "" {
		limit, err = strconv.Atoi(v)
		if err != nil || limit < 0 || limit > 500 {
			writeError(w, r, &core.InvalidRequestError{Reason: "invalid limit parameter"})
			return
		}
	}

	entries, err := s.queries.RecentActivity(r.Context(), gid, kid, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}

	out := make([]entryJSON, 0, len(entries))
	for _, e := range entries {
		out = append(out, toEntryJSON(e))
	}
	writeJSON(w, http.StatusOK, struct {
		Entries []entryJSON `json:"entries"`
	}{out})
}

func (s *Server) handleGuardianTotals(w http.ResponseWriter, r *http.Request) {
	gid, err := guardianID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	totals, err := s.queries.TotalsAcrossDependents(r.Context(), gid)
	if err != nil {
		writeError(w, r, err)
		return
	}

	kids := make([]balanceJSON, 0, len(totals.Kids))
	for _, k := range totals.Kids {
		kids = append(kids, toBalanceJSON(k))
	}
	writeJSON(w, http.StatusOK, struct {
		Kids    []balanceJSON `json:"kids"`
		Buckets amountsJSON   `json:"buckets"`
		Total   string        `json:"total"`
	}{kids, toAmountsJSON(totals.Amounts), totals.Total.StringFixed(2)})
}

type policyJSON struct {
	CharityPct           string `json:"charity_pct"`
	SpendPct             string `json:"spend_pct"`
	SavingsPct           string `json:"savings_pct"`
	InvestmentPct        string `json:"investment_pct"`
	SavingsMonthlyCap    int    `json:"savings_monthly_cap"`
	InvestmentMonthlyCap int    `json:"investment_monthly_cap"`
}

func toPolicyJSON(p core.AllocationPolicy) policyJSON {
	return policyJSON{
		CharityPct:           p.CharityPct.StringFixed(2),
		SpendPct:             p.SpendPct.StringFixed(2),
		SavingsPct:           p.SavingsPct.StringFixed(2),
		InvestmentPct:        p.InvestmentPct.StringFixed(2),
		SavingsMonthlyCap:    p.SavingsMonthlyCap,
		InvestmentMonthlyCap: p.InvestmentMonthlyCap,
	}
}

func (s *Server) handleGetAllocation(w http.ResponseWriter, r *http.Request) {
	gid, err := guardianID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	policy, err := s.policies.GetEffectivePolicy(r.Context(), gid, actor(r, gid))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPolicyJSON(policy))
}

func (s *Server) handlePutAllocation(w http.ResponseWriter, r *http.Request) {
	gid, err := guardianID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req policyJSON
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	parsePct := func(field, raw string) (decimal.Decimal, error) {
		d, err := decimal.NewFromString(strings.TrimSpace(raw))
		if err != nil {
			return decimal.Zero, &core.InvalidPolicyError{Reason: "invalid " + field + " percentage"}
		}
		return d, nil
	}

	policy := core.AllocationPolicy{
		GuardianID:           gid,
		SavingsMonthlyCap:    req.SavingsMonthlyCap,
		InvestmentMonthlyCap: req.InvestmentMonthlyCap,
	}
	if policy.CharityPct, err = parsePct("charity", req.CharityPct); err != nil {
		writeError(w, r, err)
		return
	}
	if policy.SpendPct, err = parsePct("spend", req.SpendPct); err != nil {
		writeError(w, r, err)
		return
	}
	if policy.SavingsPct, err = parsePct("savings", req.SavingsPct); err != nil {
		writeError(w, r, err)
		return
	}
	if policy.InvestmentPct, err = parsePct("investment", req.InvestmentPct); err != nil {
		writeError(w, r, err)
		return
	}

	saved, err := s.policies.SetPolicy(r.Context(), gid, policy, actor(r, gid))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPolicyJSON(saved))
}
