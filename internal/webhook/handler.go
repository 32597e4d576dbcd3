package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/suspectuso/deposit-verifier/internal/deposit"
	"github.com/suspectuso/deposit-verifier/internal/evidence"
	"github.com/suspectuso/deposit-verifier/internal/metrics"
	"github.com/suspectuso/deposit-verifier/internal/notifier"
	"github.com/suspectuso/deposit-verifier/internal/signature"
)

const maxBodyBytes = 1 << 20

// Signature headers, primary first.
const (
	SignatureHeader    = "X-Allocator-Signature"
	AltSignatureHeader = "X-Signature"
)

// Recorder persists verified deposits. A (depositId, tonTxHash) pair that is
// already stored must be reported as duplicate, not as an error.
type Recorder interface {
	Record(ctx context.Context, rec deposit.Record) (id string, duplicate bool, err error)
}

type Options struct {
	Secret          []byte
	RequireEvidence bool
	NotifyTimeout   time.Duration
	Now             func() time.Time
}

// Handler verifies allocator deposit webhooks and records accepted ones.
type Handler struct {
	secret          []byte
	requireEvidence bool
	notifyTimeout   time.Duration
	now             func() time.Time

	verifier evidence.Verifier
	recorder Recorder
	notifier notifier.Notifier
	metrics  *metrics.Metrics
	log      *slog.Logger

	pending sync.WaitGroup
}

func NewHandler(recorder Recorder, verifier evidence.Verifier, notify notifier.Notifier, m *metrics.Metrics, log *slog.Logger, opts Options) *Handler {
	if verifier == nil {
		verifier = evidence.Auto{}
	}
	if notify == nil {
		notify = notifier.Nop{}
	}
	if opts.NotifyTimeout <= 0 {
		opts.NotifyTimeout = 10 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Handler{
		secret:          opts.Secret,
		requireEvidence: opts.RequireEvidence,
		notifyTimeout:   opts.NotifyTimeout,
		now:             opts.Now,
		verifier:        verifier,
		recorder:        recorder,
		notifier:        notify,
		metrics:         m,
		log:             log,
	}
}

type response struct {
	OK        bool   `json:"ok"`
	EventID   string `json:"eventId,omitempty"`
	Duplicate bool   `json:"duplicate,omitempty"`
	Error     string `json:"error,omitempty"`
	Field     string `json:"field,omitempty"`
	Check     string `json:"check,omitempty"`
	Detail    string `json:"detail,omitempty"`
	Hint      string `json:"hint,omitempty"`
}

// rejection is a request that stops before persistence.
type rejection struct {
	status  int
	outcome string
	body    response
}

func reject(status int, outcome string, body response) *rejection {
	body.OK = false
	return &rejection{status: status, outcome: outcome, body: body}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		setCORS(w)
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST, OPTIONS")
		h.finish(w, reject(http.StatusMethodNotAllowed, "method_not_allowed", response{Error: "method_not_allowed"}))
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.finish(w, reject(http.StatusRequestEntityTooLarge, "invalid", response{Error: "body_too_large"}))
			return
		}
		h.finish(w, reject(http.StatusBadRequest, "invalid", response{Error: "unreadable_body"}))
		return
	}

	if rej := h.authenticate(r, body); rej != nil {
		h.log.Warn("webhook rejected", "reason", rej.body.Error, "remote", r.RemoteAddr)
		h.finish(w, rej)
		return
	}

	rec, rej := h.verify(r.Context(), body)
	if rej != nil {
		h.log.Info("deposit rejected",
			"error", rej.body.Error,
			"field", rej.body.Field,
			"check", rej.body.Check,
			"deposit_id", rec.Event.DepositID,
		)
		h.finish(w, rej)
		return
	}

	id, duplicate, err := h.recorder.Record(r.Context(), rec)
	if err != nil {
		h.log.Error("record deposit", "deposit_id", rec.Event.DepositID, "error", err)
		h.finish(w, reject(http.StatusInternalServerError, "error", response{Error: "persistence_failed"}))
		return
	}
	if duplicate {
		h.log.Info("duplicate delivery",
			"deposit_id", rec.Event.DepositID,
			"tx_hash", rec.Event.TonTxHash,
		)
		h.metrics.ObserveRequest("duplicate")
		writeJSON(w, http.StatusOK, response{OK: true, Duplicate: true})
		return
	}

	h.log.Info("deposit recorded",
		"id", id,
		"deposit_id", rec.Event.DepositID,
		"strategy", rec.Strategy,
	)
	h.metrics.ObserveRequest("accepted")
	writeJSON(w, http.StatusOK, response{OK: true, EventID: id})

	h.notify(r.Context(), notifier.FromRecord(id, rec))
}

// Wait blocks until in-flight notifications finish.
func (h *Handler) Wait() {
	h.pending.Wait()
}

func (h *Handler) authenticate(r *http.Request, body []byte) *rejection {
	sig := r.Header.Get(SignatureHeader)
	if sig == "" {
		sig = r.Header.Get(AltSignatureHeader)
	}
	if strings.TrimSpace(sig) == "" {
		return reject(http.StatusUnauthorized, "unauthorized", response{Error: "missing_signature"})
	}
	if !signature.Verify(h.secret, body, sig) {
		return reject(http.StatusUnauthorized, "unauthorized", response{Error: "invalid_signature"})
	}
	return nil
}

// verify runs parsing, normalization and evidence checks. The returned record
// carries whatever event fields were established even on rejection.
func (h *Handler) verify(ctx context.Context, body []byte) (deposit.Record, *rejection) {
	var env deposit.Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return deposit.Record{}, reject(http.StatusBadRequest, "invalid", response{Error: "invalid_json", Detail: err.Error()})
	}
	for _, f := range []struct {
		name string
		raw  json.RawMessage
	}{{"event", env.Event}, {"proof", env.Proof}} {
		if !present(f.raw) {
			return deposit.Record{}, reject(http.StatusBadRequest, "invalid", response{Error: "missing_field", Field: f.name})
		}
	}

	ev, err := deposit.Normalize(env.Event)
	if err != nil {
		return deposit.Record{}, invalidField(err)
	}
	rec := deposit.Record{Event: ev}

	if rec.Proof, err = deposit.DecodeProof(env.Proof); err != nil {
		return rec, invalidField(err)
	}
	now := h.now().UTC()
	if rec.ObservedAt, err = deposit.ParseObservedAt(env.ObservedAt, now); err != nil {
		return rec, invalidField(err)
	}

	out, err := h.verifier.Verify(ctx, evidence.Input{Event: ev, Proof: rec.Proof, Trace: env.ChainTrace})
	if err != nil {
		var mm *evidence.MismatchError
		if errors.As(err, &mm) {
			h.metrics.ObserveEvidence(out.Strategy, "mismatch")
			return rec, reject(http.StatusBadRequest, "evidence_mismatch", response{
				Error:  "evidence_mismatch",
				Check:  mm.Check,
				Detail: mm.Detail,
			})
		}
		hint := "chain evidence could not be obtained; retry later"
		var ua *evidence.UnavailableError
		if errors.As(err, &ua) && ua.Hint != "" {
			hint = ua.Hint
		}
		h.log.Warn("evidence unavailable", "deposit_id", ev.DepositID, "error", err)
		h.metrics.ObserveEvidence(out.Strategy, "unavailable")
		return rec, reject(http.StatusBadRequest, "evidence_unavailable", response{
			Error: "evidence_unavailable",
			Hint:  hint,
		})
	}
	h.metrics.ObserveEvidence(out.Strategy, out.Status.String())

	if out.Status != evidence.StatusVerified && h.requireEvidence {
		return rec, reject(http.StatusBadRequest, "evidence_missing", response{
			Error: "evidence_missing",
			Hint:  "supply chainTrace or configure a chain index",
		})
	}

	if out.Status != evidence.StatusVerified {
		rec.VerificationError = out.Status.String()
	}
	rec.Strategy = out.Strategy
	rec.OnChainInvestor = out.OnChainInvestor
	rec.OnChainAmount = out.OnChainAmount
	rec.BlockSeqno = out.BlockSeqno
	rec.ChainTimestamp = out.Timestamp
	rec.VerifiedAt = now
	return rec, nil
}

func (h *Handler) notify(reqCtx context.Context, n notifier.Notification) {
	h.pending.Add(1)
	go func() {
		defer h.pending.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(reqCtx), h.notifyTimeout)
		defer cancel()

		err := h.notifier.Notify(ctx, n)
		h.metrics.ObserveNotify(err)
		if err != nil {
			h.log.Warn("notify failed", "record_id", n.RecordID, "deposit_id", n.DepositID, "error", err)
		}
	}()
}

func (h *Handler) finish(w http.ResponseWriter, rej *rejection) {
	h.metrics.ObserveRequest(rej.outcome)
	writeJSON(w, rej.status, rej.body)
}

func invalidField(err error) *rejection {
	var ve *deposit.ValidationError
	if errors.As(err, &ve) {
		return reject(http.StatusBadRequest, "invalid", response{Error: "invalid_field", Field: ve.Field, Detail: ve.Reason})
	}
	return reject(http.StatusBadRequest, "invalid", response{Error: "invalid_field", Detail: err.Error()})
}

func present(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && !bytes.Equal(raw, []byte("null"))
}

func setCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+SignatureHeader+", "+AltSignatureHeader)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
