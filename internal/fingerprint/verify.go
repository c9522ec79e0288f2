package fingerprint

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alokickstudios-coder/Alokickflow-sub003/internal/logging"
	"github.com/alokickstudios-coder/Alokickflow-sub003/internal/queue"
)

// quickScanWindow caps how many fingerprinted jobs the quick-scan and
// content-hash scan paths examine. Both are triage aids, not registries;
// only the id lookup and deep verification scale past this.
const quickScanWindow = 500

// VerificationStatus classifies a verification outcome.
type VerificationStatus string

const (
	// StatusVerified certifies a confirmed identity match.
	StatusVerified VerificationStatus = "VERIFIED"
	// StatusCandidate marks a quick-scan match: appropriate for triage,
	// never alone sufficient for certification.
	StatusCandidate VerificationStatus = "CANDIDATE"
	// StatusUnverified means no registered fingerprint matched.
	StatusUnverified VerificationStatus = "UNVERIFIED"
	// StatusHashMismatch means the claimed fingerprint is registered but
	// its stored strong hash does not match the supplied one.
	StatusHashMismatch VerificationStatus = "HASH_MISMATCH"
	// StatusInvalid means the supplied fingerprint failed structural checks.
	StatusInvalid VerificationStatus = "INVALID"
)

// Method names the verification path that produced a result.
type Method string

const (
	MethodFingerprintID Method = "fingerprint_id"
	MethodContentHash   Method = "content_hash"
	MethodQuickScan     Method = "quick_scan"
	MethodDeep          Method = "deep"
)

// AcceptedMethods lists the identifying material the verify surface accepts.
func AcceptedMethods() []Method {
	return []Method{MethodFingerprintID, MethodContentHash, MethodQuickScan, MethodDeep}
}

// Provenance describes the registered origin of a matched fingerprint.
type Provenance struct {
	JobID       int64     `json:"job_id"`
	OrgID       string    `json:"org_id"`
	FileName    string    `json:"file_name"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Certificate is the outcome of a verification attempt.
type Certificate struct {
	Status        VerificationStatus `json:"status"`
	Method        Method             `json:"method"`
	FingerprintID string             `json:"fingerprint_id,omitempty"`
	Provenance    *Provenance        `json:"provenance,omitempty"`
	VerifiedAt    time.Time          `json:"verified_at"`
	TransactionID string             `json:"transaction_id"`
	Detail        string             `json:"detail,omitempty"`
}

// Service generates and verifies content-identity fingerprints against the
// job store.
type Service struct {
	store  *queue.Store
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs a fingerprint service.
func NewService(store *queue.Store, logger *slog.Logger) *Service {
	return &Service{
		store:  store,
		logger: logging.NewComponentLogger(logger, "fingerprint"),
		now:    time.Now,
	}
}

// Request carries the identifying material for a verification attempt. At
// most one path is used per request, chosen in order of strength: a full
// fingerprint, then id, then content hash, then quick-scan digest.
type Request struct {
	Fingerprint   *Fingerprint `json:"fingerprint,omitempty"`
	FingerprintID string       `json:"fingerprint_id,omitempty"`
	ContentHash   string       `json:"content_hash,omitempty"`
	QuickScan     string       `json:"quick_scan,omitempty"`
}

// ErrNoMaterial reports a verification request with nothing to verify. The
// message names the accepted inputs so API callers can self-correct.
type ErrNoMaterial struct {
	Accepted []Method
}

func (e *ErrNoMaterial) Error() string {
	names := make([]string, len(e.Accepted))
	for i, m := range e.Accepted {
		names[i] = string(m)
	}
	return "no identifying material supplied; accepted: " + strings.Join(names, ", ")
}

// Verify dispatches to the strongest verification path the request supports.
func (s *Service) Verify(ctx context.Context, req Request) (Certificate, error) {
	switch {
	case req.Fingerprint != nil:
		return s.DeepVerify(ctx, *req.Fingerprint)
	case strings.TrimSpace(req.FingerprintID) != "":
		return s.VerifyByID(ctx, req.FingerprintID)
	case strings.TrimSpace(req.ContentHash) != "":
		return s.VerifyByContentHash(ctx, req.ContentHash)
	case strings.TrimSpace(req.QuickScan) != "":
		return s.VerifyByQuickScan(ctx, req.QuickScan)
	default:
		return Certificate{}, &ErrNoMaterial{Accepted: AcceptedMethods()}
	}
}

// Generate mints a fingerprint for a completed job's canonical content and
// binds it to the job row. The binding is immutable once generated.
func (s *Service) Generate(ctx context.Context, jobID int64, content []byte) (Fingerprint, error) {
	fp := New(content)
	if err := s.store.SetFingerprint(ctx, jobID, fp.ID, fp.ContentHash, fp.GeneratedAt); err != nil {
		return Fingerprint{}, fmt.Errorf("bind fingerprint to job %d: %w", jobID, err)
	}
	s.logger.Info("fingerprint generated",
		logging.Int64(logging.FieldJobID, jobID),
		logging.String("fingerprint_id", fp.ID),
	)
	return fp, nil
}

// VerifyByID looks up a fingerprint id directly. Found means verified with
// full provenance; not found means unverified, never a false positive.
func (s *Service) VerifyByID(ctx context.Context, fingerprintID string) (Certificate, error) {
	fingerprintID = strings.TrimSpace(fingerprintID)
	job, err := s.store.GetByFingerprintID(ctx, fingerprintID)
	if err != nil {
		return Certificate{}, err
	}
	if job == nil {
		return s.certificate(StatusUnverified, MethodFingerprintID, fingerprintID, nil, "fingerprint id not registered"), nil
	}
	return s.certificate(StatusVerified, MethodFingerprintID, fingerprintID, provenanceFor(job), ""), nil
}

// VerifyByContentHash scans fingerprinted jobs for a strong-hash match.
// First match wins. This path is demonstration-grade: production deployments
// should query the indexed content_hash column instead of scanning.
func (s *Service) VerifyByContentHash(ctx context.Context, contentHash string) (Certificate, error) {
	contentHash = strings.ToLower(strings.TrimSpace(contentHash))
	jobs, err := s.store.ListFingerprinted(ctx, quickScanWindow)
	if err != nil {
		return Certificate{}, err
	}
	for _, job := range jobs {
		if strings.EqualFold(job.ContentHash, contentHash) {
			return s.certificate(StatusVerified, MethodContentHash, job.FingerprintID, provenanceFor(job), ""), nil
		}
	}
	return s.certificate(StatusUnverified, MethodContentHash, "", nil, "no registered fingerprint carries this content hash"), nil
}

// VerifyByQuickScan re-derives each stored fingerprint's quick-scan digest
// and compares. A match yields only a CANDIDATE certificate: a short digest
// can collide, so identity is certified exclusively by deep verification.
func (s *Service) VerifyByQuickScan(ctx context.Context, quickScan string) (Certificate, error) {
	quickScan = strings.ToLower(strings.TrimSpace(quickScan))
	jobs, err := s.store.ListFingerprinted(ctx, quickScanWindow)
	if err != nil {
		return Certificate{}, err
	}
	for _, job := range jobs {
		if QuickScan(job.ContentHash) == quickScan {
			return s.certificate(StatusCandidate, MethodQuickScan, job.FingerprintID, provenanceFor(job),
				"quick-scan match is a triage signal; run deep verification to certify"), nil
		}
	}
	return s.certificate(StatusUnverified, MethodQuickScan, "", nil, "no registered fingerprint matches this quick-scan digest"), nil
}

// DeepVerify validates a full fingerprint structure: internal integrity,
// registration of the claimed id, and strong-hash equality against the
// stored value. VERIFIED only when all three pass; a registered id with a
// differing hash is reported as HASH_MISMATCH, distinct from not-registered.
func (s *Service) DeepVerify(ctx context.Context, fp Fingerprint) (Certificate, error) {
	if !fp.StructurallyValid() {
		return s.certificate(StatusInvalid, MethodDeep, fp.ID, nil, "fingerprint failed structural validation"), nil
	}
	job, err := s.store.GetByFingerprintID(ctx, fp.ID)
	if err != nil {
		return Certificate{}, err
	}
	if job == nil {
		return s.certificate(StatusUnverified, MethodDeep, fp.ID, nil, "fingerprint id not registered"), nil
	}
	if !strings.EqualFold(job.ContentHash, fp.ContentHash) {
		return s.certificate(StatusHashMismatch, MethodDeep, fp.ID, nil, "stored content hash does not match supplied fingerprint"), nil
	}
	return s.certificate(StatusVerified, MethodDeep, fp.ID, provenanceFor(job), ""), nil
}

func (s *Service) certificate(status VerificationStatus, method Method, fingerprintID string, prov *Provenance, detail string) Certificate {
	now := s.now().UTC()
	return Certificate{
		Status:        status,
		Method:        method,
		FingerprintID: fingerprintID,
		Provenance:    prov,
		VerifiedAt:    now,
		TransactionID: transactionID(string(method), fingerprintID, now),
		Detail:        detail,
	}
}

// transactionID derives an audit identifier deterministically from the
// verification inputs and time. It is not meant to be collision-resistant
// beyond audit purposes.
func transactionID(parts ...any) string {
	h := sha256.New()
	for _, part := range parts {
		fmt.Fprintf(h, "%v|", part)
	}
	return "vtx-" + hex.EncodeToString(h.Sum(nil))[:20]
}

func provenanceFor(job *queue.Job) *Provenance {
	prov := &Provenance{
		JobID:    job.ID,
		OrgID:    job.OrgID,
		FileName: job.FileName,
	}
	if job.FingerprintAt != nil {
		prov.GeneratedAt = *job.FingerprintAt
	}
	return prov
}
