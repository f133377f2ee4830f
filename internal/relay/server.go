package relay

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"signalcore/internal/crypto"
	"signalcore/internal/domain"
	"signalcore/internal/logging"
	"signalcore/internal/protoerr"
)

// DefaultCertificateTTL is how long issued sender certificates stay valid.
const DefaultCertificateTTL = 24 * time.Hour

// maxBodyBytes bounds request bodies; a bundle with a few hundred one-time
// pre-keys fits comfortably.
const maxBodyBytes = 1 << 20

// Server is the HTTP key directory.
type Server struct {
	dir     Directory
	signer  *Signer
	certTTL time.Duration
	rng     io.Reader
	now     func() time.Time
	log     *zap.Logger
}

// NewServer returns a key directory over dir. A zero certTTL uses
// DefaultCertificateTTL.
func NewServer(dir Directory, signer *Signer, certTTL time.Duration, log *zap.Logger) *Server {
	if certTTL <= 0 {
		certTTL = DefaultCertificateTTL
	}
	return &Server{
		dir:     dir,
		signer:  signer,
		certTTL: certTTL,
		rng:     rand.Reader,
		now:     time.Now,
		log:     logging.OrNop(log),
	}
}

// Router returns the key directory routes.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.accessLog)

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/keys", s.PublishBundle()).Methods(http.MethodPut)
	v1.HandleFunc("/keys/{username}/{device:[0-9]+}", s.FetchBundle()).Methods(http.MethodGet)
	v1.HandleFunc("/trust-root", s.GetTrustRoot()).Methods(http.MethodGet)
	v1.HandleFunc("/certificate", s.IssueCertificate()).Methods(http.MethodPost)
	v1.HandleFunc("/accounts/{uuid}", s.LookupAccount()).Methods(http.MethodGet)
	return r
}

// PublishBundle stores a self-signed bundle, replacing the previous one.
func (s *Server) PublishBundle() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var b domain.PublishedBundle
		if !s.decode(w, r, &b) {
			return
		}
		if err := validatePublished(b); err != nil {
			s.fail(w, "publish rejected", err)
			return
		}
		if err := s.dir.Publish(r.Context(), b); err != nil {
			s.fail(w, "publish failed", err)
			return
		}
		s.log.Info("published bundle",
			zap.String("username", b.Username.String()),
			zap.Uint32("device_id", b.DeviceID),
			zap.Int("one_time_pre_keys", len(b.OneTimePreKeys)),
		)
		w.WriteHeader(http.StatusNoContent)
	}
}

// FetchBundle returns a serialized bundle, handing out one one-time pre-key
// per call.
func (s *Server) FetchBundle() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		username, deviceID, ok := s.deviceVars(w, r)
		if !ok {
			return
		}
		pb, opk, err := s.dir.Take(r.Context(), username, deviceID)
		if err != nil {
			s.fail(w, "fetch bundle failed", err)
			return
		}
		b, err := BuildBundle(pb, opk)
		if err != nil {
			s.fail(w, "stored bundle is corrupt", err)
			return
		}
		if opk == nil {
			s.log.Warn("bundle served without one-time pre-key", zap.String("username", username.String()))
		}
		s.writeJSON(w, http.StatusOK, domain.FetchedBundle{Bundle: b.Serialize()})
	}
}

// GetTrustRoot returns the public key sender certificates chain to.
func (s *Server) GetTrustRoot() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.writeJSON(w, http.StatusOK, domain.TrustRoot{PublicKey: s.signer.TrustRoot().Serialize()})
	}
}

// IssueCertificate signs a sender certificate over the identity key
// published for the requested device and binds the uuid to the username.
func (s *Server) IssueCertificate() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req domain.CertificateRequest
		if !s.decode(w, r, &req) {
			return
		}
		ctx := r.Context()
		pb, err := s.dir.Get(ctx, req.Username, req.DeviceID)
		if err != nil {
			s.fail(w, "no published identity", err)
			return
		}
		identity, err := crypto.DeserializeIdentityKey(pb.IdentityKey)
		if err != nil {
			s.fail(w, "stored identity is corrupt", err)
			return
		}

		var e164 *string
		if req.E164 != "" {
			e164 = &req.E164
		}
		expiration := uint64(s.now().Add(s.certTTL).UnixMilli())
		cert, err := s.signer.Issue(s.rng, req.UUID, e164, identity.PublicKey, req.DeviceID, expiration)
		if err != nil {
			s.fail(w, "issue certificate failed", err)
			return
		}
		if err := s.dir.BindAccount(ctx, req.UUID, req.Username); err != nil {
			s.fail(w, "bind account failed", err)
			return
		}
		s.log.Info("issued sender certificate",
			zap.String("username", req.Username.String()),
			zap.String("uuid", req.UUID),
			zap.Uint64("expires", expiration),
		)
		s.writeJSON(w, http.StatusOK, domain.CertificateResponse{Certificate: cert.Serialize()})
	}
}

// LookupAccount maps a certificate uuid to its username.
func (s *Server) LookupAccount() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["uuid"]
		username, err := s.dir.LookupAccount(r.Context(), id)
		if err != nil {
			s.fail(w, "lookup account failed", err)
			return
		}
		s.writeJSON(w, http.StatusOK, domain.AccountLookup{UUID: id, Username: username})
	}
}

func (s *Server) deviceVars(w http.ResponseWriter, r *http.Request) (domain.Username, uint32, bool) {
	vars := mux.Vars(r)
	device, err := strconv.ParseUint(vars["device"], 10, 32)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "bad device id")
		return "", 0, false
	}
	return domain.Username(vars["username"]), uint32(device), true
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		s.writeError(w, http.StatusBadRequest, "malformed request body")
		return false
	}
	return true
}

// fail maps err onto a status and logs server-side failures.
func (s *Server) fail(w http.ResponseWriter, msg string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ErrUUIDTaken):
		status = http.StatusConflict
	case errors.Is(err, protoerr.ErrInvalidArgument),
		errors.Is(err, protoerr.ErrInvalidKey),
		errors.Is(err, protoerr.ErrSignatureVerificationFailed):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		s.log.Error(msg, zap.Error(err))
	} else {
		s.log.Debug(msg, zap.Error(err))
	}
	s.writeError(w, status, msg+": "+err.Error())
}

type errorBody struct {
	Error string `json:"error"`
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, errorBody{Error: msg})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Debug("write response", zap.Error(err))
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	n, err := r.ResponseWriter.Write(b)
	r.bytes += n
	return n, err
}

// accessLog records method, path, remote, status, bytes and duration.
func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := s.now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("remote", r.RemoteAddr),
			zap.Int("status", rec.status),
			zap.Int("bytes", rec.bytes),
			zap.Duration("duration", time.Since(start)),
		)
	})
}
