// Package httpserver exposes the Recebi JSON API over gorilla/mux.
package httpserver

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"

	"github.com/gofrs/uuid/v5"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/and161185/recebi/internal/errs"
	"github.com/and161185/recebi/internal/model"
	"github.com/and161185/recebi/internal/service"
)

//go:generate mockgen -destination=mocks/services.go -package=mocks github.com/and161185/recebi/internal/service AuthService,DirectoryService,HistoryService,LedgerService

const (
	msgNoChanges     = "Nenhuma alteração detectada."
	msgActorUpdated  = "Usuário atualizado com sucesso."
	msgPackageDelete = "Encomenda removida com sucesso."
)

// Server wires services into HTTP handlers.
type Server struct {
	auth    service.AuthService
	dir     service.DirectoryService
	ledger  service.LedgerService
	history service.HistoryService
	log     *zap.Logger
}

// New constructs the HTTP API with injected services.
func New(auth service.AuthService, dir service.DirectoryService, ledger service.LedgerService,
	history service.HistoryService, log *zap.Logger) *Server {
	return &Server{auth: auth, dir: dir, ledger: ledger, history: history, log: log}
}

// Router builds the full route table.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()
	r.Use(Recover(s.log), Logging(s.log))

	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeMessage(w, http.StatusOK, "ok")
	}).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/auth/login", s.handleLogin).Methods(http.MethodPost)

	p := api.NewRoute().Subrouter()
	p.Use(s.authenticate)

	p.HandleFunc("/auth/logout", s.handleLogout).Methods(http.MethodPost)

	p.HandleFunc("/packages", s.handleRegisterPackage).Methods(http.MethodPost)
	p.HandleFunc("/packages", s.handleListPackages).Methods(http.MethodGet)
	p.HandleFunc("/packages/{id}", s.handleGetPackage).Methods(http.MethodGet)
	p.HandleFunc("/packages/{id}/pickup", s.handleConfirmPickup).Methods(http.MethodPut)
	p.HandleFunc("/packages/{id}", s.handleDeletePackage).Methods(http.MethodDelete)

	p.HandleFunc("/actors", s.handleCreateActor).Methods(http.MethodPost)
	p.HandleFunc("/actors", s.handleListActors).Methods(http.MethodGet)
	p.HandleFunc("/actors/search", s.handleSearchActors).Methods(http.MethodGet)
	p.HandleFunc("/actors/{id}", s.handleGetActor).Methods(http.MethodGet)
	p.HandleFunc("/actors/{id}", s.handleUpdateActor).Methods(http.MethodPut)

	p.HandleFunc("/history", s.handleListHistory).Methods(http.MethodGet)
	p.HandleFunc("/history/mine", s.handleMyHistory).Methods(http.MethodGet)
	p.HandleFunc("/history/{id}", s.handleGetHistory).Methods(http.MethodGet)

	return r
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: invalid request body", errs.ErrValidation)
	}
	return nil
}

func pathID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.FromString(mux.Vars(r)["id"])
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid id", errs.ErrValidation)
	}
	return id, nil
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// caller is always present behind authenticate; a miss means a routing bug.
func (s *Server) caller(w http.ResponseWriter, r *http.Request) (model.Principal, bool) {
	p, ok := PrincipalFromCtx(r.Context())
	if !ok {
		s.writeError(w, r, errs.ErrUnauthorized)
	}
	return p, ok
}

// --- Auth ---

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	tok, a, err := s.auth.Login(r.Context(), req.Email, req.Secret, remoteIP(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{Token: tok.AccessToken, ExpiresAt: tok.ExpiresAt, Actor: toActorJSON(&a)})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	p, ok := s.caller(w, r)
	if !ok {
		return
	}
	writeMessage(w, http.StatusOK, s.auth.Logout(r.Context(), p))
}

// --- Packages ---

func (s *Server) handleRegisterPackage(w http.ResponseWriter, r *http.Request) {
	p, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req registerPackageRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	pkg, err := s.ledger.Register(r.Context(), p, model.RegisterPackage{
		OwnerID:      req.OwnerID,
		Description:  req.Description,
		Unit:         req.Unit,
		TrackingCode: req.TrackingCode,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPackageJSON(pkg))
}

func (s *Server) handleListPackages(w http.ResponseWriter, r *http.Request) {
	p, ok := s.caller(w, r)
	if !ok {
		return
	}
	views, err := s.ledger.List(r.Context(), p, r.URL.Query().Get("status"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPackageViewsJSON(views))
}

func (s *Server) handleGetPackage(w http.ResponseWriter, r *http.Request) {
	p, ok := s.caller(w, r)
	if !ok {
		return
	}
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	v, err := s.ledger.Get(r.Context(), p, id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPackageViewJSON(v))
}

func (s *Server) handleConfirmPickup(w http.ResponseWriter, r *http.Request) {
	p, ok := s.caller(w, r)
	if !ok {
		return
	}
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	pkg, err := s.ledger.ConfirmPickup(r.Context(), p, id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPackageJSON(pkg))
}

func (s *Server) handleDeletePackage(w http.ResponseWriter, r *http.Request) {
	p, ok := s.caller(w, r)
	if !ok {
		return
	}
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.ledger.Delete(r.Context(), p, id); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, msgPackageDelete)
}

// --- Actors ---

func (s *Server) handleCreateActor(w http.ResponseWriter, r *http.Request) {
	p, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req createActorRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	a, err := s.dir.Create(r.Context(), p, model.ActorDraft{
		Name:   req.Name,
		Email:  req.Email,
		Secret: req.Secret,
		Role:   req.Role,
		Phone:  req.Phone,
		Unit:   req.Unit,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toActorJSON(a))
}

func (s *Server) handleListActors(w http.ResponseWriter, r *http.Request) {
	p, ok := s.caller(w, r)
	if !ok {
		return
	}
	as, err := s.dir.List(r.Context(), p, r.URL.Query().Get("status"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toActorsJSON(as))
}

func (s *Server) handleSearchActors(w http.ResponseWriter, r *http.Request) {
	p, ok := s.caller(w, r)
	if !ok {
		return
	}
	as, err := s.dir.Search(r.Context(), p, r.URL.Query().Get("q"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toActorsJSON(as))
}

func (s *Server) handleGetActor(w http.ResponseWriter, r *http.Request) {
	p, ok := s.caller(w, r)
	if !ok {
		return
	}
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	a, err := s.dir.Get(r.Context(), p, id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toActorJSON(a))
}

func (s *Server) handleUpdateActor(w http.ResponseWriter, r *http.Request) {
	p, ok := s.caller(w, r)
	if !ok {
		return
	}
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req updateActorRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	a, changed, err := s.dir.Update(r.Context(), p, id, model.ActorPatch{
		Name:   req.Name,
		Email:  req.Email,
		Secret: req.Secret,
		Phone:  req.Phone,
		Unit:   req.Unit,
		Status: req.Status,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	msg := msgActorUpdated
	if !changed {
		msg = msgNoChanges
	}
	writeJSON(w, http.StatusOK, updateActorResponse{Message: msg, Changed: changed, Actor: toActorJSON(a)})
}

// --- History ---

func (s *Server) handleListHistory(w http.ResponseWriter, r *http.Request) {
	p, ok := s.caller(w, r)
	if !ok {
		return
	}
	vs, err := s.history.ListAll(r.Context(), p)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeHistories(w, r, vs)
}

func (s *Server) handleMyHistory(w http.ResponseWriter, r *http.Request) {
	p, ok := s.caller(w, r)
	if !ok {
		return
	}
	vs, err := s.history.ListMine(r.Context(), p)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeHistories(w, r, vs)
}

func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	p, ok := s.caller(w, r)
	if !ok {
		return
	}
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	v, err := s.history.Get(r.Context(), p, id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out, err := toHistoryJSON(v)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) writeHistories(w http.ResponseWriter, r *http.Request, vs []model.HistoryView) {
	out, err := toHistoriesJSON(vs)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}
