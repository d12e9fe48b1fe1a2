package registry

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"certivax/internal/middleware"

	"github.com/go-chi/chi/v5"
)

func RegisterRoutes(r chi.Router, svc *Service) {
	r.Get("/registry", infoHandler(svc))

	r.Route("/roles/{principal}", func(rr chi.Router) {
		rr.Get("/", getRoleHandler(svc))
		rr.Put("/", assignRoleHandler(svc))
		rr.Delete("/", revokeRoleHandler(svc))
	})

	r.Route("/animals", func(ar chi.Router) {
		ar.Post("/", createAnimalHandler(svc))
		ar.Get("/{animalID}", getAnimalHandler(svc))
		ar.Post("/{animalID}/close", closeAnimalHandler(svc))
		ar.Get("/{animalID}/records", listAnimalRecordsHandler(svc))
		ar.Post("/{animalID}/records", createRecordHandler(svc))
	})

	r.Route("/records", func(rr chi.Router) {
		rr.Get("/total", totalRecordsHandler(svc))
		rr.Get("/{recordID}", getRecordHandler(svc))
		rr.Post("/{recordID}/verify", verifyRecordHandler(svc))
		rr.Post("/{recordID}/revoke", revokeRecordHandler(svc))
		rr.Post("/{recordID}/state", updateRecordStateHandler(svc))
		rr.Get("/{recordID}/hash", verifyHashHandler(svc))
		rr.Get("/{recordID}/metadata", archivedMetadataHandler(svc))
	})

	r.Post("/commitments", commitmentHandler())
	r.Get("/notifications", listNotificationsHandler(svc))
}

type errorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

type infoResponse struct {
	Owner        Principal `json:"owner"`
	ContractHash Hash      `json:"contract_hash"`
	CreatedAt    time.Time `json:"created_at"`
	TotalRecords uint64    `json:"total_records"`
}

type roleResponse struct {
	Principal Principal `json:"principal"`
	Role      Role      `json:"role"`
}

type assignRoleRequest struct {
	Role Role `json:"role"` // nombre ("Vet") u ordinal como string ("2")
}

type createAnimalRequest struct {
	ID string `json:"id"`
}

type animalResponse struct {
	ID           string    `json:"id"`
	QualityScore int       `json:"quality_score"`
	LastUpdated  time.Time `json:"last_updated"`
	CurrentState DTEState  `json:"current_state"`
	IsActive     bool      `json:"is_active"`
	TotalRecords int       `json:"total_records"`
	RecordIDs    []uint64  `json:"record_ids"`
}

type createRecordRequest struct {
	EventType EventType `json:"event_type"`
	CertHash  Hash      `json:"cert_hash"`
	MetaJSON  string    `json:"meta_json"`
}

type recordResponse struct {
	ID               uint64     `json:"id"`
	AnimalID         string     `json:"animal_id"`
	EventType        EventType  `json:"event_type"`
	CertHash         Hash       `json:"cert_hash"`
	MetaJSON         string     `json:"meta_json"`
	Actor            Principal  `json:"actor"`
	VerifState       VerifState `json:"verif_state"`
	DTEState         DTEState   `json:"dte_state"`
	RevocationReason string     `json:"revocation_reason,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

type revokeRecordRequest struct {
	Reason string `json:"reason"`
}

type updateStateRequest struct {
	State DTEState `json:"state"`
}

type hashCheckResponse struct {
	RecordID uint64 `json:"record_id"`
	Hash     Hash   `json:"hash"`
	Matches  bool   `json:"matches"`
}

type metadataResponse struct {
	RecordID uint64 `json:"record_id"`
	CertHash Hash   `json:"cert_hash"`
	Computed Hash   `json:"computed"`
	Intact   bool   `json:"intact"`
	MetaJSON string `json:"meta_json"`
}

type commitmentRequest struct {
	MetaJSON string `json:"meta_json"`
}

type commitmentResponse struct {
	Hash Hash `json:"hash"`
}

type totalResponse struct {
	Total uint64 `json:"total"`
}

type notificationsResponse struct {
	Items     []Notification `json:"items"`
	NextAfter uint64         `json:"next_after"`
}

// @Summary Información del registro
// @Description Owner, hash del contrato y total de registros emitidos.
// @Tags registry
// @Produce json
// @Success 200 {object} infoResponse
// @Failure 404 {object} errorResponse "registro sin inicializar"
// @Router /registry [get]
func infoHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		info, err := svc.Info(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, infoResponse{
			Owner:        info.Owner,
			ContractHash: info.ContractHash,
			CreatedAt:    info.CreatedAt,
			TotalRecords: info.TotalRecords,
		})
	}
}

// @Summary Rol de un principal
// @Tags roles
// @Produce json
// @Param principal path string true "Principal"
// @Success 200 {object} roleResponse
// @Router /roles/{principal} [get]
func getRoleHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p := Principal(chi.URLParam(r, "principal"))
		role, err := svc.GetRole(r.Context(), p)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, roleResponse{Principal: p, Role: role})
	}
}

// @Summary Asignar rol
// @Description Solo el Owner. El rol Owner no se puede asignar ni reasignar. Autenticación: `X-Debug-Principal` (dev) o `Authorization: Bearer <token>`.
// @Tags roles
// @Accept json
// @Produce json
// @Param X-Debug-Principal header string false "Solo en modo dev"
// @Param Authorization header string false "Bearer token"
// @Param principal path string true "Principal"
// @Param payload body assignRoleRequest true "Rol (Vet, FeedOp, Auditor, Farmer, Buyer, None)"
// @Success 200 {object} roleResponse
// @Failure 400 {object} errorResponse
// @Failure 401 {object} errorResponse
// @Failure 403 {object} errorResponse
// @Failure 422 {object} errorResponse "el principal es el Owner"
// @Router /roles/{principal} [put]
func assignRoleHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := requireCaller(w, r)
		if !ok {
			return
		}
		var req assignRoleRequest
		if !decode(w, r, &req) {
			return
		}
		p := Principal(chi.URLParam(r, "principal"))
		if err := svc.AssignRole(r.Context(), caller, p, req.Role); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, roleResponse{Principal: p, Role: req.Role})
	}
}

// @Summary Revocar rol
// @Tags roles
// @Param X-Debug-Principal header string false "Solo en modo dev"
// @Param Authorization header string false "Bearer token"
// @Param principal path string true "Principal"
// @Success 204
// @Failure 401 {object} errorResponse
// @Failure 403 {object} errorResponse
// @Failure 422 {object} errorResponse
// @Router /roles/{principal} [delete]
func revokeRoleHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := requireCaller(w, r)
		if !ok {
			return
		}
		if err := svc.RevokeRole(r.Context(), caller, Principal(chi.URLParam(r, "principal"))); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// @Summary Registrar animal
// @Description Owner o Farmer. El animal nace con score 100, estado Created y activo.
// @Tags animals
// @Accept json
// @Produce json
// @Param X-Debug-Principal header string false "Solo en modo dev"
// @Param Authorization header string false "Bearer token"
// @Param payload body createAnimalRequest true "ID del animal"
// @Success 201 {object} animalResponse
// @Failure 400 {object} errorResponse
// @Failure 403 {object} errorResponse
// @Failure 409 {object} errorResponse "ya existe"
// @Router /animals [post]
func createAnimalHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := requireCaller(w, r)
		if !ok {
			return
		}
		var req createAnimalRequest
		if !decode(w, r, &req) {
			return
		}
		a, err := svc.CreateAnimal(r.Context(), caller, req.ID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, toAnimalResponse(a))
	}
}

// @Summary Ver animal
// @Tags animals
// @Produce json
// @Param animalID path string true "ID del animal"
// @Success 200 {object} animalResponse
// @Failure 404 {object} errorResponse
// @Router /animals/{animalID} [get]
func getAnimalHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, err := svc.GetAnimal(r.Context(), chi.URLParam(r, "animalID"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAnimalResponse(a))
	}
}

// @Summary Cerrar animal
// @Description Solo el Owner. Terminal: el animal no acepta más registros ni cambios.
// @Tags animals
// @Produce json
// @Param X-Debug-Principal header string false "Solo en modo dev"
// @Param Authorization header string false "Bearer token"
// @Param animalID path string true "ID del animal"
// @Success 200 {object} animalResponse
// @Failure 403 {object} errorResponse
// @Failure 404 {object} errorResponse
// @Failure 409 {object} errorResponse "ya cerrado"
// @Router /animals/{animalID}/close [post]
func closeAnimalHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := requireCaller(w, r)
		if !ok {
			return
		}
		a, err := svc.CloseAnimal(r.Context(), caller, chi.URLParam(r, "animalID"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAnimalResponse(a))
	}
}

// @Summary IDs de registros de un animal
// @Tags animals
// @Produce json
// @Param animalID path string true "ID del animal"
// @Success 200 {array} integer
// @Failure 404 {object} errorResponse
// @Router /animals/{animalID}/records [get]
func listAnimalRecordsHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ids, err := svc.GetAnimalRecords(r.Context(), chi.URLParam(r, "animalID"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, ids)
	}
}

// @Summary Crear registro
// @Description Vet o FeedOp. El registro queda Pending/Registered y el animal pasa a PendingReview.
// @Tags records
// @Accept json
// @Produce json
// @Param X-Debug-Principal header string false "Solo en modo dev"
// @Param Authorization header string false "Bearer token"
// @Param animalID path string true "ID del animal"
// @Param payload body createRecordRequest true "event_type (Vaccination, HealthCheck, Feeding), cert_hash 0x + 64 hex y metadata opaca"
// @Success 201 {object} recordResponse
// @Failure 400 {object} errorResponse
// @Failure 403 {object} errorResponse
// @Failure 404 {object} errorResponse
// @Failure 409 {object} errorResponse "animal cerrado"
// @Router /animals/{animalID}/records [post]
func createRecordHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := requireCaller(w, r)
		if !ok {
			return
		}
		var req createRecordRequest
		if !decode(w, r, &req) {
			return
		}
		rec, err := svc.CreateRecord(r.Context(), caller, CreateRecordInput{
			AnimalID:  chi.URLParam(r, "animalID"),
			EventType: req.EventType,
			CertHash:  req.CertHash,
			MetaJSON:  req.MetaJSON,
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, toRecordResponse(rec))
	}
}

// @Summary Total de registros emitidos
// @Tags records
// @Produce json
// @Success 200 {object} totalResponse
// @Router /records/total [get]
func totalRecordsHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		total, err := svc.GetTotalRecords(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, totalResponse{Total: total})
	}
}

// @Summary Ver registro
// @Tags records
// @Produce json
// @Param recordID path int true "ID del registro"
// @Success 200 {object} recordResponse
// @Failure 404 {object} errorResponse
// @Router /records/{recordID} [get]
func getRecordHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := recordIDParam(w, r)
		if !ok {
			return
		}
		rec, err := svc.GetRecord(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toRecordResponse(rec))
	}
}

// @Summary Verificar registro
// @Description Auditor. Pending -> Verified; score del animal +5 (tope 100).
// @Tags workflow
// @Produce json
// @Param X-Debug-Principal header string false "Solo en modo dev"
// @Param Authorization header string false "Bearer token"
// @Param recordID path int true "ID del registro"
// @Success 200 {object} recordResponse
// @Failure 403 {object} errorResponse
// @Failure 404 {object} errorResponse
// @Failure 409 {object} errorResponse "ya procesado o animal cerrado"
// @Router /records/{recordID}/verify [post]
func verifyRecordHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := requireCaller(w, r)
		if !ok {
			return
		}
		id, ok := recordIDParam(w, r)
		if !ok {
			return
		}
		rec, err := svc.VerifyRecord(r.Context(), caller, id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toRecordResponse(rec))
	}
}

// @Summary Revocar registro
// @Description Auditor. Pending -> Revoked; score del animal -10 (piso 0).
// @Tags workflow
// @Accept json
// @Produce json
// @Param X-Debug-Principal header string false "Solo en modo dev"
// @Param Authorization header string false "Bearer token"
// @Param recordID path int true "ID del registro"
// @Param payload body revokeRecordRequest false "Motivo"
// @Success 200 {object} recordResponse
// @Failure 403 {object} errorResponse
// @Failure 404 {object} errorResponse
// @Failure 409 {object} errorResponse
// @Router /records/{recordID}/revoke [post]
func revokeRecordHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := requireCaller(w, r)
		if !ok {
			return
		}
		id, ok := recordIDParam(w, r)
		if !ok {
			return
		}
		var req revokeRecordRequest
		if r.ContentLength != 0 && !decode(w, r, &req) {
			return
		}
		rec, err := svc.RevokeRecord(r.Context(), caller, id, req.Reason)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toRecordResponse(rec))
	}
}

// @Summary Actualizar estado de un registro verificado
// @Description Owner o Auditor. Solo registros con estado Verified.
// @Tags workflow
// @Accept json
// @Produce json
// @Param X-Debug-Principal header string false "Solo en modo dev"
// @Param Authorization header string false "Bearer token"
// @Param recordID path int true "ID del registro"
// @Param payload body updateStateRequest true "Nuevo estado"
// @Success 200 {object} recordResponse
// @Failure 400 {object} errorResponse
// @Failure 403 {object} errorResponse
// @Failure 404 {object} errorResponse
// @Failure 409 {object} errorResponse
// @Router /records/{recordID}/state [post]
func updateRecordStateHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := requireCaller(w, r)
		if !ok {
			return
		}
		id, ok := recordIDParam(w, r)
		if !ok {
			return
		}
		var req updateStateRequest
		if !decode(w, r, &req) {
			return
		}
		rec, err := svc.UpdateRecordState(r.Context(), caller, id, req.State)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toRecordResponse(rec))
	}
}

// @Summary Comparar hash contra el compromiso del registro
// @Tags hash
// @Produce json
// @Param recordID path int true "ID del registro"
// @Param value query string true "Hash 0x + 64 hex"
// @Success 200 {object} hashCheckResponse
// @Failure 400 {object} errorResponse
// @Failure 404 {object} errorResponse
// @Router /records/{recordID}/hash [get]
func verifyHashHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := recordIDParam(w, r)
		if !ok {
			return
		}
		h, err := ParseHash(r.URL.Query().Get("value"))
		if err != nil {
			writeError(w, newError(ErrInvalidInput, "%v", err))
			return
		}
		matches, err := svc.VerifyRecordHash(r.Context(), id, h)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, hashCheckResponse{RecordID: id, Hash: h, Matches: matches})
	}
}

// @Summary Metadata archivada de un registro
// @Description Devuelve la copia off-chain y si keccak256(meta_json) coincide con el cert_hash.
// @Tags hash
// @Produce json
// @Param recordID path int true "ID del registro"
// @Success 200 {object} metadataResponse
// @Failure 404 {object} errorResponse
// @Router /records/{recordID}/metadata [get]
func archivedMetadataHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := recordIDParam(w, r)
		if !ok {
			return
		}
		m, err := svc.ArchivedMetadata(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, metadataResponse{
			RecordID: m.RecordID,
			CertHash: m.CertHash,
			Computed: m.Computed,
			Intact:   m.Intact,
			MetaJSON: string(m.Payload),
		})
	}
}

// @Summary Calcular compromiso
// @Description keccak256 de meta_json, el valor a usar como cert_hash.
// @Tags hash
// @Accept json
// @Produce json
// @Param payload body commitmentRequest true "Metadata"
// @Success 200 {object} commitmentResponse
// @Router /commitments [post]
func commitmentHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req commitmentRequest
		if !decode(w, r, &req) {
			return
		}
		writeJSON(w, http.StatusOK, commitmentResponse{Hash: Commitment([]byte(req.MetaJSON))})
	}
}

// @Summary Log de notificaciones
// @Description Reproduce las notificaciones commiteadas con seq > after.
// @Tags notifications
// @Produce json
// @Param after query int false "Último seq visto (exclusivo)"
// @Param limit query int false "Máximo (1-1000). Por defecto 100"
// @Success 200 {object} notificationsResponse
// @Failure 400 {object} errorResponse
// @Router /notifications [get]
func listNotificationsHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		var after uint64
		if v := strings.TrimSpace(q.Get("after")); v != "" {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				writeError(w, newError(ErrInvalidInput, "after must be a non-negative integer"))
				return
			}
			after = n
		}
		limit := 0
		if v := strings.TrimSpace(q.Get("limit")); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 {
				writeError(w, newError(ErrInvalidInput, "limit must be a positive integer"))
				return
			}
			limit = n
		}

		items, err := svc.ListNotifications(r.Context(), after, limit)
		if err != nil {
			writeError(w, err)
			return
		}
		next := after
		if len(items) > 0 {
			next = items[len(items)-1].Seq
		}
		writeJSON(w, http.StatusOK, notificationsResponse{Items: items, NextAfter: next})
	}
}

func toAnimalResponse(a Animal) animalResponse {
	ids := a.RecordIDs
	if ids == nil {
		ids = []uint64{}
	}
	return animalResponse{
		ID:           a.ID,
		QualityScore: a.QualityScore,
		LastUpdated:  a.LastUpdated,
		CurrentState: a.CurrentState,
		IsActive:     a.IsActive,
		TotalRecords: a.TotalRecords,
		RecordIDs:    ids,
	}
}

func toRecordResponse(r Record) recordResponse {
	return recordResponse{
		ID:               r.ID,
		AnimalID:         r.AnimalID,
		EventType:        r.EventType,
		CertHash:         r.CertHash,
		MetaJSON:         r.MetaJSON,
		Actor:            r.Actor,
		VerifState:       r.VerifState,
		DTEState:         r.DTEState,
		RevocationReason: r.RevocationReason,
		CreatedAt:        r.CreatedAt,
	}
}

func requireCaller(w http.ResponseWriter, r *http.Request) (Principal, bool) {
	p := middleware.Principal(r.Context())
	if p == "" {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized", Reason: "missing principal"})
		return "", false
	}
	return Principal(p), true
}

func recordIDParam(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "recordID"), 10, 64)
	if err != nil || id == 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid_input", Reason: "record id must be a positive integer"})
		return 0, false
	}
	return id, true
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid_input", Reason: "invalid json: " + err.Error()})
		return false
	}
	return true
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrAlreadyExists), errors.Is(err, ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrInvariantViolation):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	resp := errorResponse{Error: KindOf(err), Reason: ReasonOf(err)}
	if status == http.StatusInternalServerError {
		resp.Reason = "internal error"
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
