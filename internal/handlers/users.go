package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/SunSc05/siyuantao-backend-sub001/internal/dal"
	"github.com/SunSc05/siyuantao-backend-sub001/internal/services"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const maxAvatarBytes = 8 << 20

// UserHandler provides HTTP handlers for user accounts.
type UserHandler struct {
	userService *services.UserService
}

// NewUserHandler constructs a handler with the provided service.
func NewUserHandler(userService *services.UserService) *UserHandler {
	return &UserHandler{userService: userService}
}

// UserRouter registers user routes on the given router. All routes require
// authentication; mutations additionally require the caller to be the target
// user or staff.
func UserRouter(r chi.Router, userService *services.UserService, authMiddleware func(http.Handler) http.Handler) {
	handler := NewUserHandler(userService)

	r.Use(authMiddleware)
	r.Get("/{id}", handler.Get)
	r.Patch("/{id}", handler.Update)
	r.Delete("/{id}", handler.Delete)
	r.Put("/{id}/avatar", handler.UploadAvatar)
}

// Get returns a user by ID.
func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	user, err := h.userService.GetByID(r.Context(), id)
	if err != nil {
		writeDALError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// UserUpdateRequest carries the optional fields of a partial update.
// Omitted fields keep their stored values.
type UserUpdateRequest struct {
	Username *string `json:"username"`
	Email    *string `json:"email"`
	Password *string `json:"password"`
}

// Update applies a partial update to a user.
func (h *UserHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	if !h.mayModify(w, r, id) {
		return
	}

	var req UserUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	if req.Username == nil && req.Email == nil && req.Password == nil {
		writeError(w, http.StatusBadRequest, "no fields to update")
		return
	}
	if req.Username != nil && strings.TrimSpace(*req.Username) == "" {
		writeError(w, http.StatusBadRequest, "username must not be empty")
		return
	}

	upd := dal.UserUpdate{
		Username: req.Username,
		Email:    req.Email,
	}
	if req.Password != nil {
		hashed, err := bcrypt.GenerateFromPassword([]byte(*req.Password), bcrypt.DefaultCost)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to update user")
			return
		}
		hash := string(hashed)
		upd.PasswordHash = &hash
	}

	user, err := h.userService.Update(r.Context(), id, upd)
	if err != nil {
		writeDALError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// Delete removes a user permanently.
func (h *UserHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	if !h.mayModify(w, r, id) {
		return
	}

	if err := h.userService.Delete(r.Context(), id); err != nil {
		writeDALError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UploadAvatar stores a new avatar for the user and returns its URL.
func (h *UserHandler) UploadAvatar(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	if !h.mayModify(w, r, id) {
		return
	}

	if err := r.ParseMultipartForm(maxAvatarBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	file, header, err := r.FormFile("avatar")
	if err != nil {
		writeError(w, http.StatusBadRequest, "avatar file is required")
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		writeError(w, http.StatusBadRequest, "avatar must be an image")
		return
	}

	url, err := h.userService.UploadAvatar(r.Context(), id, file, header.Size, contentType)
	if err != nil {
		writeDALError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"avatar_url": url})
}

// mayModify allows the target user themselves or staff. It writes the
// error response and returns false when the caller is not allowed.
func (h *UserHandler) mayModify(w http.ResponseWriter, r *http.Request, target uuid.UUID) bool {
	callerID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return false
	}
	if callerID == target {
		return true
	}

	caller, err := h.userService.GetByID(r.Context(), callerID)
	if err != nil || !caller.IsStaff {
		writeError(w, http.StatusForbidden, "forbidden")
		return false
	}
	return true
}
