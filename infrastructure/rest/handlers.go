package rest

import (
	"channel-chat/auth"
	"channel-chat/domain"
	"channel-chat/errors"
	"channel-chat/observability"
	"channel-chat/services"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

const maxBodyBytes = 1 << 20

type handlers struct {
	log        *slog.Logger
	auth       services.IAuthService
	chat       services.IChatService
	monitoring *observability.Monitoring
}

func (h *handlers) live(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprint(w, "Backend is live! WebSocket running.")
}

func (h *handlers) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Stats: h.monitoring.Snapshot()})
}

func (h *handlers) signup(w http.ResponseWriter, r *http.Request) {
	var body signupRequest
	if !h.decode(w, r, &body) {
		return
	}
	_, err := h.auth.Signup(r.Context(), auth.SignupRequest{Name: body.Name, Email: body.Email, Password: body.Password})
	if err != nil {
		// A taken email is reported like any other invalid signup.
		if stderrors.Is(err, errors.ErrUserAlreadyExists) {
			writeJSON(w, http.StatusBadRequest, errorResponse{Message: "Email already exists", Code: errors.Code(err)})
			return
		}
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Signup success"})
}

func (h *handlers) login(w http.ResponseWriter, r *http.Request) {
	var body loginRequest
	if !h.decode(w, r, &body) {
		return
	}
	result, err := h.auth.Login(r.Context(), auth.LoginRequest{Email: body.Email, Password: body.Password})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{
		Message: "Login success",
		Token:   result.Token,
		User:    userView{ID: result.User.ID, Username: result.User.Name},
	})
}

func (h *handlers) listChannels(w http.ResponseWriter, r *http.Request) {
	channels, err := h.chat.ListChannels(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toChannelViews(channels))
}

func (h *handlers) createChannel(w http.ResponseWriter, r *http.Request) {
	var body createChannelRequest
	if !h.decode(w, r, &body) {
		return
	}
	channel, err := h.chat.CreateChannel(r.Context(), body.Name)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, createChannelResponse{Message: "Channel created", Channel: toChannelView(channel)})
}

func (h *handlers) joinChannel(w http.ResponseWriter, r *http.Request) {
	h.membership(w, r, h.chat.JoinChannel, "Joined channel")
}

func (h *handlers) leaveChannel(w http.ResponseWriter, r *http.Request) {
	h.membership(w, r, h.chat.LeaveChannel, "Left channel")
}

func (h *handlers) membership(w http.ResponseWriter, r *http.Request,
	apply func(ctx context.Context, userID domain.UserID, channelID domain.ChannelID) error, message string) {
	identity, _ := auth.IdentityFrom(r.Context())
	var body channelRequest
	if !h.decode(w, r, &body) {
		return
	}
	if body.ChannelID == 0 {
		h.writeError(w, r, fmt.Errorf("%w: channel_id is required", errors.ErrInvalidRequest))
		return
	}
	if err := apply(r.Context(), identity.UserID, body.ChannelID); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: message})
}

func (h *handlers) members(w http.ResponseWriter, r *http.Request) {
	channelID, err := domain.ParseChannelID(r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, fmt.Errorf("%w: invalid channel id", errors.ErrInvalidRequest))
		return
	}
	count, err := h.chat.MemberCount(r.Context(), channelID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, membersResponse{Count: count})
}

func (h *handlers) history(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFrom(r.Context())
	channelID, err := domain.ParseChannelID(r.PathValue("channelId"))
	if err != nil {
		h.writeError(w, r, fmt.Errorf("%w: invalid channel id", errors.ErrInvalidRequest))
		return
	}
	cursor, err := ParseCursor(r.URL.Query().Get("before"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	limit, err := ParseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	messages, err := h.chat.History(r.Context(), identity.UserID, channelID, cursor, limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toHistoryViews(messages))
}

// ParseCursor reads the "before" parameter: a message id or an RFC3339 timestamp.
func ParseCursor(before string) (domain.Cursor, error) {
	if before == "" {
		return domain.Cursor{}, nil
	}
	if id, err := strconv.ParseUint(before, 10, 64); err == nil {
		if id == 0 {
			return domain.Cursor{}, errors.ErrInvalidCursor
		}
		return domain.Cursor{Before: domain.MessageID(id)}, nil
	}
	at, err := time.Parse(time.RFC3339Nano, before)
	if err != nil {
		return domain.Cursor{}, errors.ErrInvalidCursor
	}
	return domain.Cursor{BeforeAt: at.UTC()}, nil
}

// ParseLimit reads the optional "limit" parameter. Zero means the server page size.
func ParseLimit(limit string) (int, error) {
	if limit == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(limit)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: limit must be a positive integer", errors.ErrInvalidRequest)
	}
	return n, nil
}

func (h *handlers) decode(w http.ResponseWriter, r *http.Request, into any) bool {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := decoder.Decode(into); err != nil {
		h.writeError(w, r, fmt.Errorf("%w: malformed JSON body", errors.ErrInvalidRequest))
		return false
	}
	return true
}

// writeError logs server side failures and hides their cause from the client.
func (h *handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := errors.Status(err)
	if errors.IsClientError(err) {
		h.log.Debug("Request rejected", "path", r.URL.Path, "status", status, "error", err)
		writeJSON(w, status, errorResponse{Message: err.Error(), Code: errors.Code(err)})
		return
	}
	h.log.Error("Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	writeJSON(w, status, errorResponse{Message: "Server error", Code: errors.Code(err)})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
