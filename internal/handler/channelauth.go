package handler

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"

	"github.com/threadline-chat/messenger-platform/internal/transport"
	"github.com/threadline-chat/messenger-platform/pkg/logger"
)

// ChannelAuthHandler signs channel subscription requests. Clients must
// present a signed grant before the socket layer lets them bind a
// private or presence channel.
type ChannelAuthHandler struct {
	appKey string
	secret []byte
	logger *logger.Logger
}

// NewChannelAuthHandler creates a channel auth handler.
func NewChannelAuthHandler(appKey, secret string, log *logger.Logger) *ChannelAuthHandler {
	return &ChannelAuthHandler{
		appKey: appKey,
		secret: []byte(secret),
		logger: log,
	}
}

type channelAuthResponse struct {
	Auth        string `json:"auth"`
	ChannelData string `json:"channel_data,omitempty"`
}

// Authorize handles POST /api/v1/channels/auth. The signature covers
// "<socket_id>:<channel_name>", with the member payload appended for
// presence channels so the socket layer learns who joined.
func (h *ChannelAuthHandler) Authorize(w http.ResponseWriter, r *http.Request) {
	current, ok := sessionUser(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form body")
		return
	}
	socketID := r.PostFormValue("socket_id")
	channelName := r.PostFormValue("channel_name")
	if socketID == "" || channelName == "" {
		writeError(w, http.StatusBadRequest, "missing socket_id or channel_name")
		return
	}

	payload := socketID + ":" + channelName
	resp := channelAuthResponse{}

	if transport.IsPresence(channelName) {
		data, err := json.Marshal(map[string]string{"user_id": current.Email})
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		resp.ChannelData = string(data)
		payload += ":" + resp.ChannelData
	}

	mac := hmac.New(sha256.New, h.secret)
	mac.Write([]byte(payload))
	resp.Auth = h.appKey + ":" + hex.EncodeToString(mac.Sum(nil))

	writeJSON(w, http.StatusOK, resp)
}
