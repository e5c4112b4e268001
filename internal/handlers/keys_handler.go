package handlers

import (
	"encoding/base64"
	"errors"
	"log/slog"
	"net/http"
	"orion/internal/models"
	"orion/internal/services"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"
)

type KeysHandler struct {
	keys   *services.KeyBundleService
	logger *slog.Logger
	tracer trace.Tracer
}

func NewKeysHandler(keys *services.KeyBundleService, logger *slog.Logger, tracer trace.Tracer) *KeysHandler {
	return &KeysHandler{keys: keys, logger: logger, tracer: tracer}
}

func (h *KeysHandler) RegisterIdentity(c *gin.Context) {
	var req RegisterIdentityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required fields"})
		return
	}

	publicKey, err1 := base64.StdEncoding.DecodeString(req.PublicKey)
	signingKey, err2 := base64.StdEncoding.DecodeString(req.SigningKey)
	if err1 != nil || err2 != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Malformed key encoding"})
		return
	}

	identity := &models.Identity{
		UserID:         req.UserID,
		PublicKey:      publicKey,
		SigningKey:     signingKey,
		RegistrationID: req.RegistrationID,
	}

	if err := h.keys.RegisterIdentity(c.Request.Context(), identity); err != nil {
		if errors.Is(err, services.ErrInvalidInput) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error("identity registration failed", "requestID", services.GetRequestID(c), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Registration failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *KeysHandler) UploadPreKeys(c *gin.Context) {
	var req UploadPreKeysRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required fields"})
		return
	}

	signed, err := decodeSignedPreKey(req.SignedPreKey)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Malformed signed prekey"})
		return
	}

	oneTime := make([]models.OneTimePreKey, 0, len(req.OneTimePreKeys))
	for _, dto := range req.OneTimePreKeys {
		publicKey, err := base64.StdEncoding.DecodeString(dto.PublicKey)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Malformed one-time prekey"})
			return
		}
		oneTime = append(oneTime, models.OneTimePreKey{KeyID: dto.KeyID, PublicKey: publicKey})
	}

	if err := h.keys.UploadPreKeys(c.Request.Context(), req.UserID, signed, oneTime); err != nil {
		if errors.Is(err, services.ErrInvalidInput) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error("prekey upload failed", "requestID", services.GetRequestID(c), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Upload failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "count": len(oneTime)})
}

func (h *KeysHandler) GetBundle(c *gin.Context) {
	userID := c.Param("userId")

	bundle, err := h.keys.GetBundle(c.Request.Context(), userID)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Identity not found"})
		case errors.Is(err, services.ErrBundleIncomplete):
			c.JSON(http.StatusNotFound, gin.H{"error": "Signed PreKey not found"})
		case errors.Is(err, services.ErrInvalidInput):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			h.logger.Error("bundle assembly failed", "requestID", services.GetRequestID(c), "userID", userID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Bundle assembly failed"})
		}
		return
	}

	resp := BundleResponse{
		IdentityKey:    base64.StdEncoding.EncodeToString(bundle.IdentityKey),
		SigningKey:     base64.StdEncoding.EncodeToString(bundle.SigningKey),
		RegistrationID: bundle.RegistrationID,
		SignedPreKey: SignedPreKeyDTO{
			KeyID:     bundle.SignedPreKey.KeyID,
			PublicKey: base64.StdEncoding.EncodeToString(bundle.SignedPreKey.PublicKey),
			Signature: base64.StdEncoding.EncodeToString(bundle.SignedPreKey.Signature),
		},
	}
	if bundle.OneTimePreKey != nil {
		resp.OneTimePreKey = &OneTimePreKeyDTO{
			KeyID:     bundle.OneTimePreKey.KeyID,
			PublicKey: base64.StdEncoding.EncodeToString(bundle.OneTimePreKey.PublicKey),
		}
	}

	c.JSON(http.StatusOK, resp)
}

func decodeSignedPreKey(dto SignedPreKeyDTO) (models.SignedPreKey, error) {
	publicKey, err := base64.StdEncoding.DecodeString(dto.PublicKey)
	if err != nil {
		return models.SignedPreKey{}, err
	}
	signature, err := base64.StdEncoding.DecodeString(dto.Signature)
	if err != nil {
		return models.SignedPreKey{}, err
	}
	return models.SignedPreKey{KeyID: dto.KeyID, PublicKey: publicKey, Signature: signature}, nil
}
