package handlers

// Wire DTOs for the key distribution endpoints. Key material travels
// base64-encoded; decoding happens at the handler boundary so services
// and repositories only ever see raw bytes.

type SignedPreKeyDTO struct {
	KeyID     uint32 `json:"keyId" binding:"required"`
	PublicKey string `json:"publicKey" binding:"required"`
	Signature string `json:"signature" binding:"required"`
}

type OneTimePreKeyDTO struct {
	KeyID     uint32 `json:"keyId" binding:"required"`
	PublicKey string `json:"publicKey" binding:"required"`
}

type RegisterIdentityRequest struct {
	UserID         string `json:"userId" binding:"required"`
	PublicKey      string `json:"publicKey" binding:"required"`
	SigningKey     string `json:"signingKey" binding:"required"`
	RegistrationID uint32 `json:"registrationId" binding:"required"`
}

type UploadPreKeysRequest struct {
	UserID         string             `json:"userId" binding:"required"`
	SignedPreKey   SignedPreKeyDTO    `json:"signedPreKey" binding:"required"`
	OneTimePreKeys []OneTimePreKeyDTO `json:"oneTimePreKeys"`
}

type BundleResponse struct {
	IdentityKey    string            `json:"identityKey"`
	SigningKey     string            `json:"signingKey"`
	RegistrationID uint32            `json:"registrationId"`
	SignedPreKey   SignedPreKeyDTO   `json:"signedPreKey"`
	OneTimePreKey  *OneTimePreKeyDTO `json:"oneTimePreKey"`
}
