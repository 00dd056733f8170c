package dto

// AlgorithmInfo describes a key-pair algorithm and what it can produce.
type AlgorithmInfo struct {
	// KeyPairAlgorithm is the registry name (e.g., "EC", "ML-DSA-65").
	KeyPairAlgorithm string `json:"keypair_algorithm"`

	// SignatureAlgorithms lists compatible signature algorithms, the
	// default first.
	SignatureAlgorithms []string `json:"signature_algorithms"`

	// KeySizes lists selectable key sizes. Empty for fixed-size algorithms.
	KeySizes []int `json:"key_sizes,omitempty"`

	// DefaultKeySize is used when a session is created without a key size.
	DefaultKeySize int `json:"default_key_size,omitempty"`

	// Generatable is false when keys of this algorithm cannot be generated
	// by the server.
	Generatable bool `json:"generatable"`
}

// AlgorithmListResponse lists every key-pair algorithm.
type AlgorithmListResponse struct {
	Algorithms []AlgorithmInfo `json:"algorithms"`
}

// ExtensionValidateRequest checks a single extension row.
type ExtensionValidateRequest struct {
	ID    string `json:"id"`
	Value string `json:"value"`
}

// ExtensionValidateResponse is returned for a valid row.
type ExtensionValidateResponse struct {
	Valid bool `json:"valid"`

	// DER is the hex encoded Extension structure.
	DER string `json:"der,omitempty"`
}
