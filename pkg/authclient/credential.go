package authclient

import "sync"

// Credential is an opaque bearer token. Its expiry is not tracked locally.
type Credential string

// IsZero reports whether no credential is present.
func (c Credential) IsZero() bool { return c == "" }

// CredentialHolder is the in-memory cell for the current access credential.
// Every Set and Clear advances an epoch so late failures can be matched to the
// credential they were sent with.
type CredentialHolder struct {
	mu    sync.RWMutex
	cred  Credential
	epoch uint64
}

// NewCredentialHolder returns an empty holder.
func NewCredentialHolder() *CredentialHolder {
	return &CredentialHolder{}
}

// Get returns the current credential, or the zero value when none is held.
func (h *CredentialHolder) Get() Credential {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.cred
}

// Set replaces the credential.
func (h *CredentialHolder) Set(c Credential) {
	h.mu.Lock()
	h.cred = c
	h.epoch++
	h.mu.Unlock()
}

// Clear removes the credential and reports whether one was held.
func (h *CredentialHolder) Clear() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	had := !h.cred.IsZero()
	h.cred = ""
	h.epoch++
	return had
}

// Epoch returns the current write generation.
func (h *CredentialHolder) Epoch() uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.epoch
}

func (h *CredentialHolder) snapshot() (Credential, uint64) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.cred, h.epoch
}

// setIf stores c only if nothing was written since epoch.
func (h *CredentialHolder) setIf(epoch uint64, c Credential) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.epoch != epoch {
		return false
	}
	h.cred = c
	h.epoch++
	return true
}

// clearIf clears only if nothing was written since epoch and a credential is
// held. It returns the new epoch.
func (h *CredentialHolder) clearIf(epoch uint64) (uint64, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.epoch != epoch || h.cred.IsZero() {
		return h.epoch, false
	}
	h.cred = ""
	h.epoch++
	return h.epoch, true
}
