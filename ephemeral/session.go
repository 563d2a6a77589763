// Package ephemeral implements the per-peer session handshake and replay
// protection layered on top of message.EphemeralMessage (spec.md §3/§4.1,
// §5 invariant 4). A peer proves ownership of a session id by signing a
// proof over the concatenation of the two sides' session ids; once proven,
// its session's counter must strictly increase for every content message.
package ephemeral

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"

	"github.com/secsync-go/secsync/crypto"
	"github.com/secsync-go/secsync/message"
)

// errorRingSize bounds how many recent rejection reasons Manager retains,
// matching the 20-entry authoring/receiving ring buffers the sync actor
// keeps for ephemeral errors.
const errorRingSize = 20

// Session is a participant's ephemeral identity: a random id plus a
// strictly increasing counter used to frame every EphemeralMessage it
// produces.
type Session struct {
	ID      string
	counter uint32
}

// NewSession mints a fresh session with a random id and counter starting at
// zero.
func NewSession() (Session, error) {
	id, err := crypto.NewID()
	if err != nil {
		return Session{}, err
	}
	return Session{ID: id}, nil
}

// Next returns the counter value to use for the next outgoing message and
// advances the session's internal counter.
func (s *Session) Next() uint32 {
	c := s.counter
	s.counter++
	return c
}

func decodeSessionID(id string) ([]byte, error) {
	b, err := base64.RawURLEncoding.DecodeString(id)
	if err != nil {
		return nil, fmt.Errorf("ephemeral: decode session id: %w", err)
	}
	return b, nil
}

// Action tells the caller what, if anything, to send back as a result of
// processing an incoming ephemeral message.
type Action int

const (
	// ActionNone means nothing further needs to happen.
	ActionNone Action = iota
	// ActionApply means decoded.Body should be delivered to the host's
	// applyEphemeralMessage callback.
	ActionApply
	// ActionSendProof means the caller should send a Proof message
	// addressed to the remote session that triggered this result.
	ActionSendProof
	// ActionSendProofAndRequest means the caller should send a
	// ProofAndRequestProof message, asking the remote side to prove its
	// session back.
	ActionSendProofAndRequest
)

// Result is what Manager.Process decides to do with one incoming message.
type Result struct {
	Action Action
	// RespondTo is the session id any reply action should be addressed to.
	RespondTo string
	// Err is non-nil when the message was rejected; it is always a
	// *message.Error carrying one of the ephemeral codes (SECSYNC_ERROR_22,
	// 23, 25, 36 or 38). Err and a
	// non-ActionNone Action are not mutually exclusive: an unproven-session
	// content message both requests a fresh handshake and reports
	// SECSYNC_ERROR_22.
	Err error
}

// remoteSession is what Manager remembers about one peer's session.
type remoteSession struct {
	id      string
	counter uint32
	proven  bool
}

// Manager owns one local Session and tracks, per remote author (identified
// by their signing public key), which session they are using and whether
// it has been proven.
type Manager struct {
	Local          Session
	signingKeyPair crypto.KeyPair

	remotes map[string]*remoteSession
	errs    []error
}

// NewManager mints a fresh local session and returns a Manager ready to
// process incoming ephemeral messages signed by signingKeyPair.
func NewManager(signingKeyPair crypto.KeyPair) (*Manager, error) {
	local, err := NewSession()
	if err != nil {
		return nil, err
	}
	return &Manager{
		Local:          local,
		signingKeyPair: signingKeyPair,
		remotes:        make(map[string]*remoteSession),
	}, nil
}

// Reset mints a new local session and drops all remote session state,
// matching the sync state machine's "reconnect resets everything" rule
// (spec.md §4.2).
func (m *Manager) Reset() error {
	local, err := NewSession()
	if err != nil {
		return err
	}
	m.Local = local
	m.remotes = make(map[string]*remoteSession)
	return nil
}

// ProofBody produces the signed body for a Proof/ProofAndRequestProof
// message addressed to addresseeSessionID: a detached signature over
// addresseeSessionID's raw bytes followed by the local session's raw
// bytes.
func (m *Manager) ProofBody(addresseeSessionID string) ([]byte, error) {
	addressee, err := decodeSessionID(addresseeSessionID)
	if err != nil {
		return nil, err
	}
	own, err := decodeSessionID(m.Local.ID)
	if err != nil {
		return nil, err
	}
	payload := make([]byte, 0, len(addressee)+len(own))
	payload = append(payload, addressee...)
	payload = append(payload, own...)
	return m.signingKeyPair.Sign(payload), nil
}

// Process applies the handshake/replay rules of spec.md §4.1 to one
// decrypted ephemeral frame already known to belong to author (identified
// by their raw Ed25519 public key).
func (m *Manager) Process(author ed25519.PublicKey, authorKey string, decoded message.DecryptedEphemeralMessage) Result {
	switch decoded.Type {
	case message.EphemeralInitialize:
		m.remotes[authorKey] = &remoteSession{id: decoded.SessionID, counter: decoded.SessionCounter}
		return Result{Action: ActionSendProofAndRequest, RespondTo: decoded.SessionID}

	case message.EphemeralProof, message.EphemeralProofAndRequestProof:
		own, err := decodeSessionID(m.Local.ID)
		if err != nil {
			return m.reject(message.ErrEphemeralUnexpected, err)
		}
		remote, err := decodeSessionID(decoded.SessionID)
		if err != nil {
			return m.reject(message.ErrEphemeralUnexpected, err)
		}
		payload := append(append([]byte{}, own...), remote...)
		if !ed25519.Verify(author, payload, decoded.Body) {
			return m.reject(message.ErrEphemeralSignatureInvalid, nil)
		}

		m.remotes[authorKey] = &remoteSession{id: decoded.SessionID, counter: decoded.SessionCounter, proven: true}
		if decoded.Type == message.EphemeralProofAndRequestProof {
			return Result{Action: ActionSendProof, RespondTo: decoded.SessionID}
		}
		return Result{Action: ActionNone}

	case message.EphemeralContent:
		sess, known := m.remotes[authorKey]
		if !known || sess.id != decoded.SessionID || !sess.proven {
			m.remotes[authorKey] = &remoteSession{id: decoded.SessionID, counter: decoded.SessionCounter}
			res := m.reject(message.ErrEphemeralNoValidSession, nil)
			res.Action = ActionSendProofAndRequest
			res.RespondTo = decoded.SessionID
			return res
		}
		if decoded.SessionCounter <= sess.counter {
			return m.reject(message.ErrEphemeralReplay, nil)
		}
		sess.counter = decoded.SessionCounter
		return Result{Action: ActionApply}

	default:
		return m.reject(message.ErrEphemeralUnknownType, nil)
	}
}

func (m *Manager) reject(code message.Code, cause error) Result {
	err := message.NewError(code, cause)
	m.recordError(err)
	return Result{Err: err}
}

func (m *Manager) recordError(err error) {
	m.errs = append(m.errs, err)
	if len(m.errs) > errorRingSize {
		m.errs = m.errs[len(m.errs)-errorRingSize:]
	}
}

// Errors returns the most recent rejection reasons, oldest first, capped at
// errorRingSize (spec.md §7 bounded ring buffer).
func (m *Manager) Errors() []error {
	out := make([]error, len(m.errs))
	copy(out, m.errs)
	return out
}
