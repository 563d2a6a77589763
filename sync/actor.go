package sync

import (
	"crypto/ed25519"
	"fmt"
	"sync"

	"github.com/secsync-go/secsync/ephemeral"
	"github.com/secsync-go/secsync/message"
)

// Actor is the client-side synchronization state machine (spec.md §2-§5).
// It owns no socket itself; Transport is a narrow send-only handle, and the
// surrounding transport/websocket actor feeds it events via Dispatch.
type Actor struct {
	mu sync.Mutex

	cfg       Config
	callbacks HostCallbacks
	transport Transport
	ephemeral *ephemeral.Manager

	state           State
	decryptionState DecryptionState

	activeSnapshotID   string
	activeSnapshotKey  []byte
	haveActiveSnapshot bool

	// lastSnapshotCiphertext/lastSnapshotProof anchor the hash chain for the
	// next snapshot this client authors (spec.md §3). lastSnapshotProof holds
	// the raw (decoded) proof bytes, not the wire base64 form.
	lastSnapshotCiphertext []byte
	lastSnapshotProof      []byte

	// authorClocks is the highest per-author update clock this client has
	// applied against the active snapshot.
	authorClocks map[string]int
	// localClock is the clock of the last update this client authored
	// against the active snapshot, -1 until the first one; the next update
	// uses localClock+1 (spec.md §3).
	localClock int
	// latestServerVersion is the highest per-snapshot update version this
	// client has observed the server assign, -1 until the first update
	// round-trips (spec.md §3: "latestServerVersion | null").
	latestServerVersion int

	pendingChanges  [][]byte
	snapshotInFlight *message.Snapshot
	updatesInFlight  []message.Update

	unsuccessfulReconnects int

	authoringErrors []error
	receivingErrors []error
}

// NewActor constructs an actor in StateDisconnected. transport may be nil;
// call SetTransport once the surrounding websocket actor has dialed.
func NewActor(cfg Config, callbacks HostCallbacks, transport Transport) (*Actor, error) {
	mgr, err := ephemeral.NewManager(cfg.SigningKeyPair)
	if err != nil {
		return nil, fmt.Errorf("sync: creating ephemeral manager: %w", err)
	}
	return &Actor{
		cfg:                 cfg,
		callbacks:           callbacks,
		transport:           transport,
		ephemeral:           mgr,
		state:               StateDisconnected,
		authorClocks:        make(map[string]int),
		localClock:          -1,
		latestServerVersion: -1,
		activeSnapshotID:    cfg.KnownSnapshotID,
		activeSnapshotKey:   cfg.KnownSnapshotKey,
		haveActiveSnapshot: cfg.KnownSnapshotID != "",
	}, nil
}

// SetTransport installs the send handle used for this connection attempt.
func (a *Actor) SetTransport(t Transport) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.transport = t
}

// State reports the current lifecycle state.
func (a *Actor) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// DecryptionState reports how much of the document has been decrypted.
func (a *Actor) DecryptionState() DecryptionState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.decryptionState
}

// LatestServerVersion reports the highest per-snapshot update version this
// client has observed the server assign, or -1 if none yet (spec.md §3).
func (a *Actor) LatestServerVersion() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.latestServerVersion
}

// AuthoringErrors returns the most recent send-side rejection reasons,
// oldest first, capped at errorRingSize (spec.md §7 invariant 5).
func (a *Actor) AuthoringErrors() []error {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]error, len(a.authoringErrors))
	copy(out, a.authoringErrors)
	return out
}

// ReceivingErrors returns the most recent receive-side rejection reasons.
func (a *Actor) ReceivingErrors() []error {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]error, len(a.receivingErrors))
	copy(out, a.receivingErrors)
	return out
}

// ReconnectDelay returns how long the surrounding transport actor should
// wait before its next dial attempt (spec.md §5:
// baseDelay * (1 + unsuccessfulReconnects)).
func (a *Actor) ReconnectDelay() (State, int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state, a.unsuccessfulReconnects
}

func recordRing(ring []error, err error) []error {
	ring = append(ring, err)
	if len(ring) > errorRingSize {
		ring = ring[len(ring)-errorRingSize:]
	}
	return ring
}

// Dispatch feeds one event into the machine.
func (a *Actor) Dispatch(ev Event) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch ev.Kind {
	case EventWebsocketConnected:
		return a.handleConnected()
	case EventWebsocketDisconnected, EventWebsocketOpenTimedOut:
		return a.handleDisconnected()
	case EventIncomingFrame:
		return a.handleIncomingFrame(ev.Raw)
	case EventAddChanges:
		a.pendingChanges = append(a.pendingChanges, ev.Change)
		return a.tryFlushPendingChanges()
	case EventCreateSnapshotRequested:
		return a.createSnapshotNow()
	case EventSendEphemeralMessage:
		return a.sendEphemeralContent(ev.EphemeralBody)
	case EventDisconnect:
		a.state = StateDisconnected
		return nil
	default:
		return fmt.Errorf("sync: unknown event kind %d", ev.Kind)
	}
}

// handleConnected resets per-connection state on (re)connect: the in-flight
// snapshot/update buffers are cleared so pending work gets resent fresh,
// the ephemeral sub-machine starts a new local session (its old one is
// meaningless to peers after a reconnect), and the backoff counter clears.
// It does not reset the per-author clocks, the local update clock, the
// decryption state or the error buffers; handleDocument re-seeds the first
// three when the next document frame arrives, and the error buffers are kept.
func (a *Actor) handleConnected() error {
	a.snapshotInFlight = nil
	a.updatesInFlight = nil
	a.unsuccessfulReconnects = 0
	if err := a.ephemeral.Reset(); err != nil {
		return fmt.Errorf("sync: resetting ephemeral session on connect: %w", err)
	}
	a.state = StateConnectedIdle
	return a.tryFlushPendingChanges()
}

func (a *Actor) handleDisconnected() error {
	if a.state == StateConnectedIdle || a.state == StateConnectedProcessingQueues {
		a.state = StateConnectingRetrying
	} else {
		a.state = StateConnecting
	}
	a.unsuccessfulReconnects++
	return nil
}

func (a *Actor) send(f wireFrame) error {
	if a.transport == nil {
		return fmt.Errorf("sync: no transport attached")
	}
	raw, err := encodeFrame(f)
	if err != nil {
		return err
	}
	return a.transport.Send(raw)
}

func (a *Actor) handleIncomingFrame(raw []byte) error {
	f, err := decodeFrame(raw)
	if err != nil {
		a.receivingErrors = recordRing(a.receivingErrors, err)
		return err
	}

	switch f.Type {
	case frameDocument:
		return a.handleDocument(f)
	case frameSnapshot:
		return a.handleIncomingSnapshot(f)
	case frameSnapshotSaved:
		return a.handleSnapshotSaved(f)
	case frameSnapshotSaveFail:
		return a.handleSnapshotSaveFailed(f)
	case frameUpdate:
		return a.handleIncomingUpdate(f)
	case frameUpdateSaved:
		return a.handleUpdateSaved(f)
	case frameUpdateSaveFail:
		return a.handleUpdateSaveFailed(f)
	case frameEphemeral:
		return a.handleIncomingEphemeral(f)
	case frameDocumentNotFound, frameUnauthorized, frameDocumentError:
		a.state = StateFailed
		a.receivingErrors = recordRing(a.receivingErrors, fmt.Errorf("sync: server terminated document: %s: %s", f.Type, f.Reason))
		return nil
	default:
		err := fmt.Errorf("sync: unrecognized frame type %q", f.Type)
		a.receivingErrors = recordRing(a.receivingErrors, err)
		return err
	}
}

// handleDocument processes the initial load: the snapshot is decrypted
// first, establishing activeSnapshotID/authorClocks, then updates are
// applied strictly in order (spec.md §4.2).
func (a *Actor) handleDocument(f wireFrame) error {
	a.decryptionState = DecryptionPending
	if f.Snapshot == nil {
		err := fmt.Errorf("sync: document frame missing snapshot")
		a.receivingErrors = recordRing(a.receivingErrors, err)
		a.decryptionState = DecryptionFailed
		a.state = StateFailed
		return err
	}

	key, err := a.callbacks.GetSnapshotKey(f.Snapshot.PublicData)
	if err != nil {
		a.decryptionState = DecryptionFailed
		a.state = StateFailed
		a.receivingErrors = recordRing(a.receivingErrors, err)
		return err
	}

	snapshotAuthor := string(f.Snapshot.PublicData.PubKey)
	if !a.callbacks.IsValidClient(snapshotAuthor) {
		err := message.NewError(message.ErrEphemeralInvalidClient, fmt.Errorf("unknown client %s", snapshotAuthor))
		a.decryptionState = DecryptionFailed
		a.state = StateFailed
		a.receivingErrors = recordRing(a.receivingErrors, err)
		return err
	}

	plaintext, err := message.VerifyAndDecryptSnapshot(message.VerifySnapshotParams{
		Snapshot:      *f.Snapshot,
		Key:           key,
		ExpectedDocID: a.cfg.DocID,
	})
	if err != nil {
		a.decryptionState = DecryptionFailed
		a.state = StateFailed
		a.receivingErrors = recordRing(a.receivingErrors, err)
		return err
	}

	if err := a.callbacks.ApplySnapshot(plaintext); err != nil {
		a.decryptionState = DecryptionFailed
		a.state = StateFailed
		return err
	}

	a.adoptSnapshot(*f.Snapshot, key)
	a.decryptionState = DecryptionPartial

	changes := make([][]byte, 0, len(f.Updates))
	for i := range f.Updates {
		upd := f.Updates[i]
		author := string(upd.PublicData.PubKey)

		if !a.callbacks.IsValidClient(author) {
			err := message.NewError(message.ErrEphemeralInvalidClient, fmt.Errorf("unknown client %s", author))
			if len(changes) > 0 {
				if applyErr := a.callbacks.ApplyChanges(changes); applyErr != nil {
					a.decryptionState = DecryptionFailed
					a.state = StateFailed
					return applyErr
				}
			}
			a.decryptionState = DecryptionPartial
			a.state = StateFailed
			a.receivingErrors = recordRing(a.receivingErrors, err)
			return err
		}

		current, known := a.authorClocks[author]
		if !known {
			current = -1
		}
		plaintext, clock, ignored, err := message.VerifyAndDecryptUpdate(message.VerifyUpdateParams{
			Update:                     upd,
			Key:                        key,
			ExpectedDocID:              a.cfg.DocID,
			ActiveSnapshotID:           a.activeSnapshotID,
			CurrentClock:               current,
			SkipIfCurrentClockIsHigher: true,
		})
		if err != nil {
			// spec.md §4.2/§7: an update failure while loading the document
			// (as opposed to the snapshot itself) leaves decryption "partial"
			// rather than "failed" — the snapshot and any updates already
			// applied before this one are still good.
			if len(changes) > 0 {
				if applyErr := a.callbacks.ApplyChanges(changes); applyErr != nil {
					a.decryptionState = DecryptionFailed
					a.state = StateFailed
					return applyErr
				}
			}
			a.decryptionState = DecryptionPartial
			a.state = StateFailed
			a.receivingErrors = recordRing(a.receivingErrors, err)
			return err
		}
		if ignored {
			continue
		}
		a.authorClocks[author] = clock
		changes = append(changes, plaintext)
	}

	if len(changes) > 0 {
		if err := a.callbacks.ApplyChanges(changes); err != nil {
			a.decryptionState = DecryptionFailed
			a.state = StateFailed
			return err
		}
	}

	a.decryptionState = DecryptionComplete
	a.state = StateConnectedIdle
	return a.tryFlushPendingChanges()
}

// adoptSnapshot makes snap the active snapshot: its author clocks become
// the new baseline and it becomes the anchor for the next hash-chain link.
func (a *Actor) adoptSnapshot(snap message.Snapshot, key []byte) {
	a.activeSnapshotID = snap.PublicData.SnapshotID
	a.activeSnapshotKey = key
	a.haveActiveSnapshot = true
	a.authorClocks = make(map[string]int, len(snap.PublicData.ParentSnapshotUpdateClocks))
	for author, clock := range snap.PublicData.ParentSnapshotUpdateClocks {
		a.authorClocks[author] = clock
	}
	a.localClock = -1
	a.latestServerVersion = -1

	ciphertext, err := decodeSnapshotCiphertext(snap)
	if err == nil {
		a.lastSnapshotCiphertext = ciphertext
	}
	if snap.PublicData.ParentSnapshotProof != "" {
		if proof, err := decodeSnapshotProof(snap.PublicData.ParentSnapshotProof); err == nil {
			a.lastSnapshotProof = proof
		}
	} else {
		a.lastSnapshotProof = nil
	}
}

func (a *Actor) handleIncomingSnapshot(f wireFrame) error {
	if f.SnapshotMsg == nil {
		return fmt.Errorf("sync: snapshot frame missing snapshotMessage")
	}
	key, err := a.callbacks.GetSnapshotKey(f.SnapshotMsg.PublicData)
	if err != nil {
		a.receivingErrors = recordRing(a.receivingErrors, err)
		return err
	}

	observed := make(map[string]int, len(a.authorClocks))
	for author, clock := range a.authorClocks {
		observed[author] = clock
	}

	plaintext, err := message.VerifyAndDecryptSnapshot(message.VerifySnapshotParams{
		Snapshot:                 *f.SnapshotMsg,
		Key:                      key,
		ExpectedDocID:            a.cfg.DocID,
		ParentSnapshotCiphertext: a.lastSnapshotCiphertext,
		GrandParentSnapshotProof: a.lastSnapshotProof,
		LocallyObservedClocks:    observed,
	})
	if err != nil {
		a.receivingErrors = recordRing(a.receivingErrors, err)
		return err
	}

	if err := a.callbacks.ApplySnapshot(plaintext); err != nil {
		return err
	}
	a.adoptSnapshot(*f.SnapshotMsg, key)

	// A concurrent snapshot supersedes whatever we had in flight; our
	// pending changes are retried against the new snapshot once idle.
	a.snapshotInFlight = nil
	a.updatesInFlight = nil
	return a.tryFlushPendingChanges()
}

func (a *Actor) handleSnapshotSaved(f wireFrame) error {
	if a.snapshotInFlight != nil && a.snapshotInFlight.PublicData.SnapshotID == f.SnapshotID {
		a.snapshotInFlight = nil
	}
	return a.tryFlushPendingChanges()
}

// handleSnapshotSaveFailed recovers from a rejected snapshot per spec.md
// §4.2/S5: the server attaches either a newer Snapshot (this client was
// behind), a run of Updates the rejected snapshot missed, or neither. The
// client applies whatever is supplied, discards its own pending changes
// (a fresh snapshot will re-include them once local state is re-saved),
// and retries by authoring a new snapshot.
func (a *Actor) handleSnapshotSaveFailed(f wireFrame) error {
	err := fmt.Errorf("sync: snapshot %s rejected: %s", f.SnapshotID, f.Reason)
	a.authoringErrors = recordRing(a.authoringErrors, err)
	a.snapshotInFlight = nil
	a.updatesInFlight = nil
	a.pendingChanges = nil

	if f.Snapshot != nil {
		if err := a.applyAttachedSnapshot(*f.Snapshot); err != nil {
			a.receivingErrors = recordRing(a.receivingErrors, err)
			return err
		}
	} else if len(f.Updates) > 0 {
		if err := a.applyAttachedUpdates(f.Updates); err != nil {
			a.receivingErrors = recordRing(a.receivingErrors, err)
			return err
		}
	}

	return a.createSnapshotNow()
}

// applyAttachedSnapshot handles the "client was behind" branch of a
// snapshot-save-failed: the server's current snapshot replaces whatever
// this client had in flight, same as an unsolicited frameSnapshot.
func (a *Actor) applyAttachedSnapshot(snap message.Snapshot) error {
	key, err := a.callbacks.GetSnapshotKey(snap.PublicData)
	if err != nil {
		return err
	}
	plaintext, err := message.VerifyAndDecryptSnapshot(message.VerifySnapshotParams{
		Snapshot:                 snap,
		Key:                      key,
		ExpectedDocID:            a.cfg.DocID,
		ParentSnapshotCiphertext: a.lastSnapshotCiphertext,
		GrandParentSnapshotProof: a.lastSnapshotProof,
	})
	if err != nil {
		return err
	}
	if err := a.callbacks.ApplySnapshot(plaintext); err != nil {
		return err
	}
	a.adoptSnapshot(snap, key)
	return nil
}

// applyAttachedUpdates handles the "snapshot missed updates" branch: the
// rejected snapshot's parentSnapshotUpdateClocks undercounted one or more
// authors, so the server attaches the updates it was missing. They apply
// against the still-active snapshot, in order, same as frameUpdate.
func (a *Actor) applyAttachedUpdates(updates []message.Update) error {
	for i := range updates {
		upd := updates[i]
		author := string(upd.PublicData.PubKey)
		current, known := a.authorClocks[author]
		if !known {
			current = -1
		}
		plaintext, clock, ignored, err := message.VerifyAndDecryptUpdate(message.VerifyUpdateParams{
			Update:                     upd,
			Key:                        a.activeSnapshotKey,
			ExpectedDocID:              a.cfg.DocID,
			ActiveSnapshotID:           a.activeSnapshotID,
			CurrentClock:               current,
			SkipIfCurrentClockIsHigher: true,
		})
		if err != nil {
			return err
		}
		if ignored {
			continue
		}
		a.authorClocks[author] = clock
		if err := a.callbacks.ApplyChanges([][]byte{plaintext}); err != nil {
			return err
		}
	}
	return nil
}

func (a *Actor) handleIncomingUpdate(f wireFrame) error {
	if f.UpdateMsg == nil {
		return fmt.Errorf("sync: update frame missing updateMessage")
	}
	upd := *f.UpdateMsg
	author := string(upd.PublicData.PubKey)
	current, known := a.authorClocks[author]
	if !known {
		current = -1
	}

	plaintext, clock, ignored, err := message.VerifyAndDecryptUpdate(message.VerifyUpdateParams{
		Update:                     upd,
		Key:                        a.activeSnapshotKey,
		ExpectedDocID:              a.cfg.DocID,
		ActiveSnapshotID:           a.activeSnapshotID,
		CurrentClock:               current,
		SkipIfCurrentClockIsHigher: true,
	})
	if err != nil {
		a.receivingErrors = recordRing(a.receivingErrors, err)
		return err
	}
	if ignored {
		return nil
	}

	a.authorClocks[author] = clock
	if upd.ServerData != nil && upd.ServerData.Version > a.latestServerVersion {
		a.latestServerVersion = upd.ServerData.Version
	}
	return a.callbacks.ApplyChanges([][]byte{plaintext})
}

func (a *Actor) handleUpdateSaved(f wireFrame) error {
	kept := a.updatesInFlight[:0]
	for _, u := range a.updatesInFlight {
		if u.PublicData.Clock == f.Clock {
			continue
		}
		kept = append(kept, u)
	}
	a.updatesInFlight = kept
	if f.ServerVersion > a.latestServerVersion {
		a.latestServerVersion = f.ServerVersion
	}
	return nil
}

func (a *Actor) handleUpdateSaveFailed(f wireFrame) error {
	err := fmt.Errorf("sync: update clock %d rejected: %s", f.Clock, f.Reason)
	a.authoringErrors = recordRing(a.authoringErrors, err)
	// The server's authoritative clock disagreed with ours; the cleanest
	// recovery is a fresh snapshot rather than trying to renumber updates
	// already queued behind the rejected one.
	a.updatesInFlight = nil
	return a.createSnapshotNow()
}

// tryFlushPendingChanges sends queued local changes once the actor is
// connected, has an active snapshot, and is not waiting on a snapshot
// decision (spec.md §4.2: "pendingChangesQueue drains once
// snapshotInFlight clears"). Each queued change becomes its own Update with
// the next local clock; changes are not bundled into one Update.
func (a *Actor) tryFlushPendingChanges() error {
	if a.state != StateConnectedIdle && a.state != StateConnectedProcessingQueues {
		return nil
	}
	if !a.haveActiveSnapshot || a.snapshotInFlight != nil {
		return nil
	}
	if len(a.pendingChanges) == 0 {
		return nil
	}

	a.state = StateConnectedProcessingQueues
	defer func() {
		if a.state == StateConnectedProcessingQueues {
			a.state = StateConnectedIdle
		}
	}()

	for len(a.pendingChanges) > 0 {
		content := a.pendingChanges[0]
		a.pendingChanges = a.pendingChanges[1:]

		a.localClock++
		upd, err := message.CreateUpdate(message.CreateUpdateParams{
			Content:        content,
			DocID:          a.cfg.DocID,
			RefSnapshotID:  a.activeSnapshotID,
			Clock:          a.localClock,
			Key:            a.activeSnapshotKey,
			SigningKeyPair: a.cfg.SigningKeyPair,
		})
		if err != nil {
			a.authoringErrors = recordRing(a.authoringErrors, err)
			return err
		}

		a.updatesInFlight = append(a.updatesInFlight, upd)
		u := upd
		if err := a.send(wireFrame{Type: frameUpdate, UpdateMsg: &u}); err != nil {
			a.authoringErrors = recordRing(a.authoringErrors, err)
			return err
		}
	}
	return nil
}

// createSnapshotNow asks the host for fresh snapshot content and sends it,
// chaining it to whatever snapshot is currently active (spec.md §4.1).
func (a *Actor) createSnapshotNow() error {
	data, err := a.callbacks.GetNewSnapshotData()
	if err != nil {
		a.authoringErrors = recordRing(a.authoringErrors, err)
		return err
	}

	snap, err := message.CreateSnapshot(message.CreateSnapshotParams{
		Content:                    data.Content,
		DocID:                      a.cfg.DocID,
		ParentSnapshotID:           a.activeSnapshotID,
		ParentSnapshotCiphertext:   a.lastSnapshotCiphertext,
		GrandParentSnapshotProof:   []byte(a.lastSnapshotProof),
		ParentSnapshotUpdateClocks: a.authorClocks,
		Key:                        data.Key,
		SigningKeyPair:             a.cfg.SigningKeyPair,
	})
	if err != nil {
		a.authoringErrors = recordRing(a.authoringErrors, err)
		return err
	}

	a.snapshotInFlight = &snap
	a.activeSnapshotKey = data.Key
	return a.send(wireFrame{Type: frameSnapshot, SnapshotMsg: &snap})
}

func (a *Actor) handleIncomingEphemeral(f wireFrame) error {
	if f.EphemeralMsg == nil {
		return fmt.Errorf("sync: ephemeral frame missing ephemeralMessage")
	}
	key, err := a.callbacks.GetEphemeralMessageKey()
	if err != nil {
		a.receivingErrors = recordRing(a.receivingErrors, err)
		return err
	}

	decoded, err := message.VerifyAndDecryptEphemeralMessage(*f.EphemeralMsg, key, a.cfg.DocID)
	if err != nil {
		a.receivingErrors = recordRing(a.receivingErrors, err)
		return err
	}

	authorKey := string(f.EphemeralMsg.PublicData.PubKey)
	if !a.callbacks.IsValidClient(authorKey) {
		err := message.NewError(message.ErrEphemeralInvalidClient, fmt.Errorf("unknown client %s", authorKey))
		a.receivingErrors = recordRing(a.receivingErrors, err)
		return err
	}
	authorPub, err := f.EphemeralMsg.PublicData.PubKey.Bytes()
	if err != nil {
		a.receivingErrors = recordRing(a.receivingErrors, err)
		return err
	}

	res := a.ephemeral.Process(ed25519.PublicKey(authorPub), authorKey, decoded)
	if res.Err != nil {
		a.receivingErrors = recordRing(a.receivingErrors, res.Err)
	}

	switch res.Action {
	case ephemeral.ActionApply:
		if err := a.callbacks.ApplyEphemeralMessage(decoded.Body, authorKey); err != nil {
			return err
		}
	case ephemeral.ActionSendProof:
		return a.replyEphemeral(message.EphemeralProof, res.RespondTo, key)
	case ephemeral.ActionSendProofAndRequest:
		return a.replyEphemeral(message.EphemeralProofAndRequestProof, res.RespondTo, key)
	}
	return res.Err
}

func (a *Actor) replyEphemeral(typ message.EphemeralMessageType, addressee string, key []byte) error {
	body, err := a.ephemeral.ProofBody(addressee)
	if err != nil {
		return err
	}
	return a.sendEphemeral(typ, body, key)
}

func (a *Actor) sendEphemeralContent(body []byte) error {
	key, err := a.callbacks.GetEphemeralMessageKey()
	if err != nil {
		a.authoringErrors = recordRing(a.authoringErrors, err)
		return err
	}
	return a.sendEphemeral(message.EphemeralContent, body, key)
}

func (a *Actor) sendEphemeral(typ message.EphemeralMessageType, body []byte, key []byte) error {
	msg, err := message.CreateEphemeralMessage(message.CreateEphemeralMessageParams{
		Type:           typ,
		SessionID:      a.ephemeral.Local.ID,
		SessionCounter: a.ephemeral.Local.Next(),
		Body:           body,
		DocID:          a.cfg.DocID,
		Key:            key,
		SigningKeyPair: a.cfg.SigningKeyPair,
	})
	if err != nil {
		a.authoringErrors = recordRing(a.authoringErrors, err)
		return err
	}
	return a.send(wireFrame{Type: frameEphemeral, EphemeralMsg: &msg})
}
