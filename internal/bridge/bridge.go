// ABOUTME: Matrix bridge core: login, sync loop and inbound event routing
// ABOUTME: Turns messages, reactions and invites into dispatcher calls, one goroutine per event

package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/2389/coven-assistant/internal/config"
	"github.com/2389/coven-assistant/internal/dedupe"
	"github.com/2389/coven-assistant/internal/prompts"
)

// sentTTL is how long the bot's own messages accept button reactions.
const sentTTL = 24 * time.Hour

// deviceDisplayName is shown in the account's session list after a password login.
const deviceDisplayName = "coven-assistant"

// Bridge connects Matrix rooms to the conversation service.
type Bridge struct {
	matrixCfg  config.MatrixConfig
	bridgeCfg  config.BridgeConfig
	matrix     *mautrix.Client
	dispatcher *Dispatcher
	prompts    *prompts.Prompts
	events     *dedupe.Filter // inbound event ids
	sent       *dedupe.Filter // event ids we sent
	crypto     *CryptoManager
	logger     *slog.Logger

	// ctx is the parent context for event goroutines
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewBridge creates a bridge. Call Login before Run.
func NewBridge(matrixCfg config.MatrixConfig, bridgeCfg config.BridgeConfig, conv Conversation, p *prompts.Prompts, logger *slog.Logger) (*Bridge, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if p == nil {
		p = prompts.Default()
	}

	client, err := mautrix.NewClient(matrixCfg.Homeserver, id.UserID(matrixCfg.UserID), matrixCfg.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("creating matrix client: %w", err)
	}

	logger = logger.With("component", "bridge")
	sent := dedupe.New(sentTTL, dedupe.DefaultMaxSize)
	transport := newMatrixTransport(client, sent, logger)

	return &Bridge{
		matrixCfg:  matrixCfg,
		bridgeCfg:  bridgeCfg,
		matrix:     client,
		dispatcher: NewDispatcher(conv, transport, p, bridgeCfg.TypingIndicator, logger),
		prompts:    p,
		events:     dedupe.New(dedupe.DefaultTTL, dedupe.DefaultMaxSize),
		sent:       sent,
		logger:     logger,
	}, nil
}

// UserID returns the bot's Matrix user id, known after Login.
func (b *Bridge) UserID() string {
	return b.matrix.UserID.String()
}

// Login authenticates the client. With an access token it only resolves the
// user and device ids; otherwise it performs a password login.
func (b *Bridge) Login(ctx context.Context) error {
	if b.matrixCfg.AccessToken != "" {
		resp, err := b.matrix.Whoami(ctx)
		if err != nil {
			return fmt.Errorf("checking access token: %w", err)
		}
		b.matrix.UserID = resp.UserID
		b.matrix.DeviceID = resp.DeviceID
		b.logger.Info("using access token", "user_id", resp.UserID, "device_id", resp.DeviceID)
		return nil
	}

	resp, err := b.matrix.Login(ctx, &mautrix.ReqLogin{
		Type: mautrix.AuthTypePassword,
		Identifier: mautrix.UserIdentifier{
			Type: mautrix.IdentifierTypeUser,
			User: b.matrixCfg.Username,
		},
		Password:                 b.matrixCfg.Password,
		InitialDeviceDisplayName: deviceDisplayName,
		StoreCredentials:         true,
	})
	if err != nil {
		return fmt.Errorf("password login: %w", err)
	}
	b.logger.Info("logged in", "user_id", resp.UserID, "device_id", resp.DeviceID)
	return nil
}

// EnableEncryption sets up E2EE with its store under dataDir.
func (b *Bridge) EnableEncryption(ctx context.Context, dataDir string) error {
	mgr, err := SetupCrypto(ctx, b.matrix, b.UserID(), b.matrixCfg.RecoveryKey, dataDir, b.logger)
	if err != nil {
		return err
	}
	b.crypto = mgr
	return nil
}

// Run syncs until ctx is cancelled. It returns nil on cancellation and waits
// for in-flight events to finish.
func (b *Bridge) Run(ctx context.Context) error {
	b.logger.Info("starting matrix bridge",
		"homeserver", b.matrixCfg.Homeserver,
		"user_id", b.UserID(),
		"allowed_rooms", len(b.bridgeCfg.AllowedRooms),
	)

	b.ctx, b.cancel = context.WithCancel(ctx)
	defer b.cancel()

	syncer, ok := b.matrix.Syncer.(*mautrix.DefaultSyncer)
	if !ok {
		return fmt.Errorf("unexpected syncer type: %T", b.matrix.Syncer)
	}
	syncer.OnSync(b.matrix.DontProcessOldEvents)
	syncer.OnEventType(event.EventMessage, b.handleMessageEvent)
	syncer.OnEventType(event.EventReaction, b.handleReactionEvent)
	syncer.OnEventType(event.StateMember, b.handleMemberEvent)

	syncErr := make(chan error, 1)
	go func() {
		syncErr <- b.matrix.SyncWithContext(b.ctx)
	}()

	b.logger.Info("matrix bridge running")

	select {
	case <-ctx.Done():
		b.logger.Info("shutting down matrix bridge")
		b.cancel()
		// No new dispatches once the sync loop has returned.
		<-syncErr
		b.wg.Wait()
		return nil
	case err := <-syncErr:
		b.cancel()
		b.wg.Wait()
		return fmt.Errorf("matrix sync failed: %w", err)
	}
}

// Close releases the filters and the crypto store.
func (b *Bridge) Close() error {
	b.events.Close()
	b.sent.Close()
	if b.crypto != nil {
		return b.crypto.Close()
	}
	return nil
}

// accept applies the checks shared by every inbound event: not our own,
// from an allowed room, not seen before.
func (b *Bridge) accept(evt *event.Event) bool {
	if evt.Sender == b.matrix.UserID {
		return false
	}
	if !b.isRoomAllowed(evt.RoomID.String()) {
		b.logger.Debug("ignoring event from non-allowed room", "room", evt.RoomID.String())
		return false
	}
	if !b.events.FirstSeen(evt.ID.String()) {
		b.logger.Debug("dropping duplicate event", "event_id", evt.ID.String())
		return false
	}
	return true
}

func (b *Bridge) handleMessageEvent(ctx context.Context, evt *event.Event) {
	content, ok := evt.Content.Parsed.(*event.MessageEventContent)
	if !ok || content.MsgType != event.MsgText {
		return
	}
	if !b.accept(evt) {
		return
	}

	in := ParseMessage(b.bridgeCfg.CommandPrefix, evt.RoomID.String(), evt.Sender.String(), evt.ID.String(), content.Body)
	b.logger.Info("received message",
		"room", in.RoomID,
		"sender", in.UserID,
		"kind", in.Kind,
		"content", truncate(content.Body, 50),
	)
	b.dispatch(in)
}

func (b *Bridge) handleReactionEvent(ctx context.Context, evt *event.Event) {
	content := evt.Content.AsReaction()
	if content == nil {
		return
	}
	// Only reactions on our own messages are button presses.
	if !b.sent.Seen(content.RelatesTo.EventID.String()) {
		return
	}
	callback, ok := b.prompts.CallbackFor(normalizeKey(content.RelatesTo.Key))
	if !ok {
		return
	}
	if !b.accept(evt) {
		return
	}

	b.logger.Info("received button press",
		"room", evt.RoomID.String(),
		"sender", evt.Sender.String(),
		"callback", callback,
	)
	b.dispatch(Inbound{
		Kind:     KindCallback,
		RoomID:   evt.RoomID.String(),
		UserID:   evt.Sender.String(),
		EventID:  evt.ID.String(),
		Callback: callback,
	})
}

// handleMemberEvent joins allowed rooms we are invited to.
func (b *Bridge) handleMemberEvent(ctx context.Context, evt *event.Event) {
	if evt.GetStateKey() != b.matrix.UserID.String() {
		return
	}
	member := evt.Content.AsMember()
	if member == nil || member.Membership != event.MembershipInvite {
		return
	}
	if !b.isRoomAllowed(evt.RoomID.String()) {
		b.logger.Info("ignoring invite to non-allowed room", "room", evt.RoomID.String(), "inviter", evt.Sender.String())
		return
	}

	joinCtx, cancel := context.WithTimeout(ctx, networkTimeout)
	defer cancel()
	if _, err := b.matrix.JoinRoomByID(joinCtx, evt.RoomID); err != nil {
		b.logger.Error("failed to join room", "room", evt.RoomID.String(), "error", err)
		return
	}
	b.logger.Info("joined room", "room", evt.RoomID.String(), "inviter", evt.Sender.String())
}

// dispatch runs the event on its own goroutine so the sync loop never blocks.
func (b *Bridge) dispatch(in Inbound) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.dispatcher.Handle(b.ctx, in)
	}()
}

// isRoomAllowed checks if the room is in the allowed list.
func (b *Bridge) isRoomAllowed(roomID string) bool {
	if len(b.bridgeCfg.AllowedRooms) == 0 {
		return true // Allow all if no filter
	}
	return slices.Contains(b.bridgeCfg.AllowedRooms, roomID)
}

// normalizeKey drops emoji variation selectors so "🔄️" matches "🔄".
func normalizeKey(key string) string {
	return strings.ReplaceAll(key, "\ufe0f", "")
}

// truncate shortens a string to the given max rune count, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}
