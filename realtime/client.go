package realtime

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Alwanly/cloud-sdk-go/pkg/logger"
	"github.com/Alwanly/cloud-sdk-go/pkg/retry"
)

// State is the connection lifecycle state of a Client.
type State string

const (
	StateStopped      State = "Stopped"
	StateConnecting   State = "Connecting"
	StateConnected    State = "Connected"
	StateRecovering   State = "Recovering"
	StateDisconnected State = "Disconnected"
)

const (
	startTimeout     = 30 * time.Second
	ackTimeout       = 30 * time.Second
	recoveryTimeout  = 30 * time.Second
	recoveryInterval = time.Second

	// 1008 from the service means the connection was rejected for policy
	// reasons; recovery would be rejected too.
	closeCodePolicyViolation = 1008

	queryConnectionID      = "awps_connection_id"
	queryReconnectionToken = "awps_reconnection_token"
)

var (
	// ErrNotConnected is returned by acked operations when the client has
	// no live connection.
	ErrNotConnected = errors.New("client is not connected")

	// ErrConnectionLost fails pending acked operations when the
	// connection drops without recovery.
	ErrConnectionLost = errors.New("connection lost before the operation was acknowledged")

	// ErrAckTimeout means the service never acknowledged the operation.
	ErrAckTimeout = errors.New("timed out waiting for acknowledgement")
)

// URLProvider supplies the websocket endpoint, typically with a fresh access
// token in the query string. Called on every connect and reconnect.
type URLProvider func(ctx context.Context) (string, error)

// Options configures a Client. The zero value gives the reliable protocol
// with automatic reconnect and group rejoin.
type Options struct {
	// Protocol defaults to ProtocolReliableJSON.
	Protocol Protocol

	// ReconnectRetry shapes the delays between reconnect attempts.
	ReconnectRetry retry.Policy

	// DisableAutoReconnect turns off reconnection after an unrecoverable
	// drop; the client goes straight to Disconnected.
	DisableAutoReconnect bool

	// DisableAutoRejoinGroups turns off rejoining groups after a
	// reconnect replaced the session.
	DisableAutoRejoinGroups bool

	Logger *logger.CanonicalLogger

	// Handlers fire on the read loop goroutine; keep them fast.
	OnConnected     func(connectionID string)
	OnDisconnected  func(connectionID string, reason string)
	OnGroupMessage  func(msg GroupMessage)
	OnServerMessage func(msg ServerMessage)
	OnStopped       func()
}

type ackResult struct {
	err error
}

// Client maintains one logical connection to the service. A logical
// connection survives network drops when the reliable protocol is in use:
// the client first tries to recover the same session, then falls back to a
// full reconnect.
type Client struct {
	getURL URLProvider
	opts   Options
	logger *logger.CanonicalLogger
	dialer *websocket.Dialer

	nextAckID uint64

	mu                sync.Mutex
	state             State
	conn              *websocket.Conn
	connectionID      string
	reconnectionToken string
	connectURL        string
	groups            map[string]bool
	acks              map[uint64]chan ackResult
	connectedCh       chan struct{}
	stopRequested     bool

	writeMu sync.Mutex

	seq        sequenceTracker
	loopCtx    context.Context
	loopCancel context.CancelFunc
}

// NewClient builds a stopped client. Call Start to connect.
func NewClient(getURL URLProvider, opts Options) (*Client, error) {
	if getURL == nil {
		return nil, errors.New("realtime: url provider is required")
	}
	if opts.Protocol.Name == "" {
		opts.Protocol = ProtocolReliableJSON
	}
	if opts.ReconnectRetry.Total == 0 {
		opts.ReconnectRetry = retry.Policy{
			Total:         3,
			BackoffFactor: 800 * time.Millisecond,
			BackoffMax:    120 * time.Second,
			Mode:          retry.ModeExponential,
		}
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	return &Client{
		getURL: getURL,
		opts:   opts,
		logger: opts.Logger.Component("realtime"),
		dialer: &websocket.Dialer{
			HandshakeTimeout: startTimeout,
			Subprotocols:     []string{opts.Protocol.Name},
		},
		state:  StateStopped,
		groups: make(map[string]bool),
		acks:   make(map[uint64]chan ackResult),
	}, nil
}

// State returns the current lifecycle state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ConnectionID returns the service-assigned id of the current logical
// connection, empty before the first connect completes.
func (c *Client) ConnectionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectionID
}

// Start connects and waits for the service to confirm the connection. It is
// an error to start a client that is not stopped.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateStopped {
		c.mu.Unlock()
		return fmt.Errorf("client is %s, must be stopped before starting", c.state)
	}
	c.state = StateConnecting
	c.stopRequested = false
	c.connectedCh = make(chan struct{})
	c.loopCtx, c.loopCancel = context.WithCancel(context.Background())
	c.mu.Unlock()

	urlStr, err := c.getURL(ctx)
	if err != nil {
		c.loopCancel()
		c.setState(StateStopped)
		return fmt.Errorf("failed to resolve endpoint url: %w", err)
	}

	c.mu.Lock()
	c.connectURL = urlStr
	c.mu.Unlock()
	c.seq.reset()

	if err := c.dial(ctx, urlStr); err != nil {
		c.loopCancel()
		c.setState(StateStopped)
		return err
	}
	if c.opts.Protocol.Reliable {
		go c.sequenceAckLoop(c.loopCtx)
	}

	select {
	case <-c.connectedCh:
		return nil
	case <-ctx.Done():
		c.Stop()
		return ctx.Err()
	case <-time.After(startTimeout):
		c.Stop()
		return errors.New("timed out waiting for the connected handshake")
	}
}

// Stop closes the connection and fails pending operations. Safe to call in
// any state.
func (c *Client) Stop() {
	c.mu.Lock()
	if c.state == StateStopped {
		c.mu.Unlock()
		return
	}
	c.stopRequested = true
	conn := c.conn
	cancel := c.loopCancel
	c.mu.Unlock()

	if conn != nil {
		c.writeMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		_ = conn.Close()
	}
	if cancel != nil {
		cancel()
	}
	c.failPendingAcks(ErrConnectionLost)
	c.setState(StateStopped)
	if c.opts.OnStopped != nil {
		c.opts.OnStopped()
	}
}

// JoinGroup subscribes to a group and waits for the service ack. Joined
// groups rejoin automatically after a reconnect.
func (c *Client) JoinGroup(ctx context.Context, group string) error {
	ackID := atomic.AddUint64(&c.nextAckID, 1)
	err := c.sendAcked(ctx, wireMessage{Type: messageTypeJoinGroup, Group: group, AckID: ackID})
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.groups[group] = true
	c.mu.Unlock()
	return nil
}

// LeaveGroup unsubscribes from a group and waits for the service ack.
func (c *Client) LeaveGroup(ctx context.Context, group string) error {
	ackID := atomic.AddUint64(&c.nextAckID, 1)
	err := c.sendAcked(ctx, wireMessage{Type: messageTypeLeaveGroup, Group: group, AckID: ackID})
	if err != nil {
		return err
	}
	c.mu.Lock()
	delete(c.groups, group)
	c.mu.Unlock()
	return nil
}

// SendToGroupOptions tweaks SendToGroup.
type SendToGroupOptions struct {
	// DataType defaults to DataTypeJSON.
	DataType DataType
	// NoEcho keeps the message from being delivered back to this client.
	NoEcho bool
}

// SendToGroup publishes data to a group and waits for the service ack.
func (c *Client) SendToGroup(ctx context.Context, group string, data interface{}, opts *SendToGroupOptions) error {
	if opts == nil {
		opts = &SendToGroupOptions{}
	}
	dt := opts.DataType
	if dt == "" {
		dt = DataTypeJSON
	}
	payload, err := encodeData(data, dt)
	if err != nil {
		return err
	}
	ackID := atomic.AddUint64(&c.nextAckID, 1)
	return c.sendAcked(ctx, wireMessage{
		Type:     messageTypeSendToGroup,
		Group:    group,
		AckID:    ackID,
		NoEcho:   opts.NoEcho,
		Data:     payload,
		DataType: dt,
	})
}

// SendEventOptions tweaks SendEvent.
type SendEventOptions struct {
	DataType DataType
}

// SendEvent sends a custom event to the service and waits for the ack.
func (c *Client) SendEvent(ctx context.Context, event string, data interface{}, opts *SendEventOptions) error {
	if opts == nil {
		opts = &SendEventOptions{}
	}
	dt := opts.DataType
	if dt == "" {
		dt = DataTypeJSON
	}
	payload, err := encodeData(data, dt)
	if err != nil {
		return err
	}
	ackID := atomic.AddUint64(&c.nextAckID, 1)
	return c.sendAcked(ctx, wireMessage{
		Type:     messageTypeEvent,
		Event:    event,
		AckID:    ackID,
		Data:     payload,
		DataType: dt,
	})
}

func encodeData(data interface{}, dt DataType) (json.RawMessage, error) {
	switch dt {
	case DataTypeJSON:
		b, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to encode json payload: %w", err)
		}
		return b, nil
	case DataTypeText:
		s, ok := data.(string)
		if !ok {
			return nil, fmt.Errorf("text payload must be a string, got %T", data)
		}
		return json.Marshal(s)
	case DataTypeBinary:
		b, ok := data.([]byte)
		if !ok {
			return nil, fmt.Errorf("binary payload must be []byte, got %T", data)
		}
		return json.Marshal(base64.StdEncoding.EncodeToString(b))
	default:
		return nil, fmt.Errorf("unsupported data type %q", dt)
	}
}

// sendAcked writes a message carrying an ack id and blocks until the service
// acknowledges it. A "Duplicate" rejection counts as success: the service
// already processed an earlier delivery of this ack id.
func (c *Client) sendAcked(ctx context.Context, msg wireMessage) error {
	ch := make(chan ackResult, 1)
	c.mu.Lock()
	if c.state != StateConnected && c.state != StateRecovering {
		c.mu.Unlock()
		return ErrNotConnected
	}
	c.acks[msg.AckID] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.acks, msg.AckID)
		c.mu.Unlock()
	}()

	if err := c.writeMessage(msg); err != nil {
		return err
	}

	select {
	case res := <-ch:
		return res.err
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(ackTimeout):
		return ErrAckTimeout
	}
}

func (c *Client) writeMessage(msg wireMessage) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteJSON(msg)
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// dial opens the socket and starts the read loop for it.
func (c *Client) dial(ctx context.Context, urlStr string) error {
	conn, _, err := c.dialer.DialContext(ctx, urlStr, nil)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	go c.readLoop(conn)
	return nil
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.handleClose(err)
			return
		}
		var msg wireMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.WithError(err).Warn("dropping unparseable frame")
			continue
		}
		c.handleMessage(msg)
	}
}

func (c *Client) handleMessage(msg wireMessage) {
	switch msg.Type {
	case messageTypeSystem:
		c.handleSystem(msg)
	case messageTypeAck:
		c.handleAck(msg)
	case messageTypeData:
		c.handleData(msg)
	default:
		c.logger.Warn("unknown message type", logger.String("type", msg.Type))
	}
}

func (c *Client) handleSystem(msg wireMessage) {
	switch msg.Event {
	case systemEventConnected:
		c.mu.Lock()
		recovered := c.connectionID == msg.ConnectionID && msg.ConnectionID != ""
		c.connectionID = msg.ConnectionID
		c.reconnectionToken = msg.ReconnectionToken
		c.state = StateConnected
		ch := c.connectedCh
		c.mu.Unlock()

		c.logger.Info("connected",
			logger.String(logger.FieldConnectionID, msg.ConnectionID),
			logger.Bool("recovered", recovered))
		select {
		case <-ch:
		default:
			close(ch)
		}
		if c.opts.OnConnected != nil {
			c.opts.OnConnected(msg.ConnectionID)
		}
	case systemEventDisconnected:
		c.logger.Warn("service disconnect", logger.String("reason", msg.Message))
		if c.opts.OnDisconnected != nil {
			c.opts.OnDisconnected(c.ConnectionID(), msg.Message)
		}
	}
}

func (c *Client) handleAck(msg wireMessage) {
	var err error
	if msg.Success == nil || !*msg.Success {
		if msg.Error != nil && msg.Error.Name == ackErrorDuplicate {
			// already processed, the send succeeded
		} else if msg.Error != nil {
			err = &AckError{AckID: msg.AckID, Name: msg.Error.Name, Msg: msg.Error.Message}
		} else {
			err = &AckError{AckID: msg.AckID, Name: "Unknown", Msg: "no error detail"}
		}
	}

	c.mu.Lock()
	ch, ok := c.acks[msg.AckID]
	c.mu.Unlock()
	if !ok {
		return
	}
	select {
	case ch <- ackResult{err: err}:
	default:
	}
}

func (c *Client) handleData(msg wireMessage) {
	if c.opts.Protocol.Reliable && msg.SequenceID > 0 {
		if !c.seq.tryUpdate(msg.SequenceID) {
			c.logger.Debug("dropping duplicate message",
				logger.Uint64(logger.FieldSequenceID, msg.SequenceID))
			return
		}
	}
	switch msg.From {
	case "group":
		if c.opts.OnGroupMessage != nil {
			c.opts.OnGroupMessage(GroupMessage{
				Group:      msg.Group,
				SequenceID: msg.SequenceID,
				Data:       msg.Data,
				DataType:   msg.DataType,
			})
		}
	case "server":
		if c.opts.OnServerMessage != nil {
			c.opts.OnServerMessage(ServerMessage{
				SequenceID: msg.SequenceID,
				Data:       msg.Data,
				DataType:   msg.DataType,
			})
		}
	}
}

// sequenceAckLoop tells the service how far this client has read, once a
// second, so the replay buffer can be trimmed.
func (c *Client) sequenceAckLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if id, ok := c.seq.tryGet(); ok {
				if err := c.writeMessage(wireMessage{Type: messageTypeSequenceAck, SequenceID: id}); err != nil {
					c.logger.WithError(err).Debug("failed to send sequence ack")
				}
			}
		}
	}
}

// handleClose runs when the read loop exits. Recovery is tried first when
// the protocol supports it and the close was not a policy rejection; after
// that, a full reconnect unless disabled.
func (c *Client) handleClose(err error) {
	c.mu.Lock()
	if c.stopRequested || c.state == StateStopped {
		c.mu.Unlock()
		return
	}
	connectionID := c.connectionID
	token := c.reconnectionToken
	baseURL := c.connectURL
	c.mu.Unlock()

	c.logger.WithError(err).Warn("connection dropped",
		logger.String(logger.FieldConnectionID, connectionID))

	closeCode := websocket.CloseAbnormalClosure
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		closeCode = closeErr.Code
	}

	canRecover := c.opts.Protocol.Reliable &&
		closeCode != closeCodePolicyViolation &&
		token != "" && connectionID != ""

	if canRecover {
		c.setState(StateRecovering)
		if c.recover(baseURL, connectionID, token) {
			return
		}
		c.logger.Warn("recovery window expired, falling back to reconnect")
	}

	// The session is gone; nothing pending will ever be acked.
	c.failPendingAcks(ErrConnectionLost)

	if c.opts.DisableAutoReconnect {
		c.setState(StateDisconnected)
		if c.opts.OnDisconnected != nil {
			c.opts.OnDisconnected(connectionID, "connection dropped")
		}
		return
	}
	c.reconnect()
}

// recover redials the same session using the reconnection token. The service
// replays missed messages, so sequence state is kept.
func (c *Client) recover(baseURL, connectionID, token string) bool {
	log := c.logger.WithConnectionID(connectionID)
	recoveryURL, err := buildRecoveryURL(baseURL, connectionID, token)
	if err != nil {
		log.WithError(err).Warn("cannot build recovery url")
		return false
	}

	deadline := time.Now().Add(recoveryTimeout)
	for time.Now().Before(deadline) {
		c.mu.Lock()
		stopped := c.stopRequested
		c.mu.Unlock()
		if stopped {
			return true
		}

		ctx, cancel := context.WithTimeout(context.Background(), recoveryInterval*5)
		err := c.dial(ctx, recoveryURL)
		cancel()
		if err == nil {
			log.Info("connection recovered")
			return true
		}
		log.WithError(err).Debug("recovery attempt failed")
		time.Sleep(recoveryInterval)
	}
	return false
}

// reconnect builds a new session. Sequence state resets and joined groups
// are rejoined once connected.
func (c *Client) reconnect() {
	c.setState(StateConnecting)
	policy := c.opts.ReconnectRetry

	for attempt := 0; ; attempt++ {
		c.mu.Lock()
		stopped := c.stopRequested
		c.mu.Unlock()
		if stopped {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), startTimeout)
		urlStr, err := c.getURL(ctx)
		if err == nil {
			c.mu.Lock()
			c.connectURL = urlStr
			c.connectionID = ""
			c.reconnectionToken = ""
			c.connectedCh = make(chan struct{})
			c.mu.Unlock()
			c.seq.reset()
			err = c.dial(ctx, urlStr)
		}
		cancel()

		if err == nil {
			go c.rejoinGroups()
			return
		}

		c.logger.WithError(err).Warn("reconnect attempt failed",
			logger.Int(logger.FieldRetryCount, attempt+1))
		delay, ok := policy.NextRetryDelay(attempt + 1)
		if !ok {
			c.setState(StateDisconnected)
			if c.opts.OnDisconnected != nil {
				c.opts.OnDisconnected("", "reconnect attempts exhausted")
			}
			return
		}
		time.Sleep(delay)
	}
}

// rejoinGroups restores group membership after a new session replaced the
// old one.
func (c *Client) rejoinGroups() {
	c.mu.Lock()
	ch := c.connectedCh
	c.mu.Unlock()

	select {
	case <-ch:
	case <-time.After(startTimeout):
		return
	}

	if c.opts.DisableAutoRejoinGroups {
		return
	}

	c.mu.Lock()
	groups := make([]string, 0, len(c.groups))
	for g := range c.groups {
		groups = append(groups, g)
	}
	c.mu.Unlock()

	for _, g := range groups {
		ctx, cancel := context.WithTimeout(context.Background(), ackTimeout)
		if err := c.JoinGroup(ctx, g); err != nil {
			c.logger.WithError(err).Warn("failed to rejoin group",
				logger.String(logger.FieldGroup, g))
		}
		cancel()
	}
}

func (c *Client) failPendingAcks(err error) {
	c.mu.Lock()
	acks := c.acks
	c.acks = make(map[uint64]chan ackResult)
	c.mu.Unlock()
	for _, ch := range acks {
		select {
		case ch <- ackResult{err: err}:
		default:
		}
	}
}

func buildRecoveryURL(base, connectionID, token string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set(queryConnectionID, connectionID)
	q.Set(queryReconnectionToken, token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
