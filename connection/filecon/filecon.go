// Package filecon implements the shared-file reference transport: each
// participant owns a plain-file inbox, senders append encoded envelope
// records to the recipient's inbox under an advisory file lock, and a
// change watcher drains the inbox into the local receive queue.
//
// The inbox is a single-shot mailbox, not an append-only log: draining
// reads the whole file and truncates it inside one lock-protected critical
// section. The lock is advisory, so the read-and-truncate atomicity only
// binds cooperating processes.
package filecon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/agentwire-dev/agentwire/connection"
	"github.com/agentwire-dev/agentwire/envelope"
	"github.com/agentwire-dev/agentwire/internal/filelock"
	"github.com/agentwire-dev/agentwire/pkg/observability"
)

// TransportName is the factory key this transport registers under.
const TransportName = "file"

const (
	defaultInputFile    = "./input_file"
	defaultOutputFile   = "./output_file"
	defaultQueueSize    = 100
	defaultPollInterval = 100 * time.Millisecond
)

func init() {
	connection.Register(TransportName, func(address string, cfg connection.Config) (connection.Connection, error) {
		return New(address, cfg)
	})
}

// Connection is a file-backed transport endpoint.
type Connection struct {
	id      string
	address string

	inputPath  string
	outputPath string
	// namespaceDir, when set, derives per-address inbox paths; Send then
	// resolves the destination file from the envelope's 'to' address.
	namespaceDir string

	queueSize    int
	forcePoll    bool
	pollInterval time.Duration
	limiter      *rate.Limiter

	mu     sync.Mutex
	state  connection.State
	input  *os.File
	queue  chan *envelope.Envelope
	closed chan struct{}
	watch  watcher
}

// New builds a file connection for the given local address.
//
// Recognized options: input_file and output_file for the direct variant
// (defaults ./input_file and ./output_file), or namespace_dir for the
// per-address variant, which derives input_file = <dir>/<address>.in and
// output_file = <dir>/<address>.out. Optional: queue_size, poll_interval
// (duration string), force_poll, send_rate (envelopes per second, 0 =
// unlimited).
func New(address string, cfg connection.Config) (*Connection, error) {
	if address == "" {
		return nil, errors.New("filecon: address must be non-empty")
	}

	c := &Connection{
		id:           uuid.New().String(),
		address:      address,
		namespaceDir: cfg.GetString("namespace_dir", ""),
		queueSize:    cfg.GetInt("queue_size", defaultQueueSize),
		forcePoll:    cfg.GetBool("force_poll", false),
		pollInterval: defaultPollInterval,
		state:        connection.Disconnected,
	}

	if s := cfg.GetString("poll_interval", ""); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil {
			return nil, fmt.Errorf("filecon: bad poll_interval: %w", err)
		}
		c.pollInterval = d
	}
	if r := cfg.GetInt("send_rate", 0); r > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(r), r)
	}

	if c.namespaceDir != "" {
		c.inputPath = filepath.Join(c.namespaceDir, address+".in")
		c.outputPath = filepath.Join(c.namespaceDir, address+".out")
	} else {
		c.inputPath = cfg.GetString("input_file", defaultInputFile)
		c.outputPath = cfg.GetString("output_file", defaultOutputFile)
	}

	return c, nil
}

// ID returns the unique connection identifier.
func (c *Connection) ID() string { return c.id }

// Address returns the local address this connection serves.
func (c *Connection) Address() string { return c.address }

// State returns the current lifecycle state.
func (c *Connection) State() connection.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// InputPath returns the path of the inbox file.
func (c *Connection) InputPath() string { return c.inputPath }

// Connect opens or creates the inbox file, starts the change watcher and
// creates the receive queue. The queue is created here rather than at
// construction time so it is bound to the scheduler active at connect
// time. Calling Connect on a connected endpoint is a no-op.
func (c *Connection) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state == connection.Connected {
		c.mu.Unlock()
		return nil
	}
	c.state = connection.Connecting

	if c.namespaceDir != "" {
		if err := os.MkdirAll(c.namespaceDir, 0o700); err != nil {
			c.state = connection.Disconnected
			c.mu.Unlock()
			return fmt.Errorf("filecon: create namespace dir: %w", err)
		}
	}

	input, err := os.OpenFile(c.inputPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		c.state = connection.Disconnected
		c.mu.Unlock()
		return fmt.Errorf("filecon: open inbox: %w", err)
	}
	c.input = input
	c.queue = make(chan *envelope.Envelope, c.queueSize)
	c.closed = make(chan struct{})

	c.watch = newWatcher(c.forcePoll, c.pollInterval)
	if err := c.watch.start(c.inputPath, func() { c.readEnvelopes() }); err != nil {
		_ = input.Close()
		c.input = nil
		c.state = connection.Disconnected
		c.mu.Unlock()
		return fmt.Errorf("filecon: start watcher: %w", err)
	}

	c.state = connection.Connected
	c.mu.Unlock()

	// Drain records that were appended before we connected.
	c.readEnvelopes()
	return nil
}

// Disconnect stops the watcher, signals end-of-stream to blocked receivers
// and closes the inbox handle.
func (c *Connection) Disconnect() error {
	c.mu.Lock()
	if c.state != connection.Connected {
		c.mu.Unlock()
		return nil
	}
	c.state = connection.Disconnecting

	c.watch.stop()
	close(c.closed)
	err := c.input.Close()
	c.input = nil

	c.state = connection.Disconnected
	c.mu.Unlock()
	return err
}

// Send appends one encoded envelope record to the destination inbox file.
// In namespace mode the destination is derived from env.To; otherwise the
// configured output file is used. A missing destination file is created
// with a warning rather than treated as an error, so startup ordering races
// between the two sides do not fail sends.
func (c *Connection) Send(env *envelope.Envelope) error {
	c.mu.Lock()
	state := c.state
	c.mu.Unlock()
	if state != connection.Connected {
		return connection.ErrNotConnected
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(context.Background()); err != nil {
			return err
		}
	}

	target := c.outputPath
	if c.namespaceDir != "" {
		target = filepath.Join(c.namespaceDir, env.To+".in")
	}

	if _, err := os.Stat(target); errors.Is(err, os.ErrNotExist) {
		log.Printf("WARNING: destination file %s does not exist yet (counterparty never connected), creating it", target)
	}

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("filecon: open destination: %w", err)
	}
	defer func() { _ = out.Close() }()

	if err := filelock.Lock(out); err != nil {
		return err
	}
	defer func() { _ = filelock.Unlock(out) }()

	record := append(envelope.Encode(env, envelope.DefaultSeparator), '\n')
	if _, err := out.Write(record); err != nil {
		return fmt.Errorf("filecon: append envelope: %w", err)
	}
	if err := out.Sync(); err != nil {
		return fmt.Errorf("filecon: flush destination: %w", err)
	}

	observability.EnvelopesSent.WithLabelValues(TransportName).Inc()
	return nil
}

// Receive blocks until an envelope is queued or the connection is
// disconnected. After disconnect it drains any remaining envelopes, then
// returns (nil, nil) instead of blocking or failing.
func (c *Connection) Receive(ctx context.Context) (*envelope.Envelope, error) {
	c.mu.Lock()
	queue, closed := c.queue, c.closed
	c.mu.Unlock()

	if queue == nil {
		return nil, connection.ErrNotConnected
	}

	select {
	case env := <-queue:
		return env, nil
	default:
	}

	select {
	case env := <-queue:
		return env, nil
	case <-closed:
		select {
		case env := <-queue:
			return env, nil
		default:
			return nil, nil
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// readEnvelopes drains the inbox file. The read and the truncate happen
// inside one lock acquisition so records appended concurrently are either
// fully read now or fully preserved for the next drain. Individual records
// that fail to decode are logged and dropped; they never abort the batch.
func (c *Connection) readEnvelopes() {
	c.mu.Lock()
	if c.state != connection.Connected {
		c.mu.Unlock()
		return
	}
	input := c.input
	queue, closed := c.queue, c.closed
	c.mu.Unlock()

	data, err := drainFile(input)
	if err != nil {
		log.Printf("ERROR: drain inbox %s: %v", c.inputPath, err)
		return
	}
	if len(data) == 0 {
		return
	}

	for _, record := range envelope.SplitRecords(data, envelope.DefaultSeparator) {
		env, err := envelope.Decode(record, envelope.DefaultSeparator)
		if err != nil {
			log.Printf("ERROR: dropping malformed envelope record %q: %v", record, err)
			observability.EnvelopesDropped.WithLabelValues(TransportName).Inc()
			continue
		}
		select {
		case queue <- env:
			observability.EnvelopesReceived.WithLabelValues(TransportName).Inc()
		case <-closed:
			return
		}
	}
}

// drainFile reads the whole file and, if it held any bytes, truncates it to
// zero length and seeks back to the start, all under the exclusive lock.
func drainFile(f *os.File) ([]byte, error) {
	if err := filelock.Lock(f); err != nil {
		return nil, err
	}
	defer func() { _ = filelock.Unlock(f) }()

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}
	if err := f.Truncate(0); err != nil {
		return nil, err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	return data, nil
}
