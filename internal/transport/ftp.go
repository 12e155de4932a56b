package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/jlaffaye/ftp"
	"golang.org/x/time/rate"

	"radarflow/internal/config"
	"radarflow/internal/logging"
	"radarflow/internal/services"
)

// FTPClient implements Client over a small pool of FTP control connections.
// A single ftp.ServerConn is not safe for concurrent use, so each call checks
// a connection out for its duration.
type FTPClient struct {
	addr     string
	user     string
	password string
	timeout  time.Duration
	noEPSV   bool
	logger   *slog.Logger
	limiter  *rate.Limiter

	idle chan *ftp.ServerConn
	mu   sync.Mutex
	open int
	max  int
}

// NewFTPClient builds a client from configuration. poolSize bounds the number
// of simultaneous control connections and is usually the download concurrency.
func NewFTPClient(cfg config.FTP, poolSize int, logger *slog.Logger) *FTPClient {
	if poolSize <= 0 {
		poolSize = 1
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	user := cfg.User
	if user == "" {
		user = "anonymous"
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	return &FTPClient{
		addr:     net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		user:     user,
		password: cfg.Password,
		timeout:  timeout,
		noEPSV:   cfg.DisableEPSV,
		logger:   logging.NewComponentLogger(logger, "ftp"),
		limiter:  rate.NewLimiter(limit, poolSize),
		idle:     make(chan *ftp.ServerConn, poolSize),
		max:      poolSize,
	}
}

// Ping dials and logs in once, returning the connection to the pool.
func (c *FTPClient) Ping(ctx context.Context) error {
	conn, err := c.acquire(ctx)
	if err != nil {
		return err
	}
	if err := conn.NoOp(); err != nil {
		c.discard(conn)
		return services.Wrap(services.ErrTransport, "ftp", "noop", c.addr, err)
	}
	c.release(conn)
	return nil
}

// List implements Client.
func (c *FTPClient) List(ctx context.Context, dir string) ([]string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	conn, err := c.acquire(ctx)
	if err != nil {
		return nil, err
	}
	names, err := conn.NameList(dir)
	if err != nil {
		c.discardOnNetError(conn, err)
		return nil, services.Wrap(services.ErrTransport, "ftp", "list", dir, err)
	}
	c.release(conn)

	out := make([]string, 0, len(names))
	for _, name := range names {
		if base := baseName(name); base != "" {
			out = append(out, base)
		}
	}
	return out, nil
}

// Download implements Client. The file is written to localPath directly;
// callers wanting atomic placement pass a temporary name and rename it.
func (c *FTPClient) Download(ctx context.Context, remotePath, localPath string) (int64, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, err
	}
	conn, err := c.acquire(ctx)
	if err != nil {
		return 0, err
	}

	resp, err := conn.Retr(remotePath)
	if err != nil {
		c.discardOnNetError(conn, err)
		return 0, services.Wrap(services.ErrTransport, "ftp", "retr", remotePath, err)
	}

	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		_ = resp.Close()
		c.release(conn)
		return 0, fmt.Errorf("create download directory: %w", err)
	}
	out, err := os.Create(localPath)
	if err != nil {
		_ = resp.Close()
		c.release(conn)
		return 0, fmt.Errorf("create %s: %w", localPath, err)
	}

	stop := context.AfterFunc(ctx, func() { _ = resp.SetDeadline(time.Now()) })
	written, copyErr := io.Copy(out, resp)
	stop()
	closeErr := resp.Close()
	if err := out.Close(); err != nil && copyErr == nil {
		copyErr = err
	}

	if copyErr != nil || closeErr != nil {
		c.discard(conn)
		if ctx.Err() != nil {
			return written, ctx.Err()
		}
		return written, services.Wrap(services.ErrTransport, "ftp", "retr", remotePath, errors.Join(copyErr, closeErr))
	}
	c.release(conn)
	return written, nil
}

// Close quits every idle connection.
func (c *FTPClient) Close() error {
	for {
		select {
		case conn := <-c.idle:
			c.discard(conn)
		default:
			return nil
		}
	}
}

func (c *FTPClient) acquire(ctx context.Context) (*ftp.ServerConn, error) {
	select {
	case conn := <-c.idle:
		return conn, nil
	default:
	}

	c.mu.Lock()
	if c.open < c.max {
		c.open++
		c.mu.Unlock()
		conn, err := c.dial(ctx)
		if err != nil {
			c.mu.Lock()
			c.open--
			c.mu.Unlock()
			return nil, err
		}
		return conn, nil
	}
	c.mu.Unlock()

	select {
	case conn := <-c.idle:
		return conn, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *FTPClient) dial(ctx context.Context) (*ftp.ServerConn, error) {
	conn, err := ftp.Dial(c.addr,
		ftp.DialWithContext(ctx),
		ftp.DialWithTimeout(c.timeout),
		ftp.DialWithDisabledEPSV(c.noEPSV),
	)
	if err != nil {
		return nil, services.Wrap(services.ErrTransport, "ftp", "dial", c.addr, err)
	}
	if err := conn.Login(c.user, c.password); err != nil {
		_ = conn.Quit()
		return nil, services.Wrap(services.ErrTransport, "ftp", "login", c.addr, err)
	}
	c.logger.Debug("ftp connection opened", logging.String("addr", c.addr))
	return conn, nil
}

func (c *FTPClient) release(conn *ftp.ServerConn) {
	select {
	case c.idle <- conn:
	default:
		c.discard(conn)
	}
}

func (c *FTPClient) discard(conn *ftp.ServerConn) {
	_ = conn.Quit()
	c.mu.Lock()
	if c.open > 0 {
		c.open--
	}
	c.mu.Unlock()
}

// discardOnNetError drops connections whose control channel broke; protocol
// errors such as 550 leave the connection usable.
func (c *FTPClient) discardOnNetError(conn *ftp.ServerConn, err error) {
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, io.EOF) {
		c.discard(conn)
		return
	}
	c.release(conn)
}
