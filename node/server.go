package node

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	logging "github.com/ipfs/go-log/v2"
	"github.com/mdlayher/vsock"
	"golang.org/x/sync/semaphore"

	"github.com/cloudx-io/creditauction/ledger"
	"github.com/cloudx-io/creditauction/receipt"
)

var log = logging.Logger("auction/node")

// Config configures a Server.
type Config struct {
	// MaxWorkers bounds the connections handled at once. Connections over
	// the limit are rejected immediately.
	MaxWorkers int64
	// ReadTimeout bounds how long a client may take to send its request.
	ReadTimeout time.Duration
	// Attestation is an optional enclave attestation of the receipt key.
	Attestation []byte
}

// Server answers one JSON request per connection against a ledger host.
type Server struct {
	host   *ledger.Host
	signer *receipt.Signer
	cfg    Config

	sem    *semaphore.Weighted
	nonces *nonceCache

	mu       sync.Mutex
	listener net.Listener
	closed   bool
}

// New returns a server executing against host and signing receipts with signer.
func New(cfg Config, host *ledger.Host, signer *receipt.Signer) (*Server, error) {
	if cfg.MaxWorkers <= 0 {
		return nil, fmt.Errorf("max workers must be positive, got %d", cfg.MaxWorkers)
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	return &Server{
		host:   host,
		signer: signer,
		cfg:    cfg,
		sem:    semaphore.NewWeighted(cfg.MaxWorkers),
		nonces: newNonceCache(),
	}, nil
}

// Listen opens a listener for tcp://host:port or vsock://port.
func Listen(addr string) (net.Listener, error) {
	u, err := url.Parse(addr)
	if err != nil {
		return nil, fmt.Errorf("parsing listen address: %w", err)
	}
	switch u.Scheme {
	case "tcp":
		return net.Listen("tcp", u.Host)
	case "vsock":
		port, err := strconv.ParseUint(u.Host, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid vsock port %q: %w", u.Host, err)
		}
		l, err := vsock.Listen(uint32(port), nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create vsock listener: %w", err)
		}
		return l, nil
	default:
		return nil, fmt.Errorf("unsupported listen scheme %q", u.Scheme)
	}
}

// Serve accepts connections until Close is called.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return net.ErrClosed
	}
	s.listener = l
	s.mu.Unlock()

	log.Infof("listening on %s with %d workers", l.Addr(), s.cfg.MaxWorkers)
	for {
		conn, err := l.Accept()
		if err != nil {
			if s.isClosed() {
				return nil
			}
			log.Errorf("accepting connection: %v", err)
			continue
		}

		if !s.sem.TryAcquire(1) {
			log.Warnf("no workers available, rejecting %s", conn.RemoteAddr())
			s.reject(conn)
			continue
		}
		go func(c net.Conn) {
			defer s.sem.Release(1)
			s.handleConn(ctx, c)
		}(conn)
	}
}

// Close stops accepting connections and waits up to ctx for in-flight
// requests to finish.
func (s *Server) Close(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	l := s.listener
	s.mu.Unlock()

	var err error
	if l != nil {
		err = l.Close()
	}
	if acqErr := s.sem.Acquire(ctx, s.cfg.MaxWorkers); acqErr != nil {
		return fmt.Errorf("waiting for workers: %w", acqErr)
	}
	s.sem.Release(s.cfg.MaxWorkers)
	return err
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Server) reject(conn net.Conn) {
	resp := Response{Type: ResponseError, RequestID: uuid.NewString(), Code: "busy", Message: "no workers available"}
	if err := json.NewEncoder(conn).Encode(resp); err != nil {
		log.Debugf("writing rejection: %v", err)
	}
	if err := conn.Close(); err != nil {
		log.Errorf("closing rejected connection: %v", err)
	}
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("panic recovered handling %s: %v", conn.RemoteAddr(), r)
		}
		if err := conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			log.Errorf("closing connection: %v", err)
		}
	}()

	if err := conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout)); err != nil {
		log.Debugf("setting read deadline for %s: %v", conn.RemoteAddr(), err)
	}

	var (
		req  Request
		resp Response
	)
	if err := json.NewDecoder(bufio.NewReader(conn)).Decode(&req); err != nil {
		resp = errorResponse(uuid.NewString(), fmt.Errorf("%w: decoding request: %v", ErrBadRequest, err))
	} else {
		resp = s.Handle(ctx, req)
	}

	if err := json.NewEncoder(conn).Encode(resp); err != nil {
		log.Errorf("request %s: writing response: %v", resp.RequestID, err)
	}
}

// Handle routes a single request.
func (s *Server) Handle(ctx context.Context, req Request) Response {
	id := uuid.NewString()
	start := time.Now()

	resp, err := s.route(ctx, req)
	if err != nil {
		log.Warnf("request %s %s failed: %v", id, req.Type, err)
		return errorResponse(id, err)
	}
	resp.RequestID = id
	log.Debugf("request %s %s handled in %s", id, req.Type, time.Since(start))
	return resp
}

func (s *Server) route(ctx context.Context, req Request) (Response, error) {
	switch req.Type {
	case RequestPing:
		return Response{Type: ResponsePong, Message: "auction node is healthy"}, nil
	case RequestKey:
		return s.key()
	case RequestInstantiate:
		call, sender, err := s.verifyCall(req, time.Now())
		if err != nil {
			return Response{}, err
		}
		if call.Code == "" {
			return Response{}, fmt.Errorf("%w: instantiate needs code", ErrBadRequest)
		}
		res, err := s.host.Instantiate(ctx, sender, call.Code, call.Msg)
		if err != nil {
			return Response{}, err
		}
		return Response{
			Type:     ResponseResult,
			TxID:     res.ID,
			Height:   res.Height,
			Contract: res.Contract,
			Answer:   string(res.Data),
		}, nil
	case RequestExecute:
		call, sender, err := s.verifyCall(req, time.Now())
		if err != nil {
			return Response{}, err
		}
		if call.Contract == "" {
			return Response{}, fmt.Errorf("%w: execute needs contract", ErrBadRequest)
		}
		res, err := s.host.Execute(ctx, sender, call.Contract, call.Msg)
		if err != nil {
			return Response{}, err
		}
		signed, err := s.signer.Sign(receipt.FromTx(res))
		if err != nil {
			return Response{}, fmt.Errorf("signing receipt for %s: %w", res.ID, err)
		}
		return Response{
			Type:     ResponseResult,
			TxID:     res.ID,
			Height:   res.Height,
			Contract: res.Contract,
			Answer:   string(res.Data),
			Receipt:  base64.StdEncoding.EncodeToString(signed),
		}, nil
	case RequestQuery:
		if req.Contract == "" {
			return Response{}, fmt.Errorf("%w: query needs contract", ErrBadRequest)
		}
		data, err := s.host.Query(ctx, req.Contract, req.Msg)
		if err != nil {
			return Response{}, err
		}
		return Response{Type: ResponseResult, Contract: req.Contract, Answer: string(data)}, nil
	case RequestTx:
		rec, err := s.host.Tx(ctx, req.TxID)
		if err != nil {
			return Response{}, err
		}
		return Response{Type: ResponseResult, TxID: rec.ID, Height: rec.Height, Tx: rec}, nil
	default:
		return Response{}, fmt.Errorf("%w: %q", ErrUnknownRequest, req.Type)
	}
}

func (s *Server) key() (Response, error) {
	pub, err := receipt.PublicKeyPEM(s.signer.PublicKey())
	if err != nil {
		return Response{}, err
	}
	resp := Response{Type: ResponseResult, PublicKey: pub, KeyID: s.signer.KeyID()}
	if len(s.cfg.Attestation) > 0 {
		resp.Attestation = base64.StdEncoding.EncodeToString(s.cfg.Attestation)
	}
	return resp, nil
}

func errorResponse(id string, err error) Response {
	return Response{
		Type:      ResponseError,
		RequestID: id,
		Code:      errorCode(err),
		Message:   err.Error(),
	}
}
