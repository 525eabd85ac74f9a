package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/dmitrijs2005/tripkeeper/internal/client/models"
	"github.com/dmitrijs2005/tripkeeper/internal/common"
	"github.com/dmitrijs2005/tripkeeper/internal/logging"
	"github.com/dmitrijs2005/tripkeeper/internal/netx"
	"github.com/dmitrijs2005/tripkeeper/internal/rpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const defaultTimeout = 10 * time.Second

// Options tune a GRPCClient. Zero values select defaults.
type Options struct {
	// Timeout bounds every remote call, uploads included.
	Timeout time.Duration
	// HTTPClient performs presigned uploads.
	HTTPClient *http.Client
	// DialOptions are appended to the defaults (insecure transport,
	// access token interceptor). Tests use them to dial a bufconn listener.
	DialOptions []grpc.DialOption
}

// GRPCClient implements Remotes, BlobStore and Connectivity.
type GRPCClient struct {
	endpointURL string
	conn        *grpc.ClientConn
	client      *rpc.RecordsClient
	http        *http.Client
	timeout     time.Duration
	log         logging.Logger

	mu          sync.RWMutex
	accessToken string
}

func withAccessToken(ctx context.Context, token string) context.Context {
	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	if md == nil {
		md = metadata.MD{}
	}
	md.Delete(common.AccessTokenHeaderName)
	md.Set(common.AccessTokenHeaderName, token)

	return metadata.NewOutgoingContext(ctx, md)
}

func (s *GRPCClient) accessTokenInterceptor(
	ctx context.Context,
	method string,
	req, reply any,
	cc *grpc.ClientConn,
	invoker grpc.UnaryInvoker,
	opts ...grpc.CallOption,
) error {
	if token := s.AccessToken(); token != "" {
		ctx = withAccessToken(ctx, token)
	}
	return invoker(ctx, method, req, reply, cc, opts...)
}

// NewGRPCClient creates a client for endpointURL. The connection is
// established lazily on the first call.
func NewGRPCClient(endpointURL, accessToken string, opts Options, log logging.Logger) (*GRPCClient, error) {
	if log == nil {
		log = logging.Nop()
	}
	c := &GRPCClient{
		endpointURL: endpointURL,
		accessToken: accessToken,
		http:        opts.HTTPClient,
		timeout:     opts.Timeout,
		log:         log.With("module", "grpc_client"),
	}
	if c.timeout <= 0 {
		c.timeout = defaultTimeout
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: c.timeout}
	}

	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(c.accessTokenInterceptor),
	}, opts.DialOptions...)

	conn, err := grpc.NewClient(endpointURL, dialOpts...)
	if err != nil {
		return nil, err
	}
	c.conn = conn
	c.client = rpc.NewRecordsClient(conn)
	return c, nil
}

func (s *GRPCClient) Close() error {
	return s.conn.Close()
}

// AccessToken returns the token sent with every call.
func (s *GRPCClient) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accessToken
}

// SetAccessToken replaces the token sent with subsequent calls.
func (s *GRPCClient) SetAccessToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accessToken = token
}

func (s *GRPCClient) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	return s.mapError(s.client.Ping(ctx))
}

// Online reports whether Ping succeeds.
func (s *GRPCClient) Online(ctx context.Context) bool {
	return s.Ping(ctx) == nil
}

// Remote returns the adapter for collection c.
func (s *GRPCClient) Remote(c models.Collection) RemoteAdapter {
	return &collectionRemote{client: s, collection: string(c)}
}

type collectionRemote struct {
	client     *GRPCClient
	collection string
}

func (r *collectionRemote) Create(ctx context.Context, idempotencyKey string, payload map[string]any) (string, error) {
	s := r.client
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := rpc.CreateRequest{Collection: r.collection, Payload: payload}.Message()
	if err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrValidation, err)
	}
	if idempotencyKey != "" {
		ctx = rpc.WithIdempotencyKey(ctx, idempotencyKey)
	}

	resp, err := s.client.CreateRecord(ctx, req)
	if err != nil {
		return "", s.mapError(err)
	}
	return rpc.ParseID(resp)
}

func (r *collectionRemote) Update(ctx context.Context, remoteID string, payload map[string]any) error {
	s := r.client
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := rpc.UpdateRequest{Collection: r.collection, ID: remoteID, Payload: payload}.Message()
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrValidation, err)
	}
	return s.mapError(s.client.UpdateRecord(ctx, req))
}

func (r *collectionRemote) Delete(ctx context.Context, remoteID string) error {
	s := r.client
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := rpc.DeleteRequest{Collection: r.collection, ID: remoteID}.Message()
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrValidation, err)
	}
	return s.mapError(s.client.DeleteRecord(ctx, req))
}

// Upload presigns a PUT URL for folder and sends the decoded bytes there.
func (s *GRPCClient) Upload(ctx context.Context, data []byte, folder string) (Blob, error) {
	body, contentType, err := DecodeAttachment(data)
	if err != nil {
		return Blob{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := rpc.PresignRequest{Folder: folder, ContentType: contentType}.Message()
	if err != nil {
		return Blob{}, err
	}
	resp, err := s.client.PresignUpload(ctx, req)
	if err != nil {
		return Blob{}, s.mapError(err)
	}
	presign, err := rpc.ParsePresignResponse(resp)
	if err != nil {
		return Blob{}, err
	}

	if err := netx.UploadToPresignedURL(ctx, s.http, presign.UploadURL, contentType, body); err != nil {
		return Blob{}, fmt.Errorf("upload attachment: %w", err)
	}
	s.log.Debug(ctx, "attachment uploaded", "path", presign.Path, "bytes", len(body))

	url := presign.PublicURL
	if url == "" {
		url = presign.Path
	}
	return Blob{URL: url, Path: presign.Path}, nil
}

func (s *GRPCClient) Delete(ctx context.Context, path string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	return s.mapError(s.client.DeleteBlob(ctx, rpc.PathMessage(path)))
}

func (s *GRPCClient) mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrUnavailable
	}
	st, ok := status.FromError(err)
	if !ok {
		return fmt.Errorf("rpc error: %w", err)
	}
	switch st.Code() {
	case codes.Unauthenticated, codes.PermissionDenied:
		return ErrUnauthorized
	case codes.Unavailable, codes.DeadlineExceeded:
		return ErrUnavailable
	case codes.NotFound:
		return fmt.Errorf("%s: %w", st.Message(), common.ErrorNotFound)
	case codes.InvalidArgument:
		return fmt.Errorf("%s: %w", st.Message(), common.ErrValidation)
	case codes.AlreadyExists:
		return fmt.Errorf("%s: %w", st.Message(), common.ErrAlreadyExists)
	default:
		return fmt.Errorf("rpc error: %w", err)
	}
}
