package grpc

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/tripkeeper/internal/common"
	"github.com/dmitrijs2005/tripkeeper/internal/logging"
	"github.com/dmitrijs2005/tripkeeper/internal/rpc"
	"github.com/dmitrijs2005/tripkeeper/internal/server/auth"
	"github.com/dmitrijs2005/tripkeeper/internal/server/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

const testSecret = "test-secret"

type createCall struct {
	userID, collection, key string
	payload                 map[string]any
}

type fakeRecords struct {
	mu        sync.Mutex
	creates   []createCall
	deleted   []string
	blobs     []string
	createErr error
	deleteErr error
}

func (f *fakeRecords) Create(_ context.Context, userID, collection, key string, payload map[string]any) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return "", f.createErr
	}
	f.creates = append(f.creates, createCall{userID, collection, key, payload})
	return "rec-" + key, nil
}

func (f *fakeRecords) Update(_ context.Context, _, _, id string, _ map[string]any) error {
	if id == "missing" {
		return common.ErrorNotFound
	}
	return nil
}

func (f *fakeRecords) Delete(_ context.Context, _, _, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeRecords) PresignUpload(_ context.Context, userID, folder, _ string) (services.Upload, error) {
	p := "users/" + userID + "/" + folder + "/x"
	return services.Upload{URL: "https://s3.test/" + p + "?sig", Path: p, PublicURL: "https://s3.test/" + p}, nil
}

func (f *fakeRecords) DeleteBlob(_ context.Context, userID, path string) error {
	if path == "users/other/x" {
		return common.ErrorUnauthorized
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blobs = append(f.blobs, path)
	return nil
}

func startServer(t *testing.T, rs RecordService) *rpc.RecordsClient {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	s := NewGRPCServer("bufnet", logging.Nop(), rs, testSecret)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, lis) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = conn.Close()
		cancel()
		<-done
	})
	return rpc.NewRecordsClient(conn)
}

func authed(t *testing.T, userID string) context.Context {
	t.Helper()
	tok, err := auth.GenerateToken(userID, []byte(testSecret), time.Minute)
	require.NoError(t, err)
	return metadata.AppendToOutgoingContext(context.Background(), common.AccessTokenHeaderName, tok)
}

func TestPing_NoTokenRequired(t *testing.T) {
	c := startServer(t, &fakeRecords{})
	require.NoError(t, c.Ping(context.Background()))
}

func TestAccessToken(t *testing.T) {
	c := startServer(t, &fakeRecords{})
	msg, err := rpc.CreateRequest{Collection: "vehicles"}.Message()
	require.NoError(t, err)

	t.Run("missing", func(t *testing.T) {
		_, err := c.CreateRecord(context.Background(), msg)
		assert.Equal(t, codes.Unauthenticated, status.Code(err))
	})

	t.Run("garbage", func(t *testing.T) {
		ctx := metadata.AppendToOutgoingContext(context.Background(), common.AccessTokenHeaderName, "nope")
		_, err := c.CreateRecord(ctx, msg)
		assert.Equal(t, codes.Unauthenticated, status.Code(err))
	})

	t.Run("wrong secret", func(t *testing.T) {
		tok, err := auth.GenerateToken("u1", []byte("other"), time.Minute)
		require.NoError(t, err)
		ctx := metadata.AppendToOutgoingContext(context.Background(), common.AccessTokenHeaderName, tok)
		_, err = c.CreateRecord(ctx, msg)
		assert.Equal(t, codes.Unauthenticated, status.Code(err))
	})
}

func TestCreateRecord(t *testing.T) {
	fr := &fakeRecords{}
	c := startServer(t, fr)

	msg, err := rpc.CreateRequest{Collection: "vehicles", Payload: map[string]any{"plate": "AB-123"}}.Message()
	require.NoError(t, err)

	ctx := rpc.WithIdempotencyKey(authed(t, "u1"), "local-7")
	resp, err := c.CreateRecord(ctx, msg)
	require.NoError(t, err)

	id, err := rpc.ParseID(resp)
	require.NoError(t, err)
	assert.Equal(t, "rec-local-7", id)

	require.Len(t, fr.creates, 1)
	assert.Equal(t, createCall{"u1", "vehicles", "local-7", map[string]any{"plate": "AB-123"}}, fr.creates[0])
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want codes.Code
	}{
		{"validation", common.ErrValidation, codes.InvalidArgument},
		{"not found", common.ErrorNotFound, codes.NotFound},
		{"already exists", common.ErrAlreadyExists, codes.AlreadyExists},
		{"unauthorized", common.ErrorUnauthorized, codes.PermissionDenied},
		{"other", assert.AnError, codes.Internal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := startServer(t, &fakeRecords{createErr: tt.err})
			msg, err := rpc.CreateRequest{Collection: "trips"}.Message()
			require.NoError(t, err)
			_, err = c.CreateRecord(authed(t, "u1"), msg)
			assert.Equal(t, tt.want, status.Code(err))
		})
	}
}

func TestUpdateDeleteRecord(t *testing.T) {
	fr := &fakeRecords{}
	c := startServer(t, fr)
	ctx := authed(t, "u1")

	msg, err := rpc.UpdateRequest{Collection: "trips", ID: "missing"}.Message()
	require.NoError(t, err)
	assert.Equal(t, codes.NotFound, status.Code(c.UpdateRecord(ctx, msg)))

	msg, err = rpc.UpdateRequest{Collection: "trips", ID: "t1", Payload: map[string]any{"note": "x"}}.Message()
	require.NoError(t, err)
	assert.NoError(t, c.UpdateRecord(ctx, msg))

	del, err := rpc.DeleteRequest{Collection: "trips", ID: "t1"}.Message()
	require.NoError(t, err)
	require.NoError(t, c.DeleteRecord(ctx, del))
	assert.Equal(t, []string{"t1"}, fr.deleted)

	bad, err := rpc.DeleteRequest{Collection: "trips"}.Message()
	require.NoError(t, err)
	assert.Equal(t, codes.InvalidArgument, status.Code(c.DeleteRecord(ctx, bad)))
}

func TestBlobs(t *testing.T) {
	fr := &fakeRecords{}
	c := startServer(t, fr)
	ctx := authed(t, "u1")

	msg, err := rpc.PresignRequest{Folder: "fuelings", ContentType: "image/png"}.Message()
	require.NoError(t, err)
	resp, err := c.PresignUpload(ctx, msg)
	require.NoError(t, err)

	up, err := rpc.ParsePresignResponse(resp)
	require.NoError(t, err)
	assert.Equal(t, "users/u1/fuelings/x", up.Path)
	assert.Equal(t, "https://s3.test/users/u1/fuelings/x", up.PublicURL)

	require.NoError(t, c.DeleteBlob(ctx, rpc.PathMessage(up.Path)))
	assert.Equal(t, []string{up.Path}, fr.blobs)

	err = c.DeleteBlob(ctx, rpc.PathMessage("users/other/x"))
	assert.Equal(t, codes.PermissionDenied, status.Code(err))
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	s := NewGRPCServer("127.0.0.1:0", logging.Nop(), &fakeRecords{}, testSecret)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop after context cancel")
	}
}

func TestRun_BadAddress(t *testing.T) {
	s := NewGRPCServer("bad::addr", logging.Nop(), &fakeRecords{}, testSecret)
	assert.Error(t, s.Run(context.Background()))
}
