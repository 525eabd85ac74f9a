package rpc

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/tripkeeper/internal/common"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"
)

// Message field names.
const (
	FieldCollection  = "collection"
	FieldID          = "id"
	FieldPayload     = "payload"
	FieldFolder      = "folder"
	FieldContentType = "content_type"
	FieldURL         = "url"
	FieldPath        = "path"
	FieldPublicURL   = "public_url"
)

// CreateRequest creates a record in a collection. The idempotency key
// travels in metadata, see WithIdempotencyKey.
type CreateRequest struct {
	Collection string
	Payload    map[string]any
}

// UpdateRequest replaces the payload of an existing record.
type UpdateRequest struct {
	Collection string
	ID         string
	Payload    map[string]any
}

// DeleteRequest removes a record.
type DeleteRequest struct {
	Collection string
	ID         string
}

// PresignRequest asks for a presigned PUT URL for a new blob.
type PresignRequest struct {
	Folder      string
	ContentType string
}

// PresignResponse describes where to PUT the blob and how it will be reachable.
type PresignResponse struct {
	UploadURL string
	Path      string
	PublicURL string
}

func (r CreateRequest) Message() (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		FieldCollection: r.Collection,
		FieldPayload:    payloadOrEmpty(r.Payload),
	})
}

func (r UpdateRequest) Message() (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		FieldCollection: r.Collection,
		FieldID:         r.ID,
		FieldPayload:    payloadOrEmpty(r.Payload),
	})
}

func (r DeleteRequest) Message() (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		FieldCollection: r.Collection,
		FieldID:         r.ID,
	})
}

func (r PresignRequest) Message() (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		FieldFolder:      r.Folder,
		FieldContentType: r.ContentType,
	})
}

func (r PresignResponse) Message() (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		FieldURL:       r.UploadURL,
		FieldPath:      r.Path,
		FieldPublicURL: r.PublicURL,
	})
}

// IDMessage wraps a single id, the response of CreateRecord.
func IDMessage(id string) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{FieldID: structpb.NewStringValue(id)}}
}

// PathMessage wraps a blob path, the request of DeleteBlob.
func PathMessage(path string) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{FieldPath: structpb.NewStringValue(path)}}
}

func ParseCreateRequest(s *structpb.Struct) (CreateRequest, error) {
	c, err := requiredString(s, FieldCollection)
	if err != nil {
		return CreateRequest{}, err
	}
	return CreateRequest{Collection: c, Payload: payloadOf(s)}, nil
}

func ParseUpdateRequest(s *structpb.Struct) (UpdateRequest, error) {
	c, err := requiredString(s, FieldCollection)
	if err != nil {
		return UpdateRequest{}, err
	}
	id, err := requiredString(s, FieldID)
	if err != nil {
		return UpdateRequest{}, err
	}
	return UpdateRequest{Collection: c, ID: id, Payload: payloadOf(s)}, nil
}

func ParseDeleteRequest(s *structpb.Struct) (DeleteRequest, error) {
	c, err := requiredString(s, FieldCollection)
	if err != nil {
		return DeleteRequest{}, err
	}
	id, err := requiredString(s, FieldID)
	if err != nil {
		return DeleteRequest{}, err
	}
	return DeleteRequest{Collection: c, ID: id}, nil
}

func ParsePresignRequest(s *structpb.Struct) (PresignRequest, error) {
	folder, err := requiredString(s, FieldFolder)
	if err != nil {
		return PresignRequest{}, err
	}
	return PresignRequest{Folder: folder, ContentType: stringField(s, FieldContentType)}, nil
}

func ParsePresignResponse(s *structpb.Struct) (PresignResponse, error) {
	url, err := requiredString(s, FieldURL)
	if err != nil {
		return PresignResponse{}, err
	}
	path, err := requiredString(s, FieldPath)
	if err != nil {
		return PresignResponse{}, err
	}
	return PresignResponse{UploadURL: url, Path: path, PublicURL: stringField(s, FieldPublicURL)}, nil
}

// ParseID reads the id of a CreateRecord response.
func ParseID(s *structpb.Struct) (string, error) {
	return requiredString(s, FieldID)
}

// ParsePath reads the path of a DeleteBlob request.
func ParsePath(s *structpb.Struct) (string, error) {
	return requiredString(s, FieldPath)
}

// WithIdempotencyKey attaches key to the outgoing metadata of ctx.
func WithIdempotencyKey(ctx context.Context, key string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, common.IdempotencyKeyHeaderName, key)
}

// IdempotencyKey reads the key from incoming metadata, or "".
func IdempotencyKey(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if v := md.Get(common.IdempotencyKeyHeaderName); len(v) > 0 {
		return v[0]
	}
	return ""
}

func requiredString(s *structpb.Struct, name string) (string, error) {
	v := stringField(s, name)
	if v == "" {
		return "", fmt.Errorf("%w: missing field %q", common.ErrValidation, name)
	}
	return v, nil
}

func stringField(s *structpb.Struct, name string) string {
	if s == nil {
		return ""
	}
	return s.GetFields()[name].GetStringValue()
}

func payloadOf(s *structpb.Struct) map[string]any {
	if v := s.GetFields()[FieldPayload].GetStructValue(); v != nil {
		return v.AsMap()
	}
	return map[string]any{}
}

func payloadOrEmpty(p map[string]any) map[string]any {
	if p == nil {
		return map[string]any{}
	}
	return p
}
