package client

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/dmitrijs2005/tripkeeper/internal/common"
)

var dataPrefix = []byte("data:")

// DecodeAttachment returns the bytes and content type of an attachment
// payload. A data: URI ("data:image/png;base64,....") is decoded; anything
// else is taken as raw bytes and sniffed.
func DecodeAttachment(data []byte) ([]byte, string, error) {
	if !bytes.HasPrefix(data, dataPrefix) {
		return data, http.DetectContentType(data), nil
	}

	header, body, ok := strings.Cut(string(data[len(dataPrefix):]), ",")
	if !ok {
		return nil, "", fmt.Errorf("%w: data uri without payload", common.ErrValidation)
	}

	params := strings.Split(header, ";")
	contentType := params[0]
	if contentType == "" {
		contentType = "text/plain;charset=US-ASCII"
	}
	isBase64 := false
	for _, p := range params[1:] {
		if p == "base64" {
			isBase64 = true
		}
	}

	if isBase64 {
		b, err := base64.StdEncoding.DecodeString(body)
		if err != nil {
			b, err = base64.RawStdEncoding.DecodeString(body)
		}
		if err != nil {
			return nil, "", fmt.Errorf("%w: data uri: %v", common.ErrValidation, err)
		}
		return b, contentType, nil
	}

	s, err := url.PathUnescape(body)
	if err != nil {
		return nil, "", fmt.Errorf("%w: data uri: %v", common.ErrValidation, err)
	}
	return []byte(s), contentType, nil
}
