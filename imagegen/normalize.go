package imagegen

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
)

// DecodeImagePayload turns whatever a provider returned into raw image bytes:
//   - data URL: base64 after the comma, MIME from the header
//   - bare base64 text: decoded
//   - anything else: treated as binary and passed through
//
// The MIME type is sniffed when the payload does not carry one.
func DecodeImagePayload(payload []byte) ([]byte, string, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return nil, "", ErrNoImage
	}

	if bytes.HasPrefix(trimmed, []byte("data:")) {
		return decodeDataURL(string(trimmed))
	}

	if looksLikeBase64(trimmed) {
		if data, err := decodeBase64(string(trimmed)); err == nil && len(data) > 0 {
			return data, sniffMime(data, ""), nil
		}
	}
	return payload, sniffMime(payload, ""), nil
}

func decodeDataURL(s string) ([]byte, string, error) {
	header, body, ok := strings.Cut(s, ",")
	if !ok {
		return nil, "", fmt.Errorf("malformed data URL")
	}
	meta := strings.TrimPrefix(header, "data:")
	mime, _, _ := strings.Cut(meta, ";")
	if !strings.HasSuffix(meta, ";base64") {
		return nil, "", fmt.Errorf("data URL is not base64 encoded")
	}
	data, err := decodeBase64(body)
	if err != nil {
		return nil, "", fmt.Errorf("decode data URL: %w", err)
	}
	if len(data) == 0 {
		return nil, "", ErrNoImage
	}
	return data, sniffMime(data, mime), nil
}

// decodeBase64 accepts padded and unpadded standard encodings.
func decodeBase64(s string) ([]byte, error) {
	s = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' || r == ' ' || r == '\t' {
			return -1
		}
		return r
	}, s)
	if data, err := base64.StdEncoding.DecodeString(s); err == nil {
		return data, nil
	}
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
}

func looksLikeBase64(b []byte) bool {
	for _, c := range b {
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9':
		case c == '+', c == '/', c == '=', c == '\n', c == '\r':
		default:
			return false
		}
	}
	return true
}

func sniffMime(data []byte, declared string) string {
	if declared != "" && declared != "application/octet-stream" {
		return declared
	}
	return http.DetectContentType(data)
}
