package auth

import (
	"bufio"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/shinow/qrscan/apitypes"
)

// Handshake wire format:
//
//	client -> server: magic | client nonce | HMAC(key, context | client nonce)
//	server -> client: "OK\0" | server nonce
//
// On a bad MAC the server answers with a problem JSON line instead.
const (
	HandshakeMagic = "QRS1\x00"
	NonceSize      = 32
	authContext    = "qrscan-auth-v1"
	okPrefix       = "OK\x00"
)

// ErrUnauthorized is the problem returned for a failed handshake.
func ErrUnauthorized(detail string) *apitypes.ApiError {
	return &apitypes.ApiError{Status: 401, Title: "Unauthorized", Detail: detail}
}

// IsAuthHandshake reports whether the next bytes in r are the handshake
// magic, without consuming them.
func IsAuthHandshake(r *bufio.Reader) (bool, error) {
	b, err := r.Peek(len(HandshakeMagic))
	if err != nil {
		return false, err
	}
	return string(b) == HandshakeMagic, nil
}

func clientMAC(key, nonce []byte) []byte {
	mac := hmac.New(sha256.New, key)
	_, _ = mac.Write([]byte(authContext))
	_, _ = mac.Write(nonce)
	return mac.Sum(nil)
}

func readNonce(r io.Reader, what string) ([]byte, error) {
	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(r, nonce); err != nil {
		return nil, fmt.Errorf("read %s nonce: %w", what, err)
	}
	return nonce, nil
}

// ClientHandshake authenticates to the server and returns the session key.
func ClientHandshake(r *bufio.Reader, w io.Writer, key []byte) ([]byte, error) {
	if len(key) == 0 {
		return nil, fmt.Errorf("handshake: missing key")
	}
	clientNonce := make([]byte, NonceSize)
	if _, err := rand.Read(clientNonce); err != nil {
		return nil, fmt.Errorf("generate client nonce: %w", err)
	}

	msg := make([]byte, 0, len(HandshakeMagic)+NonceSize+sha256.Size)
	msg = append(msg, HandshakeMagic...)
	msg = append(msg, clientNonce...)
	msg = append(msg, clientMAC(key, clientNonce)...)
	if _, err := w.Write(msg); err != nil {
		return nil, fmt.Errorf("write handshake: %w", err)
	}

	prefix := make([]byte, len(okPrefix))
	if _, err := io.ReadFull(r, prefix); err != nil {
		if err == io.EOF {
			// the server hangs up without a body on some failures
			return nil, ErrUnauthorized("invalid password")
		}
		return nil, fmt.Errorf("read handshake response: %w", err)
	}
	if string(prefix) != okPrefix {
		rest, _ := io.ReadAll(r)
		line := strings.TrimSuffix(string(append(prefix, rest...)), "\n")
		var apiErr apitypes.ApiError
		if err := json.Unmarshal([]byte(line), &apiErr); err == nil && (apiErr.Status != 0 || apiErr.Title != "") {
			return nil, &apiErr
		}
		return nil, fmt.Errorf("invalid handshake response from server: %q", line)
	}

	serverNonce, err := readNonce(r, "server")
	if err != nil {
		return nil, err
	}
	return DeriveSessionKey(key, serverNonce, clientNonce), nil
}

// ServerHandshake verifies a client handshake and returns the session key.
// The magic must still be unread in r. A bad MAC yields an *apitypes.ApiError
// that the caller is expected to write back before closing.
func ServerHandshake(r *bufio.Reader, w io.Writer, key []byte) ([]byte, error) {
	if len(key) == 0 {
		return nil, fmt.Errorf("handshake: missing key")
	}
	if _, err := r.Discard(len(HandshakeMagic)); err != nil {
		return nil, fmt.Errorf("discard handshake magic: %w", err)
	}
	clientNonce, err := readNonce(r, "client")
	if err != nil {
		return nil, err
	}
	got := make([]byte, sha256.Size)
	if _, err := io.ReadFull(r, got); err != nil {
		return nil, fmt.Errorf("read client auth: %w", err)
	}
	if !hmac.Equal(got, clientMAC(key, clientNonce)) {
		return nil, ErrUnauthorized("invalid password")
	}

	serverNonce := make([]byte, NonceSize)
	if _, err := rand.Read(serverNonce); err != nil {
		return nil, fmt.Errorf("generate server nonce: %w", err)
	}
	if _, err := w.Write(append([]byte(okPrefix), serverNonce...)); err != nil {
		return nil, fmt.Errorf("write handshake response: %w", err)
	}
	return DeriveSessionKey(key, serverNonce, clientNonce), nil
}
